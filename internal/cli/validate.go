package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibhukrishnas/sams-core/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the definitions file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlagOverrides(cfg)

			defs, err := config.LoadDefinitions(cfg.Definitions.Path)
			if err != nil {
				return err
			}

			fmt.Printf("%s: OK (%d targets, %d rules, %d escalation policies, %d maintenance windows, %d suppression rules)\n",
				cfg.Definitions.Path,
				len(defs.Targets), len(defs.Rules), len(defs.EscalationPolicies),
				len(defs.MaintenanceWindows), len(defs.SuppressionRules))
			return nil
		},
	}
}
