package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibhukrishnas/sams-core/internal/config"
	"github.com/vibhukrishnas/sams-core/internal/probe"
)

func newCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check [target-id...]",
		Short: "Run one-off health checks against defined targets",
		Long: `check probes the named targets once and prints the results. With no
arguments every enabled target in the definitions file is checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), args, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall timeout for the run")
	return cmd
}

func runCheck(ctx context.Context, ids []string, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	defs, err := config.LoadDefinitions(cfg.Definitions.Path)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tMETHOD\tRESULT\tLATENCY\tDETAIL")

	failed := 0
	matched := 0
	for _, t := range defs.Targets {
		if len(wanted) > 0 && !wanted[t.ID] {
			continue
		}
		if len(wanted) == 0 && !t.Enabled {
			continue
		}
		matched++

		probeCtx, probeCancel := context.WithTimeout(ctx, probeTimeout(t.Timeout))
		res := probe.ForTarget(t).Probe(probeCtx, t)
		probeCancel()

		status := "ok"
		detail := ""
		if !res.Success {
			status = "FAIL"
			detail = fmt.Sprintf("%s: %s", res.ErrorKind, res.Message)
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, res.Method, status, res.Latency.Round(time.Millisecond), detail)
	}
	w.Flush()

	if matched == 0 {
		return fmt.Errorf("no targets matched")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, matched)
	}
	return nil
}

func probeTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 5 * time.Second
}
