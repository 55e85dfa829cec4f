package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vibhukrishnas/sams-core/internal/domain/escalation"
	"github.com/vibhukrishnas/sams-core/internal/domain/rule"
	"github.com/vibhukrishnas/sams-core/internal/domain/suppression"
	"github.com/vibhukrishnas/sams-core/internal/domain/target"
	"github.com/vibhukrishnas/sams-core/internal/pkg/validator"
)

// Definitions is the declarative monitoring configuration: what to watch,
// what to alert on, how to escalate and when to stay quiet. Loaded once at
// startup from a single YAML file.
type Definitions struct {
	Targets            []*target.Target                 `yaml:"targets"`
	Rules              []*rule.Rule                     `yaml:"rules"`
	EscalationPolicies []*escalation.Policy             `yaml:"escalation_policies"`
	MaintenanceWindows []*suppression.MaintenanceWindow `yaml:"maintenance_windows"`
	SuppressionRules   []*suppression.Rule              `yaml:"suppression_rules"`
}

// LoadDefinitions reads and validates the definitions file. Recurring
// maintenance window schedules are compiled here so a bad cron expression
// fails startup instead of the first sweep.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing definitions file: %w", err)
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Validate checks every definition and compiles window schedules.
func (d *Definitions) Validate() error {
	v := validator.New()

	for _, t := range d.Targets {
		if errs := v.Validate(t); len(errs) > 0 {
			return fmt.Errorf("target %q: %s", t.ID, errs[0].Message)
		}
	}
	seen := make(map[string]struct{}, len(d.Targets))
	for _, t := range d.Targets {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate target id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}

	for _, r := range d.Rules {
		if errs := v.Validate(r); len(errs) > 0 {
			return fmt.Errorf("rule %q: %s", r.ID, errs[0].Message)
		}
	}

	for _, p := range d.EscalationPolicies {
		if errs := v.Validate(p); len(errs) > 0 {
			return fmt.Errorf("escalation policy %q: %s", p.ID, errs[0].Message)
		}
		for i := 1; i < len(p.Levels); i++ {
			if p.Levels[i].Delay < p.Levels[i-1].Delay {
				return fmt.Errorf("escalation policy %q: level delays must not decrease", p.ID)
			}
		}
	}

	for _, w := range d.MaintenanceWindows {
		if errs := v.Validate(w); len(errs) > 0 {
			return fmt.Errorf("maintenance window %q: %s", w.ID, errs[0].Message)
		}
		oneOff := !w.StartsAt.IsZero() && !w.EndsAt.IsZero()
		recurring := w.Schedule != ""
		if oneOff == recurring {
			return fmt.Errorf("maintenance window %q: set either starts_at/ends_at or schedule/duration", w.ID)
		}
		if recurring && w.Duration <= 0 {
			return fmt.Errorf("maintenance window %q: recurring windows need a positive duration", w.ID)
		}
		if oneOff && !w.EndsAt.After(w.StartsAt) {
			return fmt.Errorf("maintenance window %q: ends_at must be after starts_at", w.ID)
		}
		if err := w.Compile(); err != nil {
			return fmt.Errorf("maintenance window %q: invalid schedule: %w", w.ID, err)
		}
	}

	for _, s := range d.SuppressionRules {
		if errs := v.Validate(s); len(errs) > 0 {
			return fmt.Errorf("suppression rule %q: %s", s.ID, errs[0].Message)
		}
	}

	return nil
}
