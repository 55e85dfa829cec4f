package suppression

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Criteria selects the alerts a window or rule applies to. Empty slices
// match everything; populated slices must contain the alert's value.
type Criteria struct {
	TargetIDs  []string `json:"target_ids,omitempty" yaml:"target_ids,omitempty"`
	RuleIDs    []string `json:"rule_ids,omitempty" yaml:"rule_ids,omitempty"`
	Severities []string `json:"severities,omitempty" yaml:"severities,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Matches reports whether an alert identified by (rule, target, severity,
// tags) falls under the criteria.
func (c Criteria) Matches(ruleID, targetID, severity string, tags []string) bool {
	if len(c.TargetIDs) > 0 && !contains(c.TargetIDs, targetID) {
		return false
	}
	if len(c.RuleIDs) > 0 && !contains(c.RuleIDs, ruleID) {
		return false
	}
	if len(c.Severities) > 0 && !contains(c.Severities, severity) {
		return false
	}
	if len(c.Tags) > 0 && !containsAny(c.Tags, tags) {
		return false
	}
	return true
}

// MaintenanceWindow suppresses matching alerts inside its time bounds.
// Either StartsAt/EndsAt are set for a one-off window, or Schedule holds a
// cron expression and Duration the window length for recurring windows.
type MaintenanceWindow struct {
	ID       string        `json:"id" yaml:"id" validate:"required"`
	Name     string        `json:"name" yaml:"name" validate:"required"`
	Criteria Criteria      `json:"criteria" yaml:"criteria"`
	StartsAt time.Time     `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt   time.Time     `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	Schedule string        `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	sched cron.Schedule
}

// UnmarshalYAML accepts a Go duration string ("2h") for duration and
// RFC 3339 timestamps for the one-off bounds.
func (w *MaintenanceWindow) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID       string    `yaml:"id"`
		Name     string    `yaml:"name"`
		Criteria Criteria  `yaml:"criteria"`
		StartsAt time.Time `yaml:"starts_at"`
		EndsAt   time.Time `yaml:"ends_at"`
		Schedule string    `yaml:"schedule"`
		Duration string    `yaml:"duration"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	w.ID = raw.ID
	w.Name = raw.Name
	w.Criteria = raw.Criteria
	w.StartsAt = raw.StartsAt
	w.EndsAt = raw.EndsAt
	w.Schedule = raw.Schedule
	if raw.Duration != "" {
		d, err := time.ParseDuration(raw.Duration)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		w.Duration = d
	}
	return nil
}

// Compile parses the recurring schedule, if any. Must be called once after
// loading the window definition.
func (w *MaintenanceWindow) Compile() error {
	if w.Schedule == "" {
		return nil
	}
	s, err := cron.ParseStandard(w.Schedule)
	if err != nil {
		return err
	}
	w.sched = s
	return nil
}

// ActiveAt reports whether the window covers the given instant and, when it
// does, when the current occurrence ends.
func (w *MaintenanceWindow) ActiveAt(now time.Time) (bool, time.Time) {
	if w.sched != nil && w.Duration > 0 {
		// Walk back one duration: if an occurrence started within the last
		// Duration, the window is open until start+Duration.
		start := w.sched.Next(now.Add(-w.Duration))
		if !start.After(now) {
			return true, start.Add(w.Duration)
		}
		return false, time.Time{}
	}
	if !w.StartsAt.IsZero() && !w.EndsAt.IsZero() {
		if !now.Before(w.StartsAt) && now.Before(w.EndsAt) {
			return true, w.EndsAt
		}
	}
	return false, time.Time{}
}

// Rule is an always-active suppression: matching alerts stay suppressed for
// as long as the rule is enabled. Suppressed alerts are re-evaluated
// periodically rather than expiring at a known time.
type Rule struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Criteria Criteria `json:"criteria" yaml:"criteria"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsAny(haystack, needles []string) bool {
	for _, n := range needles {
		if contains(haystack, n) {
			return true
		}
	}
	return false
}
