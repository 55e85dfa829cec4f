package escalation

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Level is one step of an escalation policy. Delay is measured from the
// alert's creation time; Channels name the notification channels resolved by
// the external notifier.
type Level struct {
	Delay    time.Duration `json:"delay" yaml:"delay" validate:"min=0"`
	Channels []string      `json:"channels" yaml:"channels" validate:"required,min=1"`
}

// UnmarshalYAML accepts a Go duration string ("15m") for delay.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Delay    string   `yaml:"delay"`
		Channels []string `yaml:"channels"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	l.Channels = raw.Channels
	if raw.Delay != "" {
		d, err := time.ParseDuration(raw.Delay)
		if err != nil {
			return fmt.Errorf("delay: %w", err)
		}
		l.Delay = d
	}
	return nil
}

// Policy is an ordered list of escalation levels applied to unacknowledged
// alerts of the listed severities. Levels must be ordered by increasing
// delay; escalation only ever advances forward through them.
type Policy struct {
	ID         string   `json:"id" yaml:"id" validate:"required"`
	Name       string   `json:"name" yaml:"name" validate:"required"`
	Severities []string `json:"severities" yaml:"severities" validate:"required,min=1,dive,oneof=critical high medium low info"`
	Levels     []Level  `json:"levels" yaml:"levels" validate:"required,min=1,dive"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`
}

// AppliesTo reports whether the policy covers a severity.
func (p *Policy) AppliesTo(severity string) bool {
	for _, s := range p.Severities {
		if s == severity {
			return true
		}
	}
	return false
}

// LevelFor returns the highest level index reachable at age, or -1 when no
// level's delay has elapsed yet.
func (p *Policy) LevelFor(age time.Duration) int {
	level := -1
	for i, l := range p.Levels {
		if age >= l.Delay {
			level = i
		}
	}
	return level
}
