package rule

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Operator is a threshold comparison operator.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Rule is a threshold condition over a named metric. A rule fires only once
// its condition has held continuously for SustainFor.
type Rule struct {
	ID         string        `json:"id" yaml:"id" validate:"required"`
	Name       string        `json:"name" yaml:"name" validate:"required"`
	Metric     string        `json:"metric" yaml:"metric" validate:"required"`
	Operator   Operator      `json:"operator" yaml:"operator" validate:"required,oneof=> < >= <= == !="`
	Threshold  float64       `json:"threshold" yaml:"threshold"`
	SustainFor time.Duration `json:"sustain_for" yaml:"sustain_for" validate:"min=0"`
	Severity   string        `json:"severity" yaml:"severity" validate:"required,oneof=critical high medium low info"`
	Tags       []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Enabled    bool          `json:"enabled" yaml:"enabled"`
}

// UnmarshalYAML accepts a Go duration string ("2m") for sustain_for.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID         string   `yaml:"id"`
		Name       string   `yaml:"name"`
		Metric     string   `yaml:"metric"`
		Operator   Operator `yaml:"operator"`
		Threshold  float64  `yaml:"threshold"`
		SustainFor string   `yaml:"sustain_for"`
		Severity   string   `yaml:"severity"`
		Tags       []string `yaml:"tags"`
		Enabled    bool     `yaml:"enabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	r.ID = raw.ID
	r.Name = raw.Name
	r.Metric = raw.Metric
	r.Operator = raw.Operator
	r.Threshold = raw.Threshold
	r.Severity = raw.Severity
	r.Tags = raw.Tags
	r.Enabled = raw.Enabled

	if raw.SustainFor != "" {
		d, err := time.ParseDuration(raw.SustainFor)
		if err != nil {
			return fmt.Errorf("sustain_for: %w", err)
		}
		r.SustainFor = d
	}
	return nil
}

// Compare applies the rule's operator to a metric value.
func (r *Rule) Compare(value float64) bool {
	switch r.Operator {
	case OpGreater:
		return value > r.Threshold
	case OpLess:
		return value < r.Threshold
	case OpGreaterEqual:
		return value >= r.Threshold
	case OpLessEqual:
		return value <= r.Threshold
	case OpEqual:
		return value == r.Threshold
	case OpNotEqual:
		return value != r.Threshold
	default:
		return false
	}
}

// Describe renders the rule condition for alert messages.
func (r *Rule) Describe(value float64) string {
	return fmt.Sprintf("%s %s %g (observed %g)", r.Metric, r.Operator, r.Threshold, value)
}
