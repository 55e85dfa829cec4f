package target

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the reachability state of a monitored target.
type State string

// Target states. Every target starts as Unknown and moves to Online,
// Warning or Offline as health check results arrive.
const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateWarning State = "warning"
	StateOffline State = "offline"
)

// Probe methods supported by the health check scheduler.
const (
	MethodPing = "ping"
	MethodTCP  = "tcp"
	MethodHTTP = "http"
	MethodSSH  = "ssh"
)

// ProbeConfig describes how a target is checked.
type ProbeConfig struct {
	Method string `json:"method" yaml:"method" validate:"required,oneof=ping tcp http ssh"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	// HTTP probe options
	Path           string `json:"path,omitempty" yaml:"path,omitempty"`
	TLS            bool   `json:"tls,omitempty" yaml:"tls,omitempty"`
	ExpectedStatus int    `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
	ExpectedBody   string `json:"expected_body,omitempty" yaml:"expected_body,omitempty"`
	// SSH handshake options
	User       string `json:"user,omitempty" yaml:"user,omitempty"`
	PrivateKey string `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	Password   string `json:"-" yaml:"password,omitempty"`
}

// Target represents a monitored server or service endpoint.
//
// State, the consecutive counters and the timestamps are owned exclusively
// by the target state machine; other components read them through Service.
type Target struct {
	ID      string      `json:"id" yaml:"id" validate:"required"`
	Name    string      `json:"name" yaml:"name" validate:"required"`
	Address string      `json:"address" yaml:"address" validate:"required"`
	Probe   ProbeConfig `json:"probe" yaml:"probe" validate:"required"`

	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval" validate:"omitempty,min=1s"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" validate:"omitempty,min=100ms"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" validate:"omitempty,min=1,max=10"`
	Tags          []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Enabled       bool          `json:"enabled" yaml:"enabled"`

	State                State     `json:"state" yaml:"-"`
	ConsecutiveFailures  int       `json:"consecutive_failures" yaml:"-"`
	ConsecutiveSuccesses int       `json:"consecutive_successes" yaml:"-"`
	LastCheckAt          time.Time `json:"last_check_at,omitempty" yaml:"-"`
	LastStateChangeAt    time.Time `json:"last_state_change_at,omitempty" yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings ("30s", "1m") for the tuning
// fields, which the stock decoder would reject.
func (t *Target) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID            string      `yaml:"id"`
		Name          string      `yaml:"name"`
		Address       string      `yaml:"address"`
		Probe         ProbeConfig `yaml:"probe"`
		CheckInterval string      `yaml:"check_interval"`
		Timeout       string      `yaml:"timeout"`
		MaxRetries    int         `yaml:"max_retries"`
		Tags          []string    `yaml:"tags"`
		Enabled       bool        `yaml:"enabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	t.ID = raw.ID
	t.Name = raw.Name
	t.Address = raw.Address
	t.Probe = raw.Probe
	t.MaxRetries = raw.MaxRetries
	t.Tags = raw.Tags
	t.Enabled = raw.Enabled

	var err error
	if t.CheckInterval, err = parseDuration(raw.CheckInterval); err != nil {
		return fmt.Errorf("check_interval: %w", err)
	}
	if t.Timeout, err = parseDuration(raw.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Defaults applied by the scheduler when a target omits tuning fields.
const (
	DefaultCheckInterval = 30 * time.Second
	DefaultTimeout       = 5 * time.Second
	DefaultMaxRetries    = 3
)

// StatusValue encodes a state as the synthetic "status" metric value fed
// back into the rule engine. Higher is healthier.
func StatusValue(s State) float64 {
	switch s {
	case StateOffline:
		return 0
	case StateWarning:
		return 1
	case StateOnline:
		return 2
	default:
		return 3
	}
}
