package alert

import "time"

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Alert lifecycle states
const (
	StateOpen         = "open"
	StateAcknowledged = "acknowledged"
	StateEscalated    = "escalated"
	StateResolved     = "resolved"
	StateSuppressed   = "suppressed"
)

// SeverityRank orders severities, highest first. Unknown severities rank last.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	default:
		return 5
	}
}

// Alert represents a raised, deduplicated alert bound to a (rule, target)
// pair. It is created by the lifecycle manager and mutated only through its
// operations; Resolved is terminal.
type Alert struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"rule_id"`
	TargetID        string     `json:"target_id"`
	Severity        string     `json:"severity"`
	State           string     `json:"state"`
	Message         string     `json:"message"`
	MetricValue     float64    `json:"metric_value"`
	Tags            []string   `json:"tags,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNote  string     `json:"resolution_note,omitempty"`
	EscalationLevel int        `json:"escalation_level"`
	EscalatedAt     *time.Time `json:"escalated_at,omitempty"`
	CorrelationID   string     `json:"correlation_id,omitempty"`
	SuppressedUntil time.Time  `json:"suppressed_until,omitempty"`
	SuppressedBy    string     `json:"suppressed_by,omitempty"`
}

// IsTerminal reports whether the alert can no longer change state.
func (a *Alert) IsTerminal() bool {
	return a.State == StateResolved
}

// IsActive reports whether the alert is visible as a live alert:
// open, acknowledged or escalated. Suppressed alerts are hidden.
func (a *Alert) IsActive() bool {
	switch a.State {
	case StateOpen, StateAcknowledged, StateEscalated:
		return true
	}
	return false
}

// Draft is a rule engine output: the request to raise an alert. Drafts never
// mutate state themselves; the lifecycle manager turns them into alerts.
type Draft struct {
	RuleID      string
	TargetID    string
	Severity    string
	Message     string
	MetricValue float64
	Tags        []string
}

// CorrelationGroup clusters related open alerts. Pattern sets are recomputed
// incrementally each time a member is added.
type CorrelationGroup struct {
	ID         string              `json:"id"`
	AlertIDs   []string            `json:"alert_ids"`
	TargetIDs  map[string]struct{} `json:"-"`
	RuleIDs    map[string]struct{} `json:"-"`
	Severities map[string]struct{} `json:"-"`
	Tags       map[string]struct{} `json:"-"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewCorrelationGroup returns an empty group with initialized pattern sets.
func NewCorrelationGroup(id string, createdAt time.Time) *CorrelationGroup {
	return &CorrelationGroup{
		ID:         id,
		TargetIDs:  make(map[string]struct{}),
		RuleIDs:    make(map[string]struct{}),
		Severities: make(map[string]struct{}),
		Tags:       make(map[string]struct{}),
		CreatedAt:  createdAt,
	}
}

// Add folds an alert into the group's aggregate pattern.
func (g *CorrelationGroup) Add(a *Alert) {
	g.AlertIDs = append(g.AlertIDs, a.ID)
	g.TargetIDs[a.TargetID] = struct{}{}
	g.RuleIDs[a.RuleID] = struct{}{}
	g.Severities[a.Severity] = struct{}{}
	for _, t := range a.Tags {
		g.Tags[t] = struct{}{}
	}
}

// Filter contains alert query options. Zero values match everything.
type Filter struct {
	State         string
	Severity      string
	TargetID      string
	RuleID        string
	CorrelationID string
}

// Matches reports whether an alert satisfies the filter.
func (f Filter) Matches(a *Alert) bool {
	if f.State != "" && a.State != f.State {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.TargetID != "" && a.TargetID != f.TargetID {
		return false
	}
	if f.RuleID != "" && a.RuleID != f.RuleID {
		return false
	}
	if f.CorrelationID != "" && a.CorrelationID != f.CorrelationID {
		return false
	}
	return true
}
