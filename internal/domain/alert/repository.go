package alert

import "context"

// Repository defines the interface for alert data access.
//
// FindNonTerminal is the dedup lookup: implementations must make the
// find-then-Create sequence safe to serialize under the caller's per-key
// lock (the repository itself only needs to be safe for concurrent use).
type Repository interface {
	// Create inserts a new alert
	Create(ctx context.Context, a *Alert) error

	// GetByID retrieves an alert by ID
	GetByID(ctx context.Context, id string) (*Alert, error)

	// Update persists alert mutations
	Update(ctx context.Context, a *Alert) error

	// FindNonTerminal returns the live (open/acknowledged/escalated/suppressed)
	// alert for a (rule, target) pair, or nil if none exists
	FindNonTerminal(ctx context.Context, ruleID, targetID string) (*Alert, error)

	// List retrieves alerts matching a filter
	List(ctx context.Context, filter Filter) ([]*Alert, error)

	// CountByState counts non-archived alerts grouped by state
	CountByState(ctx context.Context) (map[string]int, error)

	// Delete removes an alert (used when a suppressed alert's condition
	// lapses before the suppression ends)
	Delete(ctx context.Context, id string) error
}

// GroupRepository defines the interface for correlation group access.
type GroupRepository interface {
	// Create inserts a new group
	Create(ctx context.Context, g *CorrelationGroup) error

	// GetByID retrieves a group by ID
	GetByID(ctx context.Context, id string) (*CorrelationGroup, error)

	// Update persists group mutations
	Update(ctx context.Context, g *CorrelationGroup) error

	// List retrieves all groups
	List(ctx context.Context) ([]*CorrelationGroup, error)
}
