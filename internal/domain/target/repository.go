package target

import "context"

// Repository defines the interface for target data access
type Repository interface {
	// Create registers a new target
	Create(ctx context.Context, t *Target) error

	// GetByID retrieves a target by ID
	GetByID(ctx context.Context, id string) (*Target, error)

	// Update persists target mutations (state, counters, timestamps)
	Update(ctx context.Context, t *Target) error

	// Delete removes a target
	Delete(ctx context.Context, id string) error

	// List retrieves all targets
	List(ctx context.Context) ([]*Target, error)
}
