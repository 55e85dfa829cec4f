package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
)

// TargetRepository is the in-memory target store.
type TargetRepository struct {
	mu      sync.RWMutex
	targets map[string]*target.Target
}

// NewTargetRepository creates an empty target repository.
func NewTargetRepository() *TargetRepository {
	return &TargetRepository{targets: make(map[string]*target.Target)}
}

// Create registers a new target.
func (r *TargetRepository) Create(ctx context.Context, t *target.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.targets[t.ID]; exists {
		return errors.Conflict("target id already exists")
	}
	cp := *t
	r.targets[t.ID] = &cp
	return nil
}

// GetByID retrieves a target by ID.
func (r *TargetRepository) GetByID(ctx context.Context, id string) (*target.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[id]
	if !ok {
		return nil, errors.NotFound("target")
	}
	cp := *t
	return &cp, nil
}

// Update persists target mutations.
func (r *TargetRepository) Update(ctx context.Context, t *target.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[t.ID]; !ok {
		return errors.NotFound("target")
	}
	cp := *t
	r.targets[t.ID] = &cp
	return nil
}

// Delete removes a target.
func (r *TargetRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[id]; !ok {
		return errors.NotFound("target")
	}
	delete(r.targets, id)
	return nil
}

// List retrieves all targets sorted by ID.
func (r *TargetRepository) List(ctx context.Context) ([]*target.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*target.Target, 0, len(r.targets))
	for _, t := range r.targets {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
