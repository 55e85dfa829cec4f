package memory

import (
	"context"
	"sync"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
)

// GroupRepository is the in-memory correlation group store.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[string]*alert.CorrelationGroup
}

// NewGroupRepository creates an empty group repository.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[string]*alert.CorrelationGroup)}
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, g *alert.CorrelationGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[g.ID]; exists {
		return errors.Conflict("correlation group id already exists")
	}
	r.groups[g.ID] = copyGroup(g)
	return nil
}

// GetByID retrieves a group by ID.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*alert.CorrelationGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return nil, errors.NotFound("correlation group")
	}
	return copyGroup(g), nil
}

// Update persists group mutations.
func (r *GroupRepository) Update(ctx context.Context, g *alert.CorrelationGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[g.ID]; !ok {
		return errors.NotFound("correlation group")
	}
	r.groups[g.ID] = copyGroup(g)
	return nil
}

// List retrieves all groups.
func (r *GroupRepository) List(ctx context.Context) ([]*alert.CorrelationGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*alert.CorrelationGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, copyGroup(g))
	}
	return out, nil
}

func copyGroup(g *alert.CorrelationGroup) *alert.CorrelationGroup {
	cp := alert.NewCorrelationGroup(g.ID, g.CreatedAt)
	cp.AlertIDs = append([]string(nil), g.AlertIDs...)
	for k := range g.TargetIDs {
		cp.TargetIDs[k] = struct{}{}
	}
	for k := range g.RuleIDs {
		cp.RuleIDs[k] = struct{}{}
	}
	for k := range g.Severities {
		cp.Severities[k] = struct{}{}
	}
	for k := range g.Tags {
		cp.Tags[k] = struct{}{}
	}
	return cp
}
