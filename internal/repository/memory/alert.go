package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
)

// AlertRepository is the in-memory alert store. The core runs as a single
// authoritative process, so plain maps under a RWMutex are the system of
// record; durable storage is a collaborator concern.
type AlertRepository struct {
	mu     sync.RWMutex
	alerts map[string]*alert.Alert
	// live indexes non-terminal alerts by "ruleID|targetID" for the dedup
	// lookup.
	live map[string]string
}

// NewAlertRepository creates an empty alert repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		alerts: make(map[string]*alert.Alert),
		live:   make(map[string]string),
	}
}

func liveKey(ruleID, targetID string) string {
	return ruleID + "|" + targetID
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[a.ID]; exists {
		return errors.Conflict("alert id already exists")
	}
	cp := *a
	r.alerts[a.ID] = &cp
	if !cp.IsTerminal() {
		r.live[liveKey(cp.RuleID, cp.TargetID)] = cp.ID
	}
	return nil
}

// GetByID retrieves an alert by ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, errors.NotFound("alert")
	}
	cp := *a
	return &cp, nil
}

// Update persists alert mutations and maintains the live index.
func (r *AlertRepository) Update(ctx context.Context, a *alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[a.ID]; !ok {
		return errors.NotFound("alert")
	}
	cp := *a
	r.alerts[a.ID] = &cp

	key := liveKey(cp.RuleID, cp.TargetID)
	if cp.IsTerminal() {
		if r.live[key] == cp.ID {
			delete(r.live, key)
		}
	} else {
		r.live[key] = cp.ID
	}
	return nil
}

// FindNonTerminal returns the live alert for a (rule, target) pair, or nil.
func (r *AlertRepository) FindNonTerminal(ctx context.Context, ruleID, targetID string) (*alert.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.live[liveKey(ruleID, targetID)]
	if !ok {
		return nil, nil
	}
	a := r.alerts[id]
	cp := *a
	return &cp, nil
}

// List retrieves alerts matching a filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter alert.Filter) ([]*alert.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*alert.Alert
	for _, a := range r.alerts {
		if filter.Matches(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountByState counts alerts grouped by state.
func (r *AlertRepository) CountByState(ctx context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range r.alerts {
		counts[a.State]++
	}
	return counts, nil
}

// Delete removes an alert.
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return errors.NotFound("alert")
	}
	key := liveKey(a.RuleID, a.TargetID)
	if r.live[key] == id {
		delete(r.live, key)
	}
	delete(r.alerts, id)
	return nil
}
