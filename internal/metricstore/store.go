package metricstore

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Snapshot is the latest metric set reported for a target. Values merge
// across pushes; Timestamp tracks the most recent push.
type Snapshot struct {
	TargetID  string
	Values    map[string]float64
	Timestamp time.Time
}

// Store keeps the most recent metrics per target with TTL eviction, so
// rules stop matching on data from agents that went quiet. It is the entry
// point for PushMetrics from external collectors.
type Store struct {
	cache *gocache.Cache
}

// DefaultTTL is how long a target's metrics stay evaluable without a fresh
// push.
const DefaultTTL = 5 * time.Minute

// New creates a store. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Push merges a metric map into the target's snapshot. Later pushes win on
// key collisions; the snapshot's TTL restarts on every push.
func (s *Store) Push(targetID string, metrics map[string]float64, ts time.Time) {
	if len(metrics) == 0 {
		return
	}
	snap := Snapshot{
		TargetID:  targetID,
		Values:    make(map[string]float64, len(metrics)),
		Timestamp: ts,
	}
	if prev, ok := s.cache.Get(targetID); ok {
		for k, v := range prev.(Snapshot).Values {
			snap.Values[k] = v
		}
		if ts.Before(prev.(Snapshot).Timestamp) {
			snap.Timestamp = prev.(Snapshot).Timestamp
		}
	}
	for k, v := range metrics {
		snap.Values[k] = v
	}
	s.cache.SetDefault(targetID, snap)
}

// Get returns the target's current snapshot. ok is false when nothing has
// been pushed or the snapshot aged out.
func (s *Store) Get(targetID string) (Snapshot, bool) {
	v, ok := s.cache.Get(targetID)
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// TargetIDs lists all targets with a live snapshot.
func (s *Store) TargetIDs() []string {
	items := s.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids
}
