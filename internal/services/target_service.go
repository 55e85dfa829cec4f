package services

import (
	"context"
	"sync"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/pkg/metrics"
	"github.com/vibhukrishnas/sams-core/internal/probe"
)

// MetricSink receives metric pushes. Implemented by the evaluation pipeline;
// the state machine feeds its synthetic status metric through it.
type MetricSink interface {
	PushMetrics(ctx context.Context, targetID string, values map[string]float64, ts time.Time)
}

// TargetService is the target state machine. It owns every target's
// reachability state: health check results come in, exactly one transition
// evaluation comes out.
type TargetService struct {
	repo   target.Repository
	sink   MetricSink
	bus    *events.Bus
	logger *logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewTargetService creates the state machine over a target repository.
func NewTargetService(repo target.Repository, sink MetricSink, bus *events.Bus, log *logger.Logger) *TargetService {
	return &TargetService{
		repo:   repo,
		sink:   sink,
		bus:    bus,
		logger: log,
		now:    time.Now,
	}
}

// Register adds a target in the Unknown state.
func (s *TargetService) Register(ctx context.Context, t *target.Target) error {
	if t.State == "" {
		t.State = target.StateUnknown
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"target_id": t.ID,
		"address":   t.Address,
		"method":    t.Probe.Method,
	}).Info("Target registered")
	return nil
}

// Unregister removes a target.
func (s *TargetService) Unregister(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Get retrieves a target with its current state.
func (s *TargetService) Get(ctx context.Context, id string) (*target.Target, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves all targets.
func (s *TargetService) List(ctx context.Context) ([]*target.Target, error) {
	return s.repo.List(ctx)
}

// ApplyResult runs one transition evaluation for a health check result.
//
// Success always yields Online no matter how many failures preceded it.
// Failures accumulate: below the target's retry threshold the target is
// Warning, at or above it Offline. The synthetic status metric is pushed on
// every result so rule sustain windows keep seeing fresh data.
func (s *TargetService) ApplyResult(ctx context.Context, res probe.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.GetByID(ctx, res.TargetID)
	if err != nil {
		return err
	}

	prev := t.State
	t.LastCheckAt = res.Timestamp

	var next target.State
	if res.Success {
		t.ConsecutiveFailures = 0
		t.ConsecutiveSuccesses++
		next = target.StateOnline
	} else {
		t.ConsecutiveSuccesses = 0
		t.ConsecutiveFailures++
		threshold := t.MaxRetries
		if threshold <= 0 {
			threshold = target.DefaultMaxRetries
		}
		if t.ConsecutiveFailures >= threshold {
			next = target.StateOffline
		} else {
			next = target.StateWarning
		}
	}

	if next != prev {
		t.State = next
		t.LastStateChangeAt = s.now()
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return err
	}

	metrics.RecordCheck(res.Method, res.Success, res.Latency)

	if next != prev {
		s.logger.WithFields(map[string]interface{}{
			"target_id":  t.ID,
			"from":       string(prev),
			"to":         string(next),
			"failures":   t.ConsecutiveFailures,
			"error_kind": string(res.ErrorKind),
		}).Info("Target state changed")

		s.bus.Publish(events.Event{
			Type:          events.TypeTargetStateChanged,
			TargetID:      t.ID,
			State:         string(next),
			PreviousState: string(prev),
			Message:       res.Message,
		})
		s.publishStateGauges(ctx)
	}

	if s.sink != nil {
		offline := 0.0
		if next == target.StateOffline {
			offline = 1
		}
		s.sink.PushMetrics(ctx, t.ID, map[string]float64{
			"status":           target.StatusValue(next),
			"status_offline":   offline,
			"check_latency_ms": float64(res.Latency.Milliseconds()),
		}, res.Timestamp)
	}

	return nil
}

// StateSummary counts targets per state.
func (s *TargetService) StateSummary(ctx context.Context) (map[target.State]int, error) {
	targets, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[target.State]int)
	for _, t := range targets {
		counts[t.State]++
	}
	return counts, nil
}

func (s *TargetService) publishStateGauges(ctx context.Context) {
	counts, err := s.StateSummary(ctx)
	if err != nil {
		return
	}
	byState := make(map[string]int, len(counts))
	for st, n := range counts {
		byState[string(st)] = n
	}
	metrics.SetTargetStates(byState)
}
