package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/domain/target"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/probe"
)

// NewTestLogger returns a quiet logger for tests.
func NewTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

// StubProber is a mock implementation of probe.Prober. Results are returned
// in order; the last one repeats once the script runs out.
type StubProber struct {
	Results []probe.Result
	Calls   int
}

func (p *StubProber) Probe(ctx context.Context, t *target.Target) probe.Result {
	i := p.Calls
	if i >= len(p.Results) {
		i = len(p.Results) - 1
	}
	p.Calls++
	res := p.Results[i]
	res.TargetID = t.ID
	res.Method = t.Probe.Method
	return res
}

// PanicProber is a probe.Prober that always panics.
type PanicProber struct{}

func (PanicProber) Probe(ctx context.Context, t *target.Target) probe.Result {
	panic("probe exploded")
}

// EventRecorder is an events.Sink that captures everything delivered to it.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *EventRecorder) Deliver(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a snapshot of the recorded events.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// WaitFor blocks until an event matching the predicate arrives or the
// timeout expires, returning the match and whether one was found.
func (r *EventRecorder) WaitFor(timeout time.Duration, match func(events.Event) bool) (events.Event, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range r.Events() {
			if match(e) {
				return e, true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return events.Event{}, false
}

// MetricSinkRecorder captures metric pushes, for asserting what the target
// state machine feeds into the pipeline.
type MetricSinkRecorder struct {
	mu     sync.Mutex
	Pushes []MetricPush
}

// MetricPush is one recorded PushMetrics call.
type MetricPush struct {
	TargetID string
	Values   map[string]float64
	At       time.Time
}

func (r *MetricSinkRecorder) PushMetrics(ctx context.Context, targetID string, values map[string]float64, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	r.Pushes = append(r.Pushes, MetricPush{TargetID: targetID, Values: cp, At: ts})
}

// Last returns the most recent push, or nil when none happened.
func (r *MetricSinkRecorder) Last() *MetricPush {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Pushes) == 0 {
		return nil
	}
	p := r.Pushes[len(r.Pushes)-1]
	return &p
}

// StubConditionChecker reports a fixed per-rule condition answer.
type StubConditionChecker struct {
	Holds map[string]bool
}

func (c *StubConditionChecker) ConditionHolds(ctx context.Context, ruleID, targetID string) bool {
	return c.Holds[ruleID]
}

// StubArchiver records archive writes and can simulate failures.
type StubArchiver struct {
	mu          sync.Mutex
	Resolved    []*alert.Alert
	Escalations []ArchivedEscalation
	Err         error
}

// ArchivedEscalation is one recorded StoreEscalation call.
type ArchivedEscalation struct {
	AlertID  string
	Level    int
	Severity string
	At       time.Time
}

func (a *StubArchiver) StoreResolved(ctx context.Context, al *alert.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	cp := *al
	a.Resolved = append(a.Resolved, &cp)
	return nil
}

func (a *StubArchiver) StoreEscalation(ctx context.Context, alertID string, level int, severity string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Escalations = append(a.Escalations, ArchivedEscalation{AlertID: alertID, Level: level, Severity: severity, At: at})
	return nil
}
