package services

import (
	"context"
	"testing"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/probe"
	"github.com/vibhukrishnas/sams-core/internal/repository/memory"
	"github.com/vibhukrishnas/sams-core/internal/testutil"
)

func newTestTargetService(t *testing.T, sink MetricSink) (*TargetService, *events.Bus) {
	t.Helper()
	log := testutil.NewTestLogger()
	bus := events.NewBus(log)
	t.Cleanup(bus.Close)
	return NewTargetService(memory.NewTargetRepository(), sink, bus, log), bus
}

func pingTarget(id string, maxRetries int) *target.Target {
	return &target.Target{
		ID:         id,
		Name:       id,
		Address:    "198.51.100.10",
		Probe:      target.ProbeConfig{Method: target.MethodPing},
		MaxRetries: maxRetries,
		Enabled:    true,
	}
}

func result(id string, success bool) probe.Result {
	res := probe.Result{
		TargetID:  id,
		Method:    target.MethodPing,
		Success:   success,
		Latency:   12 * time.Millisecond,
		Timestamp: time.Now(),
	}
	if !success {
		res.ErrorKind = probe.ErrTimeout
		res.Message = "no reply"
	}
	return res
}

func TestTargetService_FailureHysteresis(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		results    []bool
		wantState  target.State
	}{
		{
			name:       "first failure goes to warning",
			maxRetries: 3,
			results:    []bool{false},
			wantState:  target.StateWarning,
		},
		{
			name:       "below threshold stays warning",
			maxRetries: 3,
			results:    []bool{false, false},
			wantState:  target.StateWarning,
		},
		{
			name:       "threshold reached goes offline",
			maxRetries: 3,
			results:    []bool{false, false, false},
			wantState:  target.StateOffline,
		},
		{
			name:       "default threshold applies when unset",
			maxRetries: 0,
			results:    []bool{false, false, false},
			wantState:  target.StateOffline,
		},
		{
			name:       "custom threshold of one",
			maxRetries: 1,
			results:    []bool{false},
			wantState:  target.StateOffline,
		},
		{
			name:       "success resets the failure streak",
			maxRetries: 3,
			results:    []bool{false, false, true, false},
			wantState:  target.StateWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newTestTargetService(t, nil)

			tgt := pingTarget("srv-1", tt.maxRetries)
			if err := svc.Register(ctx, tgt); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			for _, ok := range tt.results {
				if err := svc.ApplyResult(ctx, result("srv-1", ok)); err != nil {
					t.Fatalf("ApplyResult() error = %v", err)
				}
			}

			got, err := svc.Get(ctx, "srv-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.State != tt.wantState {
				t.Errorf("state = %s, want %s", got.State, tt.wantState)
			}
		})
	}
}

func TestTargetService_SingleSuccessRecovers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTargetService(t, nil)

	if err := svc.Register(ctx, pingTarget("srv-1", 3)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Drive the target well past the offline threshold.
	for i := 0; i < 10; i++ {
		if err := svc.ApplyResult(ctx, result("srv-1", false)); err != nil {
			t.Fatalf("ApplyResult() error = %v", err)
		}
	}
	got, _ := svc.Get(ctx, "srv-1")
	if got.State != target.StateOffline {
		t.Fatalf("state after failures = %s, want offline", got.State)
	}

	if err := svc.ApplyResult(ctx, result("srv-1", true)); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	got, _ = svc.Get(ctx, "srv-1")
	if got.State != target.StateOnline {
		t.Errorf("state after recovery = %s, want online", got.State)
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got.ConsecutiveFailures)
	}
}

func TestTargetService_StateChangeEvents(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestTargetService(t, nil)

	rec := &testutil.EventRecorder{}
	bus.Subscribe(rec)

	if err := svc.Register(ctx, pingTarget("srv-1", 2)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// unknown -> warning -> offline, then two more failures with no change.
	for i := 0; i < 4; i++ {
		if err := svc.ApplyResult(ctx, result("srv-1", false)); err != nil {
			t.Fatalf("ApplyResult() error = %v", err)
		}
	}

	if _, ok := rec.WaitFor(time.Second, func(e events.Event) bool {
		return e.Type == events.TypeTargetStateChanged && e.State == string(target.StateOffline)
	}); !ok {
		t.Fatal("no offline state change event delivered")
	}

	changes := 0
	for _, e := range rec.Events() {
		if e.Type == events.TypeTargetStateChanged {
			changes++
		}
	}
	if changes != 2 {
		t.Errorf("state change events = %d, want 2 (warning, offline)", changes)
	}
}

func TestTargetService_PushesStatusMetrics(t *testing.T) {
	ctx := context.Background()
	sink := &testutil.MetricSinkRecorder{}
	svc, _ := newTestTargetService(t, sink)

	if err := svc.Register(ctx, pingTarget("srv-1", 1)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.ApplyResult(ctx, result("srv-1", false)); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	push := sink.Last()
	if push == nil {
		t.Fatal("no metrics pushed")
	}
	if got := push.Values["status"]; got != 0 {
		t.Errorf("status = %v, want 0 (offline)", got)
	}
	if got := push.Values["status_offline"]; got != 1 {
		t.Errorf("status_offline = %v, want 1", got)
	}

	if err := svc.ApplyResult(ctx, result("srv-1", true)); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	push = sink.Last()
	if got := push.Values["status"]; got != 2 {
		t.Errorf("status = %v, want 2 (online)", got)
	}
	if got := push.Values["status_offline"]; got != 0 {
		t.Errorf("status_offline = %v, want 0", got)
	}
	if _, ok := push.Values["check_latency_ms"]; !ok {
		t.Error("check_latency_ms missing from push")
	}
}

func TestTargetService_StateSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTargetService(t, nil)

	for _, id := range []string{"a", "b", "c"} {
		if err := svc.Register(ctx, pingTarget(id, 1)); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	if err := svc.ApplyResult(ctx, result("a", true)); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}
	if err := svc.ApplyResult(ctx, result("b", false)); err != nil {
		t.Fatalf("ApplyResult() error = %v", err)
	}

	counts, err := svc.StateSummary(ctx)
	if err != nil {
		t.Fatalf("StateSummary() error = %v", err)
	}
	want := map[target.State]int{
		target.StateOnline:  1,
		target.StateOffline: 1,
		target.StateUnknown: 1,
	}
	for st, n := range want {
		if counts[st] != n {
			t.Errorf("counts[%s] = %d, want %d", st, counts[st], n)
		}
	}
}
