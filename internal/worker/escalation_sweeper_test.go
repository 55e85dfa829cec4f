package worker

import (
	"context"
	"testing"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/domain/escalation"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/repository/memory"
	"github.com/vibhukrishnas/sams-core/internal/services"
	"github.com/vibhukrishnas/sams-core/internal/testutil"
)

func pagePolicy() *escalation.Policy {
	return &escalation.Policy{
		ID:         "page-critical",
		Name:       "page on critical",
		Severities: []string{alert.SeverityCritical},
		Levels: []escalation.Level{
			{Delay: 0, Channels: []string{"slack"}},
			{Delay: 15 * time.Minute, Channels: []string{"pager"}},
			{Delay: time.Hour, Channels: []string{"phone"}},
		},
		Enabled: true,
	}
}

func newSweeperFixture(t *testing.T) (*EscalationSweeper, *services.AlertService, *events.Bus) {
	t.Helper()
	log := testutil.NewTestLogger()
	bus := events.NewBus(log)
	t.Cleanup(bus.Close)

	alerts := services.NewAlertService(memory.NewAlertRepository(), bus, nil, log)
	sweeper := NewEscalationSweeper(alerts, time.Second, log)
	sweeper.SetPolicies([]*escalation.Policy{pagePolicy()})
	return sweeper, alerts, bus
}

func criticalDraft() alert.Draft {
	return alert.Draft{
		RuleID:   "disk-full",
		TargetID: "srv-1",
		Severity: alert.SeverityCritical,
		Message:  "disk full",
	}
}

func TestEscalationSweeper_AdvancesByAge(t *testing.T) {
	tests := []struct {
		name      string
		age       time.Duration
		wantLevel int
		wantState string
	}{
		{name: "fresh alert stays at level zero", age: time.Minute, wantLevel: 0, wantState: alert.StateOpen},
		{name: "first delay elapsed", age: 16 * time.Minute, wantLevel: 1, wantState: alert.StateEscalated},
		{name: "second delay elapsed", age: 2 * time.Hour, wantLevel: 2, wantState: alert.StateEscalated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sweeper, alerts, _ := newSweeperFixture(t)

			a, err := alerts.Create(ctx, criticalDraft())
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			sweeper.now = func() time.Time { return a.CreatedAt.Add(tt.age) }
			sweeper.SweepOnce(ctx)

			got, err := alerts.Get(ctx, a.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.EscalationLevel != tt.wantLevel {
				t.Errorf("EscalationLevel = %d, want %d", got.EscalationLevel, tt.wantLevel)
			}
			if got.State != tt.wantState {
				t.Errorf("State = %s, want %s", got.State, tt.wantState)
			}
		})
	}
}

func TestEscalationSweeper_SkipsLevelsWhenLate(t *testing.T) {
	ctx := context.Background()
	sweeper, alerts, _ := newSweeperFixture(t)

	a, err := alerts.Create(ctx, criticalDraft())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A sweeper that was down for two hours jumps straight to the highest
	// reachable level.
	sweeper.now = func() time.Time { return a.CreatedAt.Add(3 * time.Hour) }
	sweeper.SweepOnce(ctx)

	got, _ := alerts.Get(ctx, a.ID)
	if got.EscalationLevel != 2 {
		t.Errorf("EscalationLevel = %d, want 2", got.EscalationLevel)
	}
}

func TestEscalationSweeper_AcknowledgeFreezesEscalation(t *testing.T) {
	ctx := context.Background()
	sweeper, alerts, _ := newSweeperFixture(t)

	a, err := alerts.Create(ctx, criticalDraft())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := alerts.Acknowledge(ctx, a.ID, "ops"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	sweeper.now = func() time.Time { return a.CreatedAt.Add(2 * time.Hour) }
	sweeper.SweepOnce(ctx)

	got, _ := alerts.Get(ctx, a.ID)
	if got.EscalationLevel != 0 {
		t.Errorf("EscalationLevel = %d, want 0 after acknowledge", got.EscalationLevel)
	}
	if got.State != alert.StateAcknowledged {
		t.Errorf("State = %s, want acknowledged", got.State)
	}
}

func TestEscalationSweeper_IgnoresUncoveredSeverities(t *testing.T) {
	ctx := context.Background()
	sweeper, alerts, _ := newSweeperFixture(t)

	d := criticalDraft()
	d.Severity = alert.SeverityLow
	a, err := alerts.Create(ctx, d)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sweeper.now = func() time.Time { return a.CreatedAt.Add(2 * time.Hour) }
	sweeper.SweepOnce(ctx)

	got, _ := alerts.Get(ctx, a.ID)
	if got.EscalationLevel != 0 || got.State != alert.StateOpen {
		t.Errorf("low severity alert changed: (%s, %d)", got.State, got.EscalationLevel)
	}
}

func TestEscalationSweeper_EmitsChannelEvent(t *testing.T) {
	ctx := context.Background()
	sweeper, alerts, bus := newSweeperFixture(t)

	rec := &testutil.EventRecorder{}
	bus.Subscribe(rec)

	a, err := alerts.Create(ctx, criticalDraft())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sweeper.now = func() time.Time { return a.CreatedAt.Add(20 * time.Minute) }
	sweeper.SweepOnce(ctx)

	e, ok := rec.WaitFor(time.Second, func(e events.Event) bool {
		return e.Type == events.TypeAlertEscalated && e.AlertID == a.ID
	})
	if !ok {
		t.Fatal("no escalation event delivered")
	}
	if e.EscalationLevel != 1 {
		t.Errorf("event level = %d, want 1", e.EscalationLevel)
	}
	if len(e.Channels) != 1 || e.Channels[0] != "pager" {
		t.Errorf("event channels = %v, want [pager]", e.Channels)
	}
}
