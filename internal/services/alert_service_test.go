package services

import (
	"context"
	"testing"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/domain/suppression"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
	"github.com/vibhukrishnas/sams-core/internal/repository/memory"
	"github.com/vibhukrishnas/sams-core/internal/testutil"
)

func newTestAlertService(t *testing.T, archive Archiver) *AlertService {
	t.Helper()
	log := testutil.NewTestLogger()
	bus := events.NewBus(log)
	t.Cleanup(bus.Close)
	return NewAlertService(memory.NewAlertRepository(), bus, archive, log)
}

func cpuDraft(targetID string) alert.Draft {
	return alert.Draft{
		RuleID:      "cpu-high",
		TargetID:    targetID,
		Severity:    alert.SeverityHigh,
		Message:     "CPU high: cpu_usage_percent > 90 (observed 95)",
		MetricValue: 95,
		Tags:        []string{"compute"},
	}
}

func TestAlertService_CreateDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestAlertService(t, nil)

	first, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.State != alert.StateOpen {
		t.Fatalf("first alert state = %s, want open", first.State)
	}

	second, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate create returned new alert %s, want %s", second.ID, first.ID)
	}

	// A different target gets its own alert.
	other, err := svc.Create(ctx, cpuDraft("srv-2"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if other.ID == first.ID {
		t.Error("alerts for different targets share an ID")
	}
}

func TestAlertService_CreateAfterResolveOpensFresh(t *testing.T) {
	ctx := context.Background()
	svc := newTestAlertService(t, nil)

	first, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Resolve(ctx, first.ID, "ops", "restarted"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	second, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.ID == first.ID {
		t.Error("resolved alert blocked a fresh one")
	}
	if second.State != alert.StateOpen {
		t.Errorf("fresh alert state = %s, want open", second.State)
	}
}

func TestAlertService_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(ctx context.Context, svc *AlertService, id string) error
		action   func(ctx context.Context, svc *AlertService, id string) error
		wantCode string
	}{
		{
			name:   "acknowledge open alert",
			action: func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Acknowledge(ctx, id, "ops"); return err },
		},
		{
			name: "acknowledge escalated alert",
			prepare: func(ctx context.Context, svc *AlertService, id string) error {
				_, err := svc.Escalate(ctx, id, 1, []string{"pager"})
				return err
			},
			action: func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Acknowledge(ctx, id, "ops"); return err },
		},
		{
			name: "acknowledge twice is invalid",
			prepare: func(ctx context.Context, svc *AlertService, id string) error {
				_, err := svc.Acknowledge(ctx, id, "ops")
				return err
			},
			action:   func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Acknowledge(ctx, id, "ops"); return err },
			wantCode: errors.ErrCodeInvalidTransition,
		},
		{
			name: "acknowledge resolved alert is invalid",
			prepare: func(ctx context.Context, svc *AlertService, id string) error {
				_, err := svc.Resolve(ctx, id, "ops", "")
				return err
			},
			action:   func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Acknowledge(ctx, id, "ops"); return err },
			wantCode: errors.ErrCodeInvalidTransition,
		},
		{
			name: "resolve acknowledged alert",
			prepare: func(ctx context.Context, svc *AlertService, id string) error {
				_, err := svc.Acknowledge(ctx, id, "ops")
				return err
			},
			action: func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Resolve(ctx, id, "ops", "fixed"); return err },
		},
		{
			name: "resolve twice is invalid",
			prepare: func(ctx context.Context, svc *AlertService, id string) error {
				_, err := svc.Resolve(ctx, id, "ops", "")
				return err
			},
			action:   func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Resolve(ctx, id, "ops", ""); return err },
			wantCode: errors.ErrCodeInvalidTransition,
		},
		{
			name: "escalate acknowledged alert is invalid",
			prepare: func(ctx context.Context, svc *AlertService, id string) error {
				_, err := svc.Acknowledge(ctx, id, "ops")
				return err
			},
			action:   func(ctx context.Context, svc *AlertService, id string) error { _, err := svc.Escalate(ctx, id, 1, nil); return err },
			wantCode: errors.ErrCodeInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestAlertService(t, nil)

			a, err := svc.Create(ctx, cpuDraft("srv-1"))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if tt.prepare != nil {
				if err := tt.prepare(ctx, svc, a.ID); err != nil {
					t.Fatalf("prepare error = %v", err)
				}
			}

			err = tt.action(ctx, svc, a.ID)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("action error = %v, want nil", err)
				}
				return
			}
			if !errors.IsCode(err, tt.wantCode) {
				t.Fatalf("action error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestAlertService_UnknownAlertIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestAlertService(t, nil)

	if _, err := svc.Acknowledge(ctx, "missing", "ops"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Acknowledge(missing) error = %v, want not found", err)
	}
	if _, err := svc.Resolve(ctx, "missing", "ops", ""); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Resolve(missing) error = %v, want not found", err)
	}
}

func TestAlertService_ResolveArchives(t *testing.T) {
	ctx := context.Background()
	archive := &testutil.StubArchiver{}
	svc := newTestAlertService(t, archive)

	a, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	resolved, err := svc.Resolve(ctx, a.ID, "ops", "kernel upgrade")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if resolved.ResolvedAt == nil || resolved.ResolvedBy != "ops" {
		t.Errorf("resolution fields = (%v, %s), want set", resolved.ResolvedAt, resolved.ResolvedBy)
	}
	if len(archive.Resolved) != 1 || archive.Resolved[0].ID != a.ID {
		t.Errorf("archive got %d resolved alerts, want the resolved one", len(archive.Resolved))
	}
}

func TestAlertService_MaintenanceWindowSuppresses(t *testing.T) {
	ctx := context.Background()
	svc := newTestAlertService(t, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	window := &suppression.MaintenanceWindow{
		ID:       "mw-1",
		Name:     "srv-1 patching",
		Criteria: suppression.Criteria{TargetIDs: []string{"srv-1"}},
		StartsAt: base.Add(-time.Hour),
		EndsAt:   base.Add(time.Hour),
	}
	if err := svc.SetMaintenanceWindows([]*suppression.MaintenanceWindow{window}); err != nil {
		t.Fatalf("SetMaintenanceWindows() error = %v", err)
	}

	a, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.State != alert.StateSuppressed {
		t.Fatalf("state = %s, want suppressed", a.State)
	}
	if a.SuppressedBy != "mw-1" {
		t.Errorf("SuppressedBy = %s, want mw-1", a.SuppressedBy)
	}
	if !a.SuppressedUntil.Equal(window.EndsAt) {
		t.Errorf("SuppressedUntil = %v, want window end %v", a.SuppressedUntil, window.EndsAt)
	}

	// Targets outside the criteria open normally.
	b, err := svc.Create(ctx, cpuDraft("srv-2"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if b.State != alert.StateOpen {
		t.Errorf("uncovered target state = %s, want open", b.State)
	}
}

func TestAlertService_ReEvaluateSuppressed(t *testing.T) {
	tests := []struct {
		name        string
		holds       bool
		wantSurface bool
	}{
		{name: "condition still true surfaces as open", holds: true, wantSurface: true},
		{name: "condition lapsed discards the alert", holds: false, wantSurface: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestAlertService(t, nil)
			svc.SetConditionChecker(&testutil.StubConditionChecker{Holds: map[string]bool{"cpu-high": tt.holds}})

			base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
			now := base
			svc.now = func() time.Time { return now }

			window := &suppression.MaintenanceWindow{
				ID:       "mw-1",
				Name:     "patching",
				Criteria: suppression.Criteria{TargetIDs: []string{"srv-1"}},
				StartsAt: base.Add(-time.Hour),
				EndsAt:   base.Add(time.Hour),
			}
			if err := svc.SetMaintenanceWindows([]*suppression.MaintenanceWindow{window}); err != nil {
				t.Fatalf("SetMaintenanceWindows() error = %v", err)
			}

			a, err := svc.Create(ctx, cpuDraft("srv-1"))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if a.State != alert.StateSuppressed {
				t.Fatalf("state = %s, want suppressed", a.State)
			}

			// Still inside the window: nothing happens.
			surfaced, err := svc.ReEvaluateSuppressed(ctx, a.ID)
			if err != nil {
				t.Fatalf("ReEvaluateSuppressed() error = %v", err)
			}
			if surfaced != nil {
				t.Fatal("alert surfaced while the window is active")
			}

			// Window over.
			now = base.Add(2 * time.Hour)
			surfaced, err = svc.ReEvaluateSuppressed(ctx, a.ID)
			if err != nil {
				t.Fatalf("ReEvaluateSuppressed() error = %v", err)
			}

			if tt.wantSurface {
				if surfaced == nil {
					t.Fatal("alert did not surface")
				}
				if surfaced.State != alert.StateOpen {
					t.Errorf("surfaced state = %s, want open", surfaced.State)
				}
				return
			}
			if surfaced != nil {
				t.Fatal("lapsed alert surfaced")
			}
			if _, err := svc.Get(ctx, a.ID); !errors.IsCode(err, errors.ErrCodeNotFound) {
				t.Errorf("discarded alert Get() error = %v, want not found", err)
			}
		})
	}
}

func TestAlertService_SuppressionRule(t *testing.T) {
	ctx := context.Background()
	svc := newTestAlertService(t, nil)

	svc.SetSuppressionRules([]*suppression.Rule{{
		ID:       "quiet-info",
		Name:     "mute info alerts",
		Criteria: suppression.Criteria{Severities: []string{alert.SeverityInfo}},
		Enabled:  true,
	}})

	d := cpuDraft("srv-1")
	d.Severity = alert.SeverityInfo
	a, err := svc.Create(ctx, d)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.State != alert.StateSuppressed {
		t.Fatalf("state = %s, want suppressed", a.State)
	}
	if !a.SuppressedUntil.IsZero() {
		t.Error("rule suppression set an end time")
	}

	// Rule stays in force: re-evaluation keeps the alert suppressed.
	surfaced, err := svc.ReEvaluateSuppressed(ctx, a.ID)
	if err != nil {
		t.Fatalf("ReEvaluateSuppressed() error = %v", err)
	}
	if surfaced != nil {
		t.Error("alert surfaced while its suppression rule is enabled")
	}
}

func TestAlertService_EscalateAdvancesForwardOnly(t *testing.T) {
	ctx := context.Background()
	archive := &testutil.StubArchiver{}
	svc := newTestAlertService(t, archive)

	a, err := svc.Create(ctx, cpuDraft("srv-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	esc, err := svc.Escalate(ctx, a.ID, 1, []string{"pager"})
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if esc.State != alert.StateEscalated || esc.EscalationLevel != 1 {
		t.Fatalf("after escalate: (%s, %d), want (escalated, 1)", esc.State, esc.EscalationLevel)
	}

	// Same or lower level is a no-op.
	same, err := svc.Escalate(ctx, a.ID, 1, []string{"pager"})
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if same.EscalationLevel != 1 {
		t.Errorf("level after repeat = %d, want 1", same.EscalationLevel)
	}
	if len(archive.Escalations) != 1 {
		t.Errorf("archived escalations = %d, want 1", len(archive.Escalations))
	}

	next, err := svc.Escalate(ctx, a.ID, 2, []string{"phone"})
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if next.EscalationLevel != 2 {
		t.Errorf("level = %d, want 2", next.EscalationLevel)
	}
}

func TestAlertService_Summary(t *testing.T) {
	ctx := context.Background()
	svc := newTestAlertService(t, nil)

	a, _ := svc.Create(ctx, cpuDraft("srv-1"))
	svc.Create(ctx, cpuDraft("srv-2"))
	if _, err := svc.Acknowledge(ctx, a.ID, "ops"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}

	counts, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if counts[alert.StateOpen] != 1 || counts[alert.StateAcknowledged] != 1 {
		t.Errorf("Summary() = %v, want 1 open and 1 acknowledged", counts)
	}
}
