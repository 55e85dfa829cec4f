package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/domain/suppression"
	"github.com/vibhukrishnas/sams-core/internal/events"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/pkg/metrics"
)

// Archiver persists terminal alerts. Implemented by the sqlite archive;
// archiving is best-effort and never blocks a resolution.
type Archiver interface {
	StoreResolved(ctx context.Context, a *alert.Alert) error
	StoreEscalation(ctx context.Context, alertID string, level int, severity string, at time.Time) error
}

// ConditionChecker re-checks whether the condition behind an alert still
// holds. Implemented by the evaluation pipeline.
type ConditionChecker interface {
	ConditionHolds(ctx context.Context, ruleID, targetID string) bool
}

// AlertService is the alert lifecycle manager. All alert creation and state
// transitions run through it; the create path serializes the dedup lookup
// with the insert so concurrent triggers cannot produce duplicates.
type AlertService struct {
	repo    alert.Repository
	bus     *events.Bus
	logger  *logger.Logger
	archive Archiver
	checker ConditionChecker

	createMu sync.Mutex

	defsMu  sync.RWMutex
	windows map[string]*suppression.MaintenanceWindow
	rules   map[string]*suppression.Rule

	now func() time.Time
}

// NewAlertService creates the lifecycle manager. archive may be nil.
func NewAlertService(repo alert.Repository, bus *events.Bus, archive Archiver, log *logger.Logger) *AlertService {
	return &AlertService{
		repo:    repo,
		bus:     bus,
		logger:  log,
		archive: archive,
		windows: make(map[string]*suppression.MaintenanceWindow),
		rules:   make(map[string]*suppression.Rule),
		now:     time.Now,
	}
}

// SetConditionChecker wires the pipeline used to re-check suppressed alerts.
func (s *AlertService) SetConditionChecker(c ConditionChecker) {
	s.checker = c
}

// SetMaintenanceWindows replaces the active maintenance windows. Recurring
// schedules are compiled here; an uncompilable window is rejected.
func (s *AlertService) SetMaintenanceWindows(windows []*suppression.MaintenanceWindow) error {
	next := make(map[string]*suppression.MaintenanceWindow, len(windows))
	for _, w := range windows {
		if err := w.Compile(); err != nil {
			return errors.ValidationError("invalid maintenance window schedule", map[string]string{
				"window": w.ID, "schedule": w.Schedule,
			})
		}
		next[w.ID] = w
	}
	s.defsMu.Lock()
	s.windows = next
	s.defsMu.Unlock()
	return nil
}

// SetSuppressionRules replaces the active suppression rules.
func (s *AlertService) SetSuppressionRules(rules []*suppression.Rule) {
	next := make(map[string]*suppression.Rule, len(rules))
	for _, r := range rules {
		next[r.ID] = r
	}
	s.defsMu.Lock()
	s.rules = next
	s.defsMu.Unlock()
}

// Create turns a draft into an alert. If the draft matches an active
// maintenance window or suppression rule the alert starts Suppressed,
// otherwise Open. When a live alert already covers the (rule, target) pair
// the existing alert is returned unchanged.
func (s *AlertService) Create(ctx context.Context, d alert.Draft) (*alert.Alert, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	existing, err := s.repo.FindNonTerminal(ctx, d.RuleID, d.TargetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.RecordDedupSuppressed()
		return existing, nil
	}

	now := s.now()
	a := &alert.Alert{
		ID:          uuid.New().String(),
		RuleID:      d.RuleID,
		TargetID:    d.TargetID,
		Severity:    d.Severity,
		State:       alert.StateOpen,
		Message:     d.Message,
		MetricValue: d.MetricValue,
		Tags:        d.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if by, until, suppressed := s.matchSuppression(d, now); suppressed {
		a.State = alert.StateSuppressed
		a.SuppressedBy = by
		a.SuppressedUntil = until
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	metrics.RecordAlertCreated(a.Severity, a.State)
	s.updateActiveGauges(ctx)

	s.logger.WithFields(map[string]interface{}{
		"alert_id":  a.ID,
		"rule_id":   a.RuleID,
		"target_id": a.TargetID,
		"severity":  a.Severity,
		"state":     a.State,
	}).Info("Alert created")

	if a.State == alert.StateOpen {
		s.bus.Publish(events.Event{
			Type:     events.TypeAlertCreated,
			AlertID:  a.ID,
			RuleID:   a.RuleID,
			TargetID: a.TargetID,
			Severity: a.Severity,
			State:    a.State,
			Message:  a.Message,
		})
	}

	cp := *a
	return &cp, nil
}

func (s *AlertService) matchSuppression(d alert.Draft, now time.Time) (by string, until time.Time, ok bool) {
	s.defsMu.RLock()
	defer s.defsMu.RUnlock()

	for _, w := range s.windows {
		if !w.Criteria.Matches(d.RuleID, d.TargetID, d.Severity, d.Tags) {
			continue
		}
		if active, end := w.ActiveAt(now); active {
			return w.ID, end, true
		}
	}
	for _, r := range s.rules {
		if r.Enabled && r.Criteria.Matches(d.RuleID, d.TargetID, d.Severity, d.Tags) {
			// Rule-based suppression has no end time; the suppression
			// sweeper re-checks it periodically.
			return r.ID, time.Time{}, true
		}
	}
	return "", time.Time{}, false
}

// Acknowledge moves an alert from Open or Escalated to Acknowledged.
func (s *AlertService) Acknowledge(ctx context.Context, id, actor string) (*alert.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.State != alert.StateOpen && a.State != alert.StateEscalated {
		return nil, errors.InvalidTransition(a.State, alert.StateAcknowledged)
	}

	now := s.now()
	a.State = alert.StateAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = actor
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"actor":    actor,
	}).Info("Alert acknowledged")

	s.bus.Publish(events.Event{
		Type:     events.TypeAlertAcknowledged,
		AlertID:  a.ID,
		RuleID:   a.RuleID,
		TargetID: a.TargetID,
		Severity: a.Severity,
		State:    a.State,
		Actor:    actor,
	})
	s.updateActiveGauges(ctx)

	cp := *a
	return &cp, nil
}

// Resolve terminates an alert from any non-resolved state.
func (s *AlertService) Resolve(ctx context.Context, id, actor, note string) (*alert.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.State == alert.StateResolved {
		return nil, errors.InvalidTransition(alert.StateResolved, alert.StateResolved)
	}

	now := s.now()
	a.State = alert.StateResolved
	a.ResolvedAt = &now
	a.ResolvedBy = actor
	a.ResolutionNote = note
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.StoreResolved(ctx, a); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": a.ID,
			}).ErrorWithErr(err, "Failed to archive resolved alert")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"actor":    actor,
	}).Info("Alert resolved")

	s.bus.Publish(events.Event{
		Type:     events.TypeAlertResolved,
		AlertID:  a.ID,
		RuleID:   a.RuleID,
		TargetID: a.TargetID,
		Severity: a.Severity,
		State:    a.State,
		Actor:    actor,
		Message:  note,
	})
	s.updateActiveGauges(ctx)

	cp := *a
	return &cp, nil
}

// Escalate advances an alert to a higher escalation level. Only open or
// already escalated alerts advance; acknowledging an alert freezes its
// escalation. Levels move forward only.
func (s *AlertService) Escalate(ctx context.Context, id string, level int, channels []string) (*alert.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.State != alert.StateOpen && a.State != alert.StateEscalated {
		return nil, errors.InvalidTransition(a.State, alert.StateEscalated)
	}
	if level <= a.EscalationLevel {
		return a, nil
	}

	now := s.now()
	a.State = alert.StateEscalated
	a.EscalationLevel = level
	a.EscalatedAt = &now
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.StoreEscalation(ctx, a.ID, level, a.Severity, now); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": a.ID,
			}).ErrorWithErr(err, "Failed to archive escalation")
		}
	}

	metrics.RecordEscalation(a.Severity)
	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"level":    level,
		"severity": a.Severity,
	}).Warn("Alert escalated")

	s.bus.Publish(events.Event{
		Type:            events.TypeAlertEscalated,
		AlertID:         a.ID,
		RuleID:          a.RuleID,
		TargetID:        a.TargetID,
		Severity:        a.Severity,
		State:           a.State,
		EscalationLevel: level,
		Channels:        channels,
		Message:         a.Message,
	})
	s.updateActiveGauges(ctx)

	cp := *a
	return &cp, nil
}

// ReEvaluateSuppressed decides what happens to a suppressed alert: stay
// suppressed while the window or rule still applies, surface as Open when
// suppression ended and the condition still holds, or be discarded when the
// condition lapsed. Returns the alert when it surfaced, nil otherwise.
func (s *AlertService) ReEvaluateSuppressed(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.State != alert.StateSuppressed {
		return nil, nil
	}

	now := s.now()
	if s.stillSuppressed(a, now) {
		return nil, nil
	}

	if s.checker != nil && s.checker.ConditionHolds(ctx, a.RuleID, a.TargetID) {
		a.State = alert.StateOpen
		a.SuppressedUntil = time.Time{}
		a.SuppressedBy = ""
		a.UpdatedAt = now
		if err := s.repo.Update(ctx, a); err != nil {
			return nil, err
		}

		s.logger.WithFields(map[string]interface{}{
			"alert_id": a.ID,
		}).Info("Suppressed alert resurfaced")

		s.bus.Publish(events.Event{
			Type:     events.TypeAlertCreated,
			AlertID:  a.ID,
			RuleID:   a.RuleID,
			TargetID: a.TargetID,
			Severity: a.Severity,
			State:    a.State,
			Message:  a.Message,
		})
		s.updateActiveGauges(ctx)

		cp := *a
		return &cp, nil
	}

	// Condition no longer holds: the suppressed alert never surfaces.
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
	}).Debug("Suppressed alert discarded, condition lapsed")
	return nil, nil
}

func (s *AlertService) stillSuppressed(a *alert.Alert, now time.Time) bool {
	s.defsMu.RLock()
	defer s.defsMu.RUnlock()

	if w, ok := s.windows[a.SuppressedBy]; ok {
		if active, _ := w.ActiveAt(now); active {
			return true
		}
		return false
	}
	if r, ok := s.rules[a.SuppressedBy]; ok {
		return r.Enabled && r.Criteria.Matches(a.RuleID, a.TargetID, a.Severity, a.Tags)
	}
	// Window or rule definition disappeared: suppression ended.
	if !a.SuppressedUntil.IsZero() && now.Before(a.SuppressedUntil) {
		return true
	}
	return false
}

// Get retrieves an alert by ID.
func (s *AlertService) Get(ctx context.Context, id string) (*alert.Alert, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves alerts matching a filter.
func (s *AlertService) List(ctx context.Context, filter alert.Filter) ([]*alert.Alert, error) {
	return s.repo.List(ctx, filter)
}

// Summary counts alerts by state.
func (s *AlertService) Summary(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByState(ctx)
}

func (s *AlertService) updateActiveGauges(ctx context.Context) {
	all, err := s.repo.List(ctx, alert.Filter{})
	if err != nil {
		return
	}
	counts := map[string]int{
		alert.SeverityCritical: 0,
		alert.SeverityHigh:     0,
		alert.SeverityMedium:   0,
		alert.SeverityLow:      0,
		alert.SeverityInfo:     0,
	}
	for _, a := range all {
		if a.IsActive() {
			counts[a.Severity]++
		}
	}
	for sev, n := range counts {
		metrics.SetActiveAlerts(sev, n)
	}
}
