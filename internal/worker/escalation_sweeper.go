package worker

import (
	"context"
	"sync"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/domain/escalation"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/services"
)

// EscalationSweeper periodically advances unacknowledged alerts through
// their escalation policies. Escalation is driven by alert age, so a missed
// tick only delays an advance, never loses one.
type EscalationSweeper struct {
	alerts   *services.AlertService
	interval time.Duration
	logger   *logger.Logger

	mu       sync.RWMutex
	policies []*escalation.Policy

	now func() time.Time
}

// NewEscalationSweeper creates the sweeper. interval <= 0 defaults to 30s.
func NewEscalationSweeper(alerts *services.AlertService, interval time.Duration, log *logger.Logger) *EscalationSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &EscalationSweeper{
		alerts:   alerts,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// SetPolicies replaces the loaded escalation policies.
func (s *EscalationSweeper) SetPolicies(policies []*escalation.Policy) {
	s.mu.Lock()
	s.policies = policies
	s.mu.Unlock()
}

// Start runs the sweep loop until ctx is cancelled.
func (s *EscalationSweeper) Start(ctx context.Context) {
	s.logger.Info("Starting escalation sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Escalation sweeper stopped")
			return
		}
	}
}

// SweepOnce advances every eligible alert once. A failure on one alert is
// logged and does not stop the pass.
func (s *EscalationSweeper) SweepOnce(ctx context.Context) {
	candidates, err := s.eligible(ctx)
	if err != nil {
		s.logger.ErrorWithErr(err, "Escalation sweep failed to list alerts")
		return
	}

	now := s.now()
	for _, a := range candidates {
		if err := s.sweepAlert(ctx, a, now); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": a.ID,
			}).ErrorWithErr(err, "Failed to escalate alert")
		}
	}
}

func (s *EscalationSweeper) eligible(ctx context.Context) ([]*alert.Alert, error) {
	open, err := s.alerts.List(ctx, alert.Filter{State: alert.StateOpen})
	if err != nil {
		return nil, err
	}
	escalated, err := s.alerts.List(ctx, alert.Filter{State: alert.StateEscalated})
	if err != nil {
		return nil, err
	}
	return append(open, escalated...), nil
}

func (s *EscalationSweeper) sweepAlert(ctx context.Context, a *alert.Alert, now time.Time) error {
	policy := s.policyFor(a.Severity)
	if policy == nil {
		return nil
	}

	level := policy.LevelFor(now.Sub(a.CreatedAt))
	if level <= a.EscalationLevel {
		return nil
	}

	channels := policy.Levels[level].Channels
	_, err := s.alerts.Escalate(ctx, a.ID, level, channels)
	return err
}

func (s *EscalationSweeper) policyFor(severity string) *escalation.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.Enabled && p.AppliesTo(severity) {
			return p
		}
	}
	return nil
}
