package worker

import (
	"context"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/services"
)

// SuppressionSweeper periodically re-evaluates suppressed alerts: alerts
// whose window ended either surface as open (condition still true) or are
// discarded (condition lapsed). Surfaced alerts go through correlation like
// freshly created ones.
type SuppressionSweeper struct {
	alerts      *services.AlertService
	correlation *services.CorrelationService
	interval    time.Duration
	logger      *logger.Logger
}

// NewSuppressionSweeper creates the sweeper. interval <= 0 defaults to 1m.
func NewSuppressionSweeper(alerts *services.AlertService, correlation *services.CorrelationService, interval time.Duration, log *logger.Logger) *SuppressionSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SuppressionSweeper{
		alerts:      alerts,
		correlation: correlation,
		interval:    interval,
		logger:      log,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *SuppressionSweeper) Start(ctx context.Context) {
	s.logger.Info("Starting suppression sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Suppression sweeper stopped")
			return
		}
	}
}

// SweepOnce re-evaluates every suppressed alert once.
func (s *SuppressionSweeper) SweepOnce(ctx context.Context) {
	suppressed, err := s.alerts.List(ctx, alert.Filter{State: alert.StateSuppressed})
	if err != nil {
		s.logger.ErrorWithErr(err, "Suppression sweep failed to list alerts")
		return
	}

	for _, a := range suppressed {
		surfaced, err := s.alerts.ReEvaluateSuppressed(ctx, a.ID)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": a.ID,
			}).ErrorWithErr(err, "Failed to re-evaluate suppressed alert")
			continue
		}
		if surfaced == nil || s.correlation == nil {
			continue
		}
		if _, err := s.correlation.Correlate(ctx, surfaced); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": surfaced.ID,
			}).ErrorWithErr(err, "Failed to correlate surfaced alert")
		}
	}
}
