package services

import (
	"context"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/metricstore"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
)

// Pipeline is the evaluation path a metric push travels: store the snapshot,
// evaluate the rules, raise alerts, correlate what opened. It implements
// both MetricSink for the target state machine and ConditionChecker for the
// suppression sweeper.
type Pipeline struct {
	store       *metricstore.Store
	rules       *RuleEngine
	alerts      *AlertService
	correlation *CorrelationService
	logger      *logger.Logger
}

// NewPipeline wires the evaluation path and registers itself as the alert
// service's condition checker.
func NewPipeline(store *metricstore.Store, rules *RuleEngine, alerts *AlertService, correlation *CorrelationService, log *logger.Logger) *Pipeline {
	p := &Pipeline{
		store:       store,
		rules:       rules,
		alerts:      alerts,
		correlation: correlation,
		logger:      log,
	}
	alerts.SetConditionChecker(p)
	return p
}

// PushMetrics ingests a metric map for a target and runs it through rule
// evaluation. Implements the MetricSink used by the target state machine and
// is the entry point for external collectors.
func (p *Pipeline) PushMetrics(ctx context.Context, targetID string, values map[string]float64, ts time.Time) {
	p.store.Push(targetID, values, ts)

	snap, ok := p.store.Get(targetID)
	if !ok {
		return
	}
	drafts := p.rules.Evaluate(ctx, targetID, snap.Values)
	for _, d := range drafts {
		a, err := p.alerts.Create(ctx, d)
		if err != nil {
			p.logger.WithFields(map[string]interface{}{
				"rule_id":   d.RuleID,
				"target_id": d.TargetID,
			}).ErrorWithErr(err, "Failed to create alert")
			continue
		}
		if a.State != alert.StateOpen || a.CorrelationID != "" {
			continue
		}
		if _, err := p.correlation.Correlate(ctx, a); err != nil {
			p.logger.WithFields(map[string]interface{}{
				"alert_id": a.ID,
			}).ErrorWithErr(err, "Failed to correlate alert")
		}
	}
}

// ConditionHolds reports whether a rule's condition is instantaneously true
// for a target's current snapshot. Used when deciding whether a suppressed
// alert should surface. A missing snapshot means the condition lapsed.
func (p *Pipeline) ConditionHolds(_ context.Context, ruleID, targetID string) bool {
	snap, ok := p.store.Get(targetID)
	if !ok {
		return false
	}
	return p.rules.ConditionHolds(ruleID, snap.Values)
}
