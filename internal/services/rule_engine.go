package services

import (
	"context"
	"sync"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/domain/rule"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/pkg/metrics"
)

// RuleEngine evaluates metric snapshots against the configured rules and
// produces alert drafts. It tracks, per (rule, target), how long a condition
// has held so sustain durations gate on continuous truth rather than a
// one-shot sample.
type RuleEngine struct {
	alerts alert.Repository
	logger *logger.Logger

	mu    sync.Mutex
	rules map[string]*rule.Rule
	// since holds the condition-true-since timestamp per "ruleID|targetID",
	// reset whenever the condition lapses.
	since map[string]time.Time

	now func() time.Time
}

// NewRuleEngine creates a rule engine. The alert repository backs the dedup
// lookup; rules are injected through SetRules.
func NewRuleEngine(alerts alert.Repository, log *logger.Logger) *RuleEngine {
	return &RuleEngine{
		alerts: alerts,
		logger: log,
		rules:  make(map[string]*rule.Rule),
		since:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// SetRules replaces the active rule set. Sustain clocks are dropped for
// removed rules and for rules whose condition changed; time accrued under
// the old condition does not carry over.
func (e *RuleEngine) SetRules(rules []*rule.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*rule.Rule, len(rules))
	for _, r := range rules {
		cp := *r
		next[r.ID] = &cp
	}
	for key := range e.since {
		cur, ok := next[ruleIDFromKey(key)]
		if !ok || conditionChanged(e.rules[cur.ID], cur) {
			delete(e.since, key)
		}
	}
	e.rules = next
}

// conditionChanged reports whether the firing condition differs between two
// revisions of a rule.
func conditionChanged(prev, cur *rule.Rule) bool {
	if prev == nil {
		return true
	}
	return prev.Metric != cur.Metric || prev.Operator != cur.Operator || prev.Threshold != cur.Threshold
}

// Rules returns the active rules.
func (e *RuleEngine) Rules() []*rule.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*rule.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func sustainKey(ruleID, targetID string) string {
	return ruleID + "|" + targetID
}

func ruleIDFromKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}

// Evaluate compares a target's metric snapshot against every enabled rule
// and returns drafts for the rules that are satisfied. A missing metric key
// means the condition is not met, never an error. Drafts are withheld while
// a live alert already covers the (rule, target) pair.
func (e *RuleEngine) Evaluate(ctx context.Context, targetID string, snapshot map[string]float64) []alert.Draft {
	now := e.now()

	e.mu.Lock()
	type firing struct {
		r     *rule.Rule
		value float64
	}
	var satisfied []firing
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		key := sustainKey(r.ID, targetID)

		value, ok := snapshot[r.Metric]
		if !ok || !r.Compare(value) {
			delete(e.since, key)
			continue
		}

		start, tracked := e.since[key]
		if !tracked {
			start = now
			e.since[key] = start
		}
		if now.Sub(start) < r.SustainFor {
			continue
		}
		cp := *r
		satisfied = append(satisfied, firing{r: &cp, value: value})
	}
	e.mu.Unlock()

	var drafts []alert.Draft
	for _, f := range satisfied {
		existing, err := e.alerts.FindNonTerminal(ctx, f.r.ID, targetID)
		if err != nil {
			e.logger.WithFields(map[string]interface{}{
				"rule_id":   f.r.ID,
				"target_id": targetID,
			}).ErrorWithErr(err, "Dedup lookup failed, withholding draft")
			continue
		}
		if existing != nil {
			metrics.RecordDedupSuppressed()
			continue
		}
		drafts = append(drafts, alert.Draft{
			RuleID:      f.r.ID,
			TargetID:    targetID,
			Severity:    f.r.Severity,
			Message:     f.r.Name + ": " + f.r.Describe(f.value),
			MetricValue: f.value,
			Tags:        append([]string(nil), f.r.Tags...),
		})
	}
	return drafts
}

// ConditionHolds re-checks a single rule's instantaneous condition against a
// snapshot, ignoring sustain. Used when deciding whether a suppressed alert
// should resurface after its window ends.
func (e *RuleEngine) ConditionHolds(ruleID string, snapshot map[string]float64) bool {
	e.mu.Lock()
	r, ok := e.rules[ruleID]
	e.mu.Unlock()
	if !ok || !r.Enabled {
		return false
	}
	value, ok := snapshot[r.Metric]
	if !ok {
		return false
	}
	return r.Compare(value)
}
