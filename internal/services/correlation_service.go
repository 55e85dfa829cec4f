package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/pkg/metrics"
)

// Similarity weights and grouping knobs. An alert joins a group when its
// best pairwise similarity against a recent active alert reaches the
// threshold.
const (
	weightSameRule     = 0.4
	weightSameTarget   = 0.3
	weightSameSeverity = 0.1
	weightTagOverlap   = 0.2

	DefaultCorrelationThreshold = 0.8
	DefaultCorrelationWindow    = 5 * time.Minute

	// similarityEpsilon absorbs floating-point error in the weight sum, so
	// a score that equals the threshold on paper (0.4+0.3+0.1 = 0.8) still
	// clears it.
	similarityEpsilon = 1e-9
)

// CorrelationService clusters related alerts created close together in time.
type CorrelationService struct {
	alerts alert.Repository
	groups alert.GroupRepository
	logger *logger.Logger

	threshold float64
	window    time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewCorrelationService creates a correlation engine with the default window
// and threshold.
func NewCorrelationService(alerts alert.Repository, groups alert.GroupRepository, log *logger.Logger) *CorrelationService {
	return &CorrelationService{
		alerts:    alerts,
		groups:    groups,
		logger:    log,
		threshold: DefaultCorrelationThreshold,
		window:    DefaultCorrelationWindow,
		now:       time.Now,
	}
}

// SetThreshold overrides the similarity threshold.
func (s *CorrelationService) SetThreshold(t float64) { s.threshold = t }

// SetWindow overrides the candidate time window.
func (s *CorrelationService) SetWindow(w time.Duration) { s.window = w }

// Similarity scores how alike two alerts are, in [0, 1]. Rule identity
// dominates, then target, then severity, with the remaining weight carried
// by tag overlap (Jaccard index; two empty tag sets do not count as
// overlapping).
func Similarity(a, b *alert.Alert) float64 {
	score := 0.0
	if a.RuleID == b.RuleID {
		score += weightSameRule
	}
	if a.TargetID == b.TargetID {
		score += weightSameTarget
	}
	if a.Severity == b.Severity {
		score += weightSameSeverity
	}
	score += weightTagOverlap * tagJaccard(a.Tags, b.Tags)
	return score
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// Correlate attaches the alert to the group of its most similar recent
// active alert, creating the group when the partner has none yet. Returns
// the group the alert joined, or nil when nothing scored above threshold.
func (s *CorrelationService) Correlate(ctx context.Context, a *alert.Alert) (*alert.CorrelationGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := s.recentActive(ctx, a)
	if err != nil {
		return nil, err
	}

	var best *alert.Alert
	bestScore := 0.0
	for _, c := range candidates {
		if score := Similarity(a, c); score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil || bestScore < s.threshold-similarityEpsilon {
		return nil, nil
	}

	group, err := s.joinGroup(ctx, a, best)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id":   a.ID,
		"partner_id": best.ID,
		"group_id":   group.ID,
		"score":      bestScore,
	}).Info("Alert correlated")
	metrics.RecordCorrelation()

	return group, nil
}

func (s *CorrelationService) recentActive(ctx context.Context, a *alert.Alert) ([]*alert.Alert, error) {
	all, err := s.alerts.List(ctx, alert.Filter{})
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.window)
	out := all[:0]
	for _, c := range all {
		if c.ID == a.ID || !c.IsActive() {
			continue
		}
		if c.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, c)
	}
	// Deterministic tie-breaking: newest candidates score first.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *CorrelationService) joinGroup(ctx context.Context, a, partner *alert.Alert) (*alert.CorrelationGroup, error) {
	var group *alert.CorrelationGroup
	var err error

	if partner.CorrelationID != "" {
		group, err = s.groups.GetByID(ctx, partner.CorrelationID)
		if err != nil {
			return nil, err
		}
	} else {
		group = alert.NewCorrelationGroup(uuid.New().String(), s.now())
		group.Add(partner)
		if err := s.groups.Create(ctx, group); err != nil {
			return nil, err
		}
		partner.CorrelationID = group.ID
		partner.UpdatedAt = s.now()
		if err := s.alerts.Update(ctx, partner); err != nil {
			return nil, err
		}
	}

	group.Add(a)
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, err
	}
	a.CorrelationID = group.ID
	a.UpdatedAt = s.now()
	if err := s.alerts.Update(ctx, a); err != nil {
		return nil, err
	}
	return group, nil
}

// Sweep correlates every active uncorrelated alert. Faults on one alert are
// logged and do not stop the pass.
func (s *CorrelationService) Sweep(ctx context.Context) {
	all, err := s.alerts.List(ctx, alert.Filter{})
	if err != nil {
		s.logger.ErrorWithErr(err, "Correlation sweep failed to list alerts")
		return
	}
	for _, a := range all {
		if !a.IsActive() || a.CorrelationID != "" {
			continue
		}
		if _, err := s.Correlate(ctx, a); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"alert_id": a.ID,
			}).ErrorWithErr(err, "Correlation sweep skipped alert")
		}
	}
}

// Groups lists all correlation groups.
func (s *CorrelationService) Groups(ctx context.Context) ([]*alert.CorrelationGroup, error) {
	return s.groups.List(ctx)
}
