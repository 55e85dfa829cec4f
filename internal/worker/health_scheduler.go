package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/probe"
)

// ResultApplier consumes completed check results. Implemented by the target
// state machine.
type ResultApplier interface {
	ApplyResult(ctx context.Context, res probe.Result) error
}

// HealthScheduler drives periodic health checks. Each scheduled target gets
// its own loop goroutine, so a slow target never delays the others, while a
// shared rate limiter caps the aggregate probe launch rate.
type HealthScheduler struct {
	applier ResultApplier
	limiter *rate.Limiter
	logger  *logger.Logger

	// retries is how many extra probe attempts a single check cycle makes
	// before reporting failure. Distinct from the target's MaxRetries, which
	// counts failed cycles toward the Offline transition.
	retries int
	backoff time.Duration

	proberFor func(t *target.Target) probe.Prober

	mu    sync.Mutex
	loops map[string]*checkLoop
	wg    sync.WaitGroup
}

type checkLoop struct {
	target *target.Target
	cancel context.CancelFunc
}

// SchedulerOptions tunes the health scheduler.
type SchedulerOptions struct {
	// MaxChecksPerSecond caps probe launches across all targets. <= 0 means
	// unlimited.
	MaxChecksPerSecond float64
	// Retries is the per-cycle retry count after the first failed attempt.
	Retries int
	// Backoff is the initial retry delay, doubled per attempt.
	Backoff time.Duration
}

// NewHealthScheduler creates a scheduler feeding results into the applier.
func NewHealthScheduler(applier ResultApplier, opts SchedulerOptions, log *logger.Logger) *HealthScheduler {
	limit := rate.Inf
	if opts.MaxChecksPerSecond > 0 {
		limit = rate.Limit(opts.MaxChecksPerSecond)
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &HealthScheduler{
		applier:   applier,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    log,
		retries:   opts.Retries,
		backoff:   opts.Backoff,
		proberFor: probe.ForTarget,
		loops:     make(map[string]*checkLoop),
	}
}

// ScheduleTarget starts (or restarts) the periodic check loop for a target.
// The first check fires immediately.
func (s *HealthScheduler) ScheduleTarget(ctx context.Context, t *target.Target) {
	if !t.Enabled {
		s.UnscheduleTarget(t.ID)
		return
	}

	s.mu.Lock()
	if prev, ok := s.loops[t.ID]; ok {
		prev.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	cp := *t
	loop := &checkLoop{target: &cp, cancel: cancel}
	s.loops[t.ID] = loop
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(loopCtx, loop)

	s.logger.WithFields(map[string]interface{}{
		"target_id": t.ID,
		"method":    t.Probe.Method,
		"interval":  checkInterval(t).String(),
	}).Info("Target scheduled")
}

// UnscheduleTarget stops the target's check loop. In-flight results for the
// target are discarded.
func (s *HealthScheduler) UnscheduleTarget(id string) {
	s.mu.Lock()
	loop, ok := s.loops[id]
	if ok {
		delete(s.loops, id)
	}
	s.mu.Unlock()
	if ok {
		loop.cancel()
		s.logger.WithFields(map[string]interface{}{
			"target_id": id,
		}).Info("Target unscheduled")
	}
}

// Stop cancels every loop and waits for them to drain.
func (s *HealthScheduler) Stop() {
	s.mu.Lock()
	for id, loop := range s.loops {
		loop.cancel()
		delete(s.loops, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// RunCheckNow performs one on-demand check cycle outside the periodic loop,
// against the scheduled copy of the target's configuration, and returns the
// raw result. The result is also applied to the state machine unless ctx was
// cancelled. Unknown or unscheduled target IDs return NOT_FOUND.
func (s *HealthScheduler) RunCheckNow(ctx context.Context, targetID string) (probe.Result, error) {
	s.mu.Lock()
	loop, ok := s.loops[targetID]
	s.mu.Unlock()
	if !ok {
		return probe.Result{}, errors.NotFound("target")
	}
	t := loop.target

	res := s.checkOnce(ctx, t)
	if ctx.Err() == nil {
		if err := s.applier.ApplyResult(ctx, res); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"target_id": t.ID,
			}).ErrorWithErr(err, "Failed to apply check result")
		}
	}
	return res, nil
}

func (s *HealthScheduler) run(ctx context.Context, loop *checkLoop) {
	defer s.wg.Done()

	t := loop.target
	ticker := time.NewTicker(checkInterval(t))
	defer ticker.Stop()

	for {
		res := s.checkOnce(ctx, t)
		if ctx.Err() != nil {
			// Cancelled mid-check: the result is stale, drop it.
			return
		}
		if err := s.applier.ApplyResult(ctx, res); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"target_id": t.ID,
			}).ErrorWithErr(err, "Failed to apply check result")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// checkOnce runs a full check cycle: the initial attempt plus up to retries
// re-attempts with exponential backoff, short-circuiting on the first
// success. The returned result reflects the last attempt.
func (s *HealthScheduler) checkOnce(ctx context.Context, t *target.Target) (res probe.Result) {
	prober := s.proberFor(t)
	delay := s.backoff

	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return probe.Result{
				TargetID:  t.ID,
				Method:    t.Probe.Method,
				ErrorKind: probe.ErrTimeout,
				Message:   "check cancelled while rate limited",
				Timestamp: time.Now(),
			}
		}

		res = s.attempt(ctx, prober, t)
		if res.Success || attempt >= s.retries || ctx.Err() != nil {
			return res
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return res
		}
		delay *= 2
	}
}

// attempt runs a single probe under the target's timeout. A panicking driver
// is converted into an unknown-kind failure instead of taking the loop down.
func (s *HealthScheduler) attempt(ctx context.Context, prober probe.Prober, t *target.Target) (res probe.Result) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = target.DefaultTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"target_id": t.ID,
				"panic":     r,
			}).Error("Probe driver panicked")
			res = probe.Result{
				TargetID:  t.ID,
				Method:    t.Probe.Method,
				Latency:   time.Since(started),
				ErrorKind: probe.ErrUnknown,
				Message:   fmt.Sprintf("probe panicked: %v", r),
				Timestamp: time.Now(),
			}
		}
	}()

	return prober.Probe(probeCtx, t)
}

func checkInterval(t *target.Target) time.Duration {
	if t.CheckInterval > 0 {
		return t.CheckInterval
	}
	return target.DefaultCheckInterval
}
