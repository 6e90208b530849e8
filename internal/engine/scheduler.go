package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	"github.com/couchcryptid/aurora-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// GridSource supplies the forecast snapshot for a tick. Implemented by
// forecast.Cache.
type GridSource interface {
	Get(ctx context.Context) (*domain.Grid, error)
}

// SubscriptionLister reads all subscriptions for a tick. Implemented by
// store.Store.
type SubscriptionLister interface {
	ListAll(ctx context.Context) ([]domain.Subscription, error)
}

// Scheduler drives evaluation passes on a fixed interval. All passes run on
// the Run goroutine, so two passes never overlap; an immediate "check now"
// request (TriggerNow) coalesces into the same loop.
type Scheduler struct {
	grids    GridSource
	subs     SubscriptionLister
	eval     *Evaluator
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	clk      clockwork.Clock

	trigger chan chan error
	ready   atomic.Bool
}

// NewScheduler creates a scheduler that evaluates every interval.
func NewScheduler(grids GridSource, subs SubscriptionLister, eval *Evaluator, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		grids:    grids,
		subs:     subs,
		eval:     eval,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		clk:      clockwork.NewRealClock(),
		trigger:  make(chan chan error),
	}
}

// CheckReadiness reports ready once at least one evaluation pass has
// completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no evaluation pass has completed yet")
	}
	return nil
}

// TriggerNow requests an immediate evaluation pass and waits for its result.
// The pass runs on the scheduler goroutine, never concurrently with a timed
// tick.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case s.trigger <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run evaluates immediately, then on every interval tick, until the context
// is cancelled. Tick failures are logged and counted; the loop always
// survives to the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	if err := s.runTick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial evaluation pass failed", "error", err)
	}

	ticker := s.clk.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if err := s.runTick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("evaluation pass failed", "error", err)
			}
		case done := <-s.trigger:
			done <- s.runTick(ctx)
		}
	}
}

// runTick performs one atomic pass: one grid snapshot, one read of all
// subscriptions, one evaluation sweep.
func (s *Scheduler) runTick(ctx context.Context) error {
	start := s.clk.Now()

	grid, err := s.grids.Get(ctx)
	if err != nil {
		s.metrics.EvaluationTicks.WithLabelValues("error").Inc()
		return fmt.Errorf("load forecast: %w", err)
	}

	subs, err := s.subs.ListAll(ctx)
	if err != nil {
		s.metrics.EvaluationTicks.WithLabelValues("error").Inc()
		return fmt.Errorf("list subscriptions: %w", err)
	}

	decisions, err := s.eval.EvaluateAll(ctx, subs, grid)
	if err != nil {
		s.metrics.EvaluationTicks.WithLabelValues("error").Inc()
		return fmt.Errorf("evaluate subscriptions: %w", err)
	}

	var fired, suppressed, skipped int
	for _, d := range decisions {
		switch d.Reason {
		case domain.ReasonFired:
			fired++
		case domain.ReasonDedupWindow:
			suppressed++
		case domain.ReasonInvalidThreshold, domain.ReasonNotifyFailed, domain.ReasonStoreFailed:
			skipped++
		}
	}

	s.metrics.EvaluationTicks.WithLabelValues("success").Inc()
	s.metrics.TickDuration.Observe(s.clk.Since(start).Seconds())
	s.ready.Store(true)

	s.logger.Info("evaluation pass complete",
		"subscriptions", len(subs),
		"fired", fired,
		"suppressed", suppressed,
		"skipped", skipped,
		"grid_generated_at", grid.GeneratedAt,
		"duration", s.clk.Since(start),
	)
	return nil
}
