package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	"github.com/couchcryptid/aurora-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGridSource serves a fixed grid (or error) and signals each Get.
type fakeGridSource struct {
	mu   sync.Mutex
	grid *domain.Grid
	err  error
	gets int
}

func (f *fakeGridSource) Get(_ context.Context) (*domain.Grid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.grid, f.err
}

func (f *fakeGridSource) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type fakeLister struct {
	mu   sync.Mutex
	subs []domain.Subscription
	err  error
}

func (f *fakeLister) ListAll(_ context.Context) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs, f.err
}

func newTestScheduler(grids GridSource, subs SubscriptionLister, clk clockwork.Clock) (*Scheduler, *recordingNotifier) {
	notifier := &recordingNotifier{}
	eval := NewEvaluator(notifier, &recordingMarker{stamped: true}, time.Hour, discardLogger(), observability.NewMetricsForTesting())
	eval.clk = clk
	s := NewScheduler(grids, subs, eval, 15*time.Minute, discardLogger(), observability.NewMetricsForTesting())
	s.clk = clk
	return s, notifier
}

func TestTriggerNow_RunsAPass(t *testing.T) {
	clk := clockwork.NewFakeClockAt(evalNow)
	grids := &fakeGridSource{grid: stormGrid()}
	lister := &fakeLister{subs: []domain.Subscription{reykjavikSub(1, 5, nil)}}
	s, notifier := newTestScheduler(grids, lister, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.TriggerNow(ctx))
	assert.NoError(t, s.CheckReadiness(ctx))
	assert.NotEmpty(t, notifier.alerts)

	cancel()
	assert.NoError(t, <-done)
}

func TestScheduler_NotReadyBeforeFirstPass(t *testing.T) {
	s, _ := newTestScheduler(&fakeGridSource{grid: stormGrid()}, &fakeLister{}, clockwork.NewFakeClockAt(evalNow))
	assert.Error(t, s.CheckReadiness(context.Background()))
}

func TestScheduler_TickFailureDoesNotStopTheLoop(t *testing.T) {
	clk := clockwork.NewFakeClockAt(evalNow)
	grids := &fakeGridSource{err: errors.New("no forecast")}
	lister := &fakeLister{subs: []domain.Subscription{reykjavikSub(1, 5, nil)}}
	s, notifier := newTestScheduler(grids, lister, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// A failing tick surfaces from TriggerNow but the loop survives.
	err := s.TriggerNow(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load forecast")
	assert.Error(t, s.CheckReadiness(ctx), "a failed pass must not mark the service ready")

	// Upstream recovers; the same loop serves the next pass.
	grids.mu.Lock()
	grids.err = nil
	grids.grid = stormGrid()
	grids.mu.Unlock()

	require.NoError(t, s.TriggerNow(ctx))
	assert.NoError(t, s.CheckReadiness(ctx))
	assert.NotEmpty(t, notifier.alerts)

	cancel()
	assert.NoError(t, <-done)
}

func TestScheduler_StoreFailureIsNotFatal(t *testing.T) {
	clk := clockwork.NewFakeClockAt(evalNow)
	grids := &fakeGridSource{grid: stormGrid()}
	lister := &fakeLister{err: errors.New("db unreachable")}
	s, _ := newTestScheduler(grids, lister, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	err := s.TriggerNow(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list subscriptions")

	cancel()
	assert.NoError(t, <-done)
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	clk := clockwork.NewFakeClockAt(evalNow)
	grids := &fakeGridSource{grid: stormGrid()}
	lister := &fakeLister{}
	s, _ := newTestScheduler(grids, lister, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Initial pass runs immediately on startup.
	require.Eventually(t, func() bool { return grids.getCount() == 1 },
		time.Second, time.Millisecond)

	// Wait for the loop to be parked on the ticker before advancing time.
	clk.BlockUntil(1)
	clk.Advance(15 * time.Minute)
	require.Eventually(t, func() bool { return grids.getCount() == 2 },
		time.Second, time.Millisecond)

	clk.BlockUntil(1)
	clk.Advance(15 * time.Minute)
	require.Eventually(t, func() bool { return grids.getCount() == 3 },
		time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestTriggerNow_AfterShutdown(t *testing.T) {
	s, _ := newTestScheduler(&fakeGridSource{grid: stormGrid()}, &fakeLister{}, clockwork.NewFakeClockAt(evalNow))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No Run loop is draining the trigger channel; cancellation unblocks.
	assert.ErrorIs(t, s.TriggerNow(ctx), context.Canceled)
}
