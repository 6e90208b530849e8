// Package engine contains the alert evaluation loop: match every
// subscription against the current forecast grid, apply the threshold and the
// minimum re-alert gap, and dispatch notifications.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	"github.com/couchcryptid/aurora-alert-service/internal/notify"
	"github.com/couchcryptid/aurora-alert-service/internal/observability"
	"github.com/couchcryptid/aurora-alert-service/internal/spatial"
	"github.com/jonboulle/clockwork"
)

// AlertMarker claims and releases the re-alert window. Implemented by
// store.Store.
type AlertMarker interface {
	MarkAlerted(ctx context.Context, id int64, at time.Time, gap time.Duration) (bool, error)
	UnmarkAlerted(ctx context.Context, id int64, claimed time.Time, prev *time.Time) error
}

// Evaluator decides, per subscription per cycle, whether to fire a
// notification.
type Evaluator struct {
	notifier notify.Notifier
	marker   AlertMarker
	gap      time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	clk      clockwork.Clock
}

// NewEvaluator creates an evaluator with the given minimum re-alert gap.
func NewEvaluator(notifier notify.Notifier, marker AlertMarker, gap time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		notifier: notifier,
		marker:   marker,
		gap:      gap,
		logger:   logger,
		metrics:  metrics,
		clk:      clockwork.NewRealClock(),
	}
}

// EvaluateAll builds a spatial index over the grid snapshot and evaluates
// every subscription against it, returning one decision per subscription.
// A failure on one subscription never aborts the batch; only a grid that
// cannot be indexed (or a cancelled context) ends the pass early.
func (e *Evaluator) EvaluateAll(ctx context.Context, subs []domain.Subscription, grid *domain.Grid) ([]domain.AlertDecision, error) {
	idx, err := spatial.NewIndex(grid)
	if err != nil {
		return nil, fmt.Errorf("build spatial index: %w", err)
	}

	decisions := make([]domain.AlertDecision, 0, len(subs))
	for _, sub := range subs {
		if ctx.Err() != nil {
			return decisions, ctx.Err()
		}
		decisions = append(decisions, e.evaluateOne(ctx, sub, idx))
		e.metrics.SubscriptionsEvaluated.Inc()
	}
	return decisions, nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, sub domain.Subscription, idx *spatial.Index) domain.AlertDecision {
	decision := domain.AlertDecision{SubscriptionID: sub.ID}

	threshold, err := domain.KpToIntensity(sub.KpThreshold)
	if err != nil {
		e.logger.Warn("skipping subscription with invalid threshold",
			"subscription_id", sub.ID,
			"kp_threshold", sub.KpThreshold,
			"error", err,
		)
		e.metrics.SubscriptionsSkipped.Inc()
		decision.Reason = domain.ReasonInvalidThreshold
		return decision
	}

	match := idx.Nearest(sub.Lat, sub.Lon)
	decision.Intensity = match.Sample.Intensity
	decision.DistanceKm = match.DistanceKm

	if match.Sample.Intensity < threshold {
		decision.Reason = domain.ReasonBelowThreshold
		return decision
	}

	now := e.clk.Now().UTC()
	if sub.LastAlertAt != nil && now.Sub(*sub.LastAlertAt) < e.gap {
		e.logger.Debug("alert suppressed inside re-alert gap",
			"subscription_id", sub.ID,
			"last_alert_at", *sub.LastAlertAt,
		)
		e.metrics.AlertsSuppressed.Inc()
		decision.Reason = domain.ReasonDedupWindow
		return decision
	}

	// Claim the window before dispatching. The conditional stamp is the
	// cross-process mutual exclusion: of two evaluators sharing one store,
	// only the one whose claim lands sends.
	claimed, err := e.marker.MarkAlerted(ctx, sub.ID, now, e.gap)
	if err != nil {
		e.logger.Error("failed to claim alert window",
			"subscription_id", sub.ID,
			"error", err,
		)
		e.metrics.SubscriptionsSkipped.Inc()
		decision.Reason = domain.ReasonStoreFailed
		return decision
	}
	if !claimed {
		e.logger.Info("alert window already claimed by a concurrent evaluator",
			"subscription_id", sub.ID,
		)
		e.metrics.AlertsSuppressed.Inc()
		decision.Reason = domain.ReasonDedupWindow
		return decision
	}

	alert := notify.Alert{
		Contact:       sub.Contact,
		DisplayName:   sub.DisplayName,
		LocationLabel: sub.LocationLabel,
		Intensity:     match.Sample.Intensity,
		Kp:            sub.KpThreshold,
	}
	if err := e.notifier.Send(ctx, alert); err != nil {
		// Release the claim so the next eligible cycle retries. If the
		// rollback itself fails the claim stands and one alert is delayed by
		// at most the gap.
		if rerr := e.marker.UnmarkAlerted(ctx, sub.ID, now, sub.LastAlertAt); rerr != nil {
			e.logger.Error("failed to release alert claim after send failure",
				"subscription_id", sub.ID,
				"error", rerr,
			)
		}
		e.logger.Warn("notification dispatch failed",
			"subscription_id", sub.ID,
			"contact", sub.Contact,
			"error", err,
		)
		e.metrics.NotifyErrors.Inc()
		decision.Reason = domain.ReasonNotifyFailed
		return decision
	}

	e.metrics.AlertsFired.Inc()
	e.logger.Info("aurora alert fired",
		"subscription_id", sub.ID,
		"location", sub.LocationLabel,
		"intensity", match.Sample.Intensity,
		"distance_km", match.DistanceKm,
	)
	decision.Fire = true
	decision.Reason = domain.ReasonFired
	return decision
}
