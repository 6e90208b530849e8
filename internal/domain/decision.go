package domain

// NearestMatch is the result of a nearest-neighbor query against the grid:
// the chosen sample and its great-circle distance from the query point.
// Computed per query, never persisted.
type NearestMatch struct {
	Sample     GridSample
	DistanceKm float64
}

// Reasons attached to an AlertDecision.
const (
	ReasonFired            = "fired"
	ReasonBelowThreshold   = "below-threshold"
	ReasonDedupWindow      = "dedup-window"
	ReasonInvalidThreshold = "invalid-threshold"
	ReasonNotifyFailed     = "notify-failed"
	ReasonStoreFailed      = "store-failed"
)

// AlertDecision records the outcome of evaluating one subscription in one
// cycle. It drives the notify/skip branch and observability; it is not
// persisted.
type AlertDecision struct {
	SubscriptionID int64
	Fire           bool
	Intensity      int
	DistanceKm     float64
	Reason         string
}
