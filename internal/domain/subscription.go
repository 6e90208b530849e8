package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidThreshold marks a subscription whose Kp threshold is outside the
// 0–9 planetary K-index scale. The subscription is skipped and logged; the
// rest of the batch continues.
var ErrInvalidThreshold = errors.New("kp threshold outside 0-9")

// Subscription is one user-defined point of interest with an alert threshold.
// The engine reads subscriptions in bulk once per evaluation cycle;
// LastAlertAt is the only field it mutates, and only after a successful
// notification dispatch.
type Subscription struct {
	ID            int64
	Contact       string
	DisplayName   string
	Lat           float64
	Lon           float64
	LocationLabel string
	KpThreshold   int
	LastAlertAt   *time.Time
}

// kpToIntensity maps each Kp step to the minimum OVATION intensity that
// corresponds to it. The mapping is linear across the bounded 0–20 intensity
// scale: Kp 5 (storm level) lands at intensity 12, Kp 9 at the top of the
// scale.
var kpToIntensity = [10]int{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}

// KpToIntensity converts a subscriber's Kp-scale threshold to OVATION
// intensity units. Values outside 0–9 return ErrInvalidThreshold.
func KpToIntensity(kp int) (int, error) {
	if kp < 0 || kp >= len(kpToIntensity) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidThreshold, kp)
	}
	return kpToIntensity[kp], nil
}
