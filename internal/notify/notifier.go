// Package notify delivers aurora alerts to subscribers.
//
// The engine treats delivery as an opaque, possibly-slow, possibly-failing
// operation behind the Notifier interface. Three implementations ship:
// an SMTP mailer, a Kafka publisher for downstream delivery services, and a
// log-only sink for local runs.
package notify

import "context"

// Alert is one notification to one subscriber.
type Alert struct {
	Contact       string `json:"contact"`
	DisplayName   string `json:"display_name"`
	LocationLabel string `json:"location_label"`
	Intensity     int    `json:"intensity"`
	Kp            int    `json:"kp"`
}

// Notifier dispatches a single alert. A nil return means the alert was
// handed off; on failure the engine releases its claim on the re-alert
// window so the next eligible cycle retries.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}
