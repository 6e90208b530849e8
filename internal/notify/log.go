package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes alerts to the log instead of delivering them. Useful for
// local runs and as the default when no relay is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.logger.Info("aurora alert",
		"contact", alert.Contact,
		"location", alert.LocationLabel,
		"intensity", alert.Intensity,
		"kp", alert.Kp,
	)
	return nil
}
