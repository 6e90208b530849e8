package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/aurora-alert-service/internal/adapter/http"
	"github.com/couchcryptid/aurora-alert-service/internal/config"
	"github.com/couchcryptid/aurora-alert-service/internal/engine"
	"github.com/couchcryptid/aurora-alert-service/internal/forecast"
	"github.com/couchcryptid/aurora-alert-service/internal/notify"
	"github.com/couchcryptid/aurora-alert-service/internal/observability"
	"github.com/couchcryptid/aurora-alert-service/internal/store"
)

func main() {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	client := forecast.NewClient(cfg.ForecastURL, cfg.FetchTimeout, logger)
	cache := forecast.NewCache(client, cfg.CachePath, cfg.CacheTTL, logger, metrics)

	subs, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open subscription store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer subs.Close()

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Error("failed to build notifier", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	evaluator := engine.NewEvaluator(notifier, subs, cfg.MinAlertGap, logger, metrics)
	scheduler := engine.NewScheduler(cache, subs, evaluator, cfg.PollInterval, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, scheduler, scheduler, subs, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start evaluation scheduler.
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// buildNotifier selects the alert delivery backend from config. The returned
// func releases any resources the backend holds.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func(), error) {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		m, err := notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	case config.NotifierKafka:
		p := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}, nil
	default:
		return notify.NewLogNotifier(logger), func() {}, nil
	}
}
