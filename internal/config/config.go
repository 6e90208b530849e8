package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Notifier backends selectable via the NOTIFIER env var.
const (
	NotifierLog   = "log"
	NotifierSMTP  = "smtp"
	NotifierKafka = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ForecastURL  string
	CachePath    string
	CacheTTL     time.Duration
	FetchTimeout time.Duration

	PollInterval time.Duration
	MinAlertGap  time.Duration

	DBPath string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Notifier string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cacheTTL, err := parseDuration("CACHE_TTL", "3h")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	minAlertGap, err := parseDuration("MIN_ALERT_GAP", "1h")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	smtpPort, err := parseInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ForecastURL:  envOrDefault("FORECAST_URL", "https://services.swpc.noaa.gov/json/ovation_aurora_latest.json"),
		CachePath:    envOrDefault("CACHE_PATH", "aurora_forecast_cache.json"),
		CacheTTL:     cacheTTL,
		FetchTimeout: fetchTimeout,

		PollInterval: pollInterval,
		MinAlertGap:  minAlertGap,

		DBPath: envOrDefault("DB_PATH", "aurora_subscriptions.db"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Notifier: envOrDefault("NOTIFIER", NotifierLog),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		KafkaBrokers:    splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "aurora-alerts"),
	}

	if cfg.ForecastURL == "" {
		return nil, errors.New("FORECAST_URL is required")
	}
	if cfg.CachePath == "" {
		return nil, errors.New("CACHE_PATH is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}

	switch cfg.Notifier {
	case NotifierLog:
	case NotifierSMTP:
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			return nil, errors.New("NOTIFIER=smtp requires SMTP_HOST and SMTP_FROM")
		}
	case NotifierKafka:
		if len(cfg.KafkaBrokers) == 0 || cfg.KafkaAlertTopic == "" {
			return nil, errors.New("NOTIFIER=kafka requires KAFKA_BROKERS and KAFKA_ALERT_TOPIC")
		}
	default:
		return nil, fmt.Errorf("invalid NOTIFIER %q (want log, smtp, or kafka)", cfg.Notifier)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
