package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPConfig carries mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends plain-text alert mail over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger

	// sendMail is swappable for tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer validates the relay settings and returns a Mailer.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) (*Mailer, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, errors.New("smtp host/port required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}
	return &Mailer{cfg: cfg, logger: logger, sendMail: smtp.SendMail}, nil
}

// Send delivers the alert as a plain-text email to the subscriber's contact
// address.
func (m *Mailer) Send(_ context.Context, alert Alert) error {
	if alert.Contact == "" {
		return errors.New("recipient address is empty")
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.From, alert)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.sendMail(addr, auth, m.cfg.From, []string{alert.Contact}, msg); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	m.logger.Info("alert mail sent", "contact", alert.Contact, "location", alert.LocationLabel)
	return nil
}

// buildMessage assembles RFC 822 headers and the alert body.
func buildMessage(from string, alert Alert) []byte {
	name := alert.DisplayName
	if name == "" {
		name = "Aurora Chaser"
	}

	subject := fmt.Sprintf("Aurora alert for %s", alert.LocationLabel)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"An aurora event may be visible near %s.\n\n"+
			"Aurora intensity: %d (around Kp %d)\n\n"+
			"Keep an eye on the sky and local weather for the best viewing.\n",
		name, alert.LocationLabel, alert.Intensity, alert.Kp,
	)

	headers := []string{
		"From: " + from,
		"To: " + alert.Contact,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)
}
