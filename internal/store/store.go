// Package store persists alert subscriptions in SQLite.
//
// The engine's contract with the store is narrow: read all subscriptions once
// per evaluation cycle, upsert and delete on behalf of the UI edge, and claim
// the last_alert_at stamp before dispatching. The stamp is a conditional
// update so two evaluator processes sharing one database cannot both claim
// the same alert inside the dedup gap.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	contact        TEXT NOT NULL,
	display_name   TEXT NOT NULL DEFAULT '',
	latitude       REAL NOT NULL,
	longitude      REAL NOT NULL,
	location_label TEXT NOT NULL DEFAULT '',
	kp_threshold   INTEGER NOT NULL,
	last_alert_at  TIMESTAMP,
	UNIQUE (contact, latitude, longitude)
);`

// Store is a SQLite-backed subscription store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the subscription database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open subscription db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping subscription db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create subscriptions table: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts a subscription or, when one already exists for the same
// (contact, latitude, longitude), updates its threshold, name, and label in
// place. Returns the subscription's ID.
func (s *Store) Upsert(ctx context.Context, contact, name string, lat, lon float64, label string, kpThreshold int) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (contact, display_name, latitude, longitude, location_label, kp_threshold)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (contact, latitude, longitude) DO UPDATE SET
			display_name = excluded.display_name,
			location_label = excluded.location_label,
			kp_threshold = excluded.kp_threshold`,
		contact, name, lat, lon, label, kpThreshold,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert subscription: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM subscriptions WHERE contact = ? AND latitude = ? AND longitude = ?`,
		contact, lat, lon,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve subscription id: %w", err)
	}
	return id, nil
}

// ListAll returns every subscription.
func (s *Store) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact, display_name, latitude, longitude, location_label, kp_threshold, last_alert_at
		FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		var lastAlert sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.Contact, &sub.DisplayName, &sub.Lat, &sub.Lon,
			&sub.LocationLabel, &sub.KpThreshold, &lastAlert); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if lastAlert.Valid {
			t := lastAlert.Time
			sub.LastAlertAt = &t
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// Delete removes a subscription by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// MarkAlerted stamps last_alert_at for the subscription, but only if the row
// is not already stamped inside the dedup gap ending at 'at'. Returns whether
// the stamp was applied; a false result means a concurrent evaluator got
// there first. The stamp doubles as the cross-process claim on the re-alert
// window: evaluators claim before dispatching, so at most one process sends
// per window.
func (s *Store) MarkAlerted(ctx context.Context, id int64, at time.Time, gap time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET last_alert_at = ?
		WHERE id = ? AND (last_alert_at IS NULL OR last_alert_at <= ?)`,
		at, id, at.Add(-gap),
	)
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark alerted rows: %w", err)
	}
	return n > 0, nil
}

// UnmarkAlerted rolls a claim back after a failed dispatch, restoring the
// previous last_alert_at so the next eligible cycle retries. The rollback
// only applies while the row still carries the claimed stamp; a row
// re-claimed in the meantime is left alone.
func (s *Store) UnmarkAlerted(ctx context.Context, id int64, claimed time.Time, prev *time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET last_alert_at = ?
		WHERE id = ? AND last_alert_at = ?`,
		prev, id, claimed,
	); err != nil {
		return fmt.Errorf("unmark alerted: %w", err)
	}
	return nil
}
