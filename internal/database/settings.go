package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/konkon3660/graduationP/internal/feed"
)

// Settings keys.
const (
	KeyAutoplay = "autoplay"
	KeyFeed     = "feed"
)

// AutoplaySettings is the persisted engine configuration.
type AutoplaySettings struct {
	DelaySeconds float64 `json:"delay_seconds"`
	DriveSpeed   int     `json:"drive_speed"`
}

// Delay converts DelaySeconds to a duration.
func (s AutoplaySettings) Delay() time.Duration {
	return time.Duration(s.DelaySeconds * float64(time.Second))
}

// FeedRecord is one dispenser run.
type FeedRecord struct {
	ID       int64     `json:"id"`
	Source   string    `json:"source"`
	Portions int       `json:"portions"`
	Error    string    `json:"error,omitempty"`
	FedAt    time.Time `json:"fed_at"`
}

// GetSetting decodes the JSON value stored under key into out. It reports
// false when the key has never been saved.
func (db *DB) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode setting %q: %w", key, err)
	}
	return true, nil
}

// PutSetting stores v as JSON under key, replacing any previous value.
func (db *DB) PutSetting(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %q: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}
	return nil
}

func (db *DB) LoadAutoplay(ctx context.Context) (AutoplaySettings, bool, error) {
	var s AutoplaySettings
	ok, err := db.GetSetting(ctx, KeyAutoplay, &s)
	return s, ok, err
}

func (db *DB) SaveAutoplay(ctx context.Context, s AutoplaySettings) error {
	return db.PutSetting(ctx, KeyAutoplay, s)
}

// LoadFeed returns stored feed settings. Stored values that no longer
// validate are reported as an error rather than silently applied.
func (db *DB) LoadFeed(ctx context.Context) (feed.Settings, bool, error) {
	var s feed.Settings
	ok, err := db.GetSetting(ctx, KeyFeed, &s)
	if err != nil || !ok {
		return s, ok, err
	}
	if err := s.Validate(); err != nil {
		return feed.Settings{}, false, fmt.Errorf("stored feed settings: %w", err)
	}
	return s, true, nil
}

func (db *DB) SaveFeed(ctx context.Context, s feed.Settings) error {
	return db.PutSetting(ctx, KeyFeed, s)
}

// LogFeeding appends a feeding to the history.
func (db *DB) LogFeeding(ctx context.Context, source string, portions int, feedErr error) error {
	msg := ""
	if feedErr != nil {
		msg = feedErr.Error()
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO feed_log (source, portions, error) VALUES (?, ?, ?)",
		source, portions, msg)
	if err != nil {
		return fmt.Errorf("failed to log feeding: %w", err)
	}
	return nil
}

// RecentFeedings returns up to limit feedings, newest first.
func (db *DB) RecentFeedings(ctx context.Context, limit int) ([]FeedRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, source, portions, error, fed_at FROM feed_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedings: %w", err)
	}
	defer rows.Close()

	out := []FeedRecord{}
	for rows.Next() {
		var r FeedRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.Portions, &r.Error, &r.FedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feeding: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
