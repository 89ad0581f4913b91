package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"halftime_bot/internal/model"
	"halftime_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListLeagues returns the monitored league keys in insertion order.
func (s *SQLite) ListLeagues(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT league_key FROM monitored_leagues ORDER BY added_at, league_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("query leagues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan league: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ReplaceLeagues rewrites the monitored league set. Keys already present
// keep their original added_at.
func (s *SQLite) ReplaceLeagues(ctx context.Context, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_leagues (league_key TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_leagues`); err != nil {
		return fmt.Errorf("clear temp table: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keep_leagues (league_key) VALUES (?)`, k); err != nil {
			return fmt.Errorf("stage league %q: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO monitored_leagues (league_key, added_at) VALUES (?, ?)`, k, now,
		); err != nil {
			return fmt.Errorf("insert league %q: %w", k, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM monitored_leagues WHERE league_key NOT IN (SELECT league_key FROM keep_leagues)`,
	); err != nil {
		return fmt.Errorf("delete leagues: %w", err)
	}
	return tx.Commit()
}

// ListNotified returns every match currently in the notified set.
func (s *SQLite) ListNotified(ctx context.Context) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, competition, home_team, away_team, minute, notified_at
		 FROM notified_matches ORDER BY notified_at, match_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query notified: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotified adds a match to the notified set and appends it to the
// notification log. Marking an already notified match is a no-op.
func (s *SQLite) MarkNotified(ctx context.Context, n model.Notification) error {
	sentAt := n.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	ts := sentAt.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO notified_matches (match_id, competition, home_team, away_team, minute, notified_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.MatchID, n.Competition, n.HomeTeam, n.AwayTeam, n.Minute, ts,
	)
	if err != nil {
		return fmt.Errorf("insert notified match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notifications (match_id, competition, home_team, away_team, minute, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.MatchID, n.Competition, n.HomeTeam, n.AwayTeam, n.Minute, ts,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return tx.Commit()
}

// DeleteNotified removes matches from the notified set. The notification
// log is kept.
func (s *SQLite) DeleteNotified(ctx context.Context, matchIDs []int64) error {
	if len(matchIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range matchIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notified_matches WHERE match_id = ?`, id); err != nil {
			return fmt.Errorf("delete notified match %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// CountNotifications returns how many notifications were ever sent.
func (s *SQLite) CountNotifications(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// GetSetting returns the value stored under key and whether it exists.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return v, true, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanNotification(row scannable) (model.Notification, error) {
	var n model.Notification
	var ts string
	if err := row.Scan(&n.MatchID, &n.Competition, &n.HomeTeam, &n.AwayTeam, &n.Minute, &ts); err != nil {
		return n, fmt.Errorf("scan notified match: %w", err)
	}
	n.SentAt, _ = time.Parse(timeLayout, ts)
	return n, nil
}
