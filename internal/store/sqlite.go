package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"eventmap/internal/model"
)

// SQLite is the default on-disk geocode cache.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) a SQLite database with WAL mode and
// busy_timeout, and runs migrations.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite cache path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(4)

	o := applyOptions(opts)
	s := &SQLite{db: db, now: o.now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		id         INTEGER PRIMARY KEY,
		address    TEXT NOT NULL,
		lat        REAL NOT NULL,
		lng        REAL NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		UNIQUE(address)
	);

	CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires ON geocode_cache(expires_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create geocode_cache table: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (model.Coordinate, error) {
	var c model.Coordinate
	err := s.db.QueryRowContext(ctx, `
		SELECT lat, lng FROM geocode_cache
		WHERE address = ? AND expires_at > ?
	`, key, s.now().UTC().Format(TimeFormat)).Scan(&c.Lat, &c.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Coordinate{}, ErrCacheMiss
	}
	if err != nil {
		return model.Coordinate{}, err
	}
	return c, nil
}

func (s *SQLite) Put(ctx context.Context, key string, c model.Coordinate, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address, lat, lng, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, c.Lat, c.Lng, now.Format(TimeFormat), now.Add(ttl).Format(TimeFormat))
	return err
}

// Purge deletes expired rows and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE expires_at <= ?`, s.now().UTC().Format(TimeFormat))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// journalMode returns the current journal mode (for testing).
func (s *SQLite) journalMode() (string, error) {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}
