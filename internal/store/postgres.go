package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// Postgres shares one geocode cache between several instances.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects with a few retries, then creates the table.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres cache dsn is empty")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	const attempts = 3
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		appLog.Warn("postgres connect failed", "attempt", attempt, "of", attempts, "err", err.Error())
		if attempt < attempts {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	o := applyOptions(opts)
	p := &Postgres{pool: pool, now: o.now}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		id         BIGSERIAL PRIMARY KEY,
		address    TEXT NOT NULL UNIQUE,
		lat        DOUBLE PRECISION NOT NULL,
		lng        DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires ON geocode_cache(expires_at);
	`
	_, err := p.pool.Exec(ctx, schema)
	return err
}

func (p *Postgres) Get(ctx context.Context, key string) (model.Coordinate, error) {
	var c model.Coordinate
	err := p.pool.QueryRow(ctx,
		`SELECT lat, lng FROM geocode_cache WHERE address = $1 AND expires_at > $2`,
		key, p.now().UTC(),
	).Scan(&c.Lat, &c.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Coordinate{}, ErrCacheMiss
	}
	if err != nil {
		return model.Coordinate{}, err
	}
	return c, nil
}

func (p *Postgres) Put(ctx context.Context, key string, c model.Coordinate, ttl time.Duration) error {
	now := p.now().UTC()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address, lat, lng, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		key, c.Lat, c.Lng, now, now.Add(ttl))
	return err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
