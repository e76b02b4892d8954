package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	connectAttempts = 6
	initialBackoff  = 500 * time.Millisecond
	maxBackoff      = 8 * time.Second
)

// NewPool connects to Postgres, backing off exponentially while the
// database comes up. maxConns <= 0 keeps the DSN's pool_max_conns, or
// pgx's default when the DSN does not set one.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = min(2, cfg.MaxConns)
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		pool, err := connect(ctx, cfg)
		if err == nil {
			log.Info().Int32("max_conns", cfg.MaxConns).Msg("database connected")
			return pool, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("database connection failed after %d attempts: %w", attempt, err)
		}

		log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("retry_in", backoff).
			Msg("database connection attempt failed")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func connect(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
