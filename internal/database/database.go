// Package database persists users, credentials, activities and sync runs in
// PostgreSQL, with an in-memory equivalent for local runs and tests.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/runclub/clubsync/internal/models"
)

// Config holds pool settings and how patiently to wait for the server at startup.
type Config struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	// ConnectTimeout bounds each ping; ConnectAttempts pings are made while the
	// server is unreachable, RetryDelay apart.
	ConnectTimeout  time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
}

// DefaultConfig returns pool settings sized for a handful of concurrent user syncs.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     25,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    5 * time.Minute,
		ConnectTimeout:     5 * time.Second,
		ConnectAttempts:    5,
		RetryDelay:         2 * time.Second,
	}
}

// Connect opens the pool and waits for the server to answer. Only outages are
// retried; bad credentials or an unknown database fail at once.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	attempts := max(cfg.ConnectAttempts, 1)
	for attempt := 1; ; attempt++ {
		err = ping(ctx, db, cfg.ConnectTimeout)
		if err == nil {
			return db, nil
		}
		if !errors.Is(err, models.ErrStoreUnavailable) || attempt == attempts {
			break
		}

		logger.Warn("Database not ready, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(cfg.RetryDelay):
			continue
		}
		break
	}

	db.Close()
	return nil, fmt.Errorf("connect database: %w", err)
}

// HealthCheck runs a trivial query against the pool.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	return ping(ctx, db, 5*time.Second)
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check failed: %w", classify(err))
	}
	return nil
}
