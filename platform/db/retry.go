package db

import (
	"context"
	"fmt"
	"time"

	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	startupRetries      = 5
	startupInitialDelay = 2 * time.Second
)

func startupBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = startupInitialDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, startupRetries-1), ctx)
}

// Connect opens the pool, retrying while the database comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	pool, err := backoff.RetryNotifyWithData(func() (*pgxpool.Pool, error) {
		return NewPool(ctx, cfg)
	}, startupBackOff(ctx), notifyRetry(log, "database connection"))
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded migrations with the same retry policy as Connect.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	err := backoff.RetryNotify(func() error {
		return RunMigrations(ctx, pool, log)
	}, startupBackOff(ctx), notifyRetry(log, "database migrations"))
	if err != nil {
		return fmt.Errorf("database migrations: %w", err)
	}
	return nil
}

func notifyRetry(log *logger.Logger, operation string) backoff.Notify {
	return func(err error, next time.Duration) {
		log.Warn("retryable operation failed", "operation", operation, "retry_in", next.String(), "error", err)
	}
}
