package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/swiftshare/internal/config"
	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	defaultDBTimeout    = 5 * time.Second
	connectAttempts     = 5
	connectBackoffStart = 500 * time.Millisecond
)

// NewPostgresPool connects to PostgreSQL using pgx, retrying the initial ping
// while the database is still starting.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		retry.Attempts(connectAttempts),
		retry.Delay(connectBackoffStart),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("postgres not ready", zap.Uint("attempt", n+1), zap.String("host", cfg.Host), zap.Error(err))
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
