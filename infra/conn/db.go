package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mstgnz/kazapay/infra/logger"
)

const connectAttempts = 5

type DB struct {
	*pgxpool.Pool
}

// ConnectDatabase opens a pgx pool for dsn, retrying while the server comes up
func ConnectDatabase(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 2 * time.Minute

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				logger.Info("DB Connected successfully")
				return &DB{Pool: pool}, nil
			}
			pool.Close()
		}

		logger.Warn(fmt.Sprintf("Attempt %d: Failed to connect to DB: %v", attempt, err))
		if attempt < connectAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", connectAttempts, err)
}

// CloseDatabase closes the pool
func (db *DB) CloseDatabase() {
	db.Pool.Close()
	logger.Info("DB Connection Closed")
}
