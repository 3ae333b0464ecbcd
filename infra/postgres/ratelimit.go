package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/mstgnz/kazapay/infra/conn"
)

// CounterStore keeps rate limit counters in Postgres so every replica shares
// one budget per client.
type CounterStore struct {
	db *conn.DB
}

// NewCounterStore creates a store on an open pool. The rate_limits table is
// created by Ledger.Migrate.
func NewCounterStore(db *conn.DB) *CounterStore {
	return &CounterStore{db: db}
}

// Increment implements middle.CounterStore with a single upsert
func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		INSERT INTO rate_limits (key, window_start, count) VALUES ($1, now(), 1)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN rate_limits.window_start <= now() - make_interval(secs => $2::float8) THEN 1
				ELSE rate_limits.count + 1
			END,
			window_start = CASE
				WHEN rate_limits.window_start <= now() - make_interval(secs => $2::float8) THEN now()
				ELSE rate_limits.window_start
			END
		RETURNING count`,
		key, window.Seconds(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rate limit increment: %w", err)
	}
	return count, nil
}

// Sweep deletes counters whose window ended more than one window ago
func (s *CounterStore) Sweep(ctx context.Context, window time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM rate_limits WHERE window_start < now() - make_interval(secs => $1::float8)`,
		(2 * window).Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
