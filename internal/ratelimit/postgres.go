package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The WHERE clause on the conflict branch makes a full window a no-op, so
// the deny path never increments and RETURNING yields no row.
const checkAndIncrementSQL = `
INSERT INTO rate_windows AS w (scope_key, window_start, count)
VALUES ($1, $2, 1)
ON CONFLICT (scope_key) DO UPDATE SET
    window_start = CASE WHEN $2 - w.window_start >= $3::bigint * interval '1 millisecond'
                        THEN $2 ELSE w.window_start END,
    count        = CASE WHEN $2 - w.window_start >= $3::bigint * interval '1 millisecond'
                        THEN 1 ELSE w.count + 1 END
WHERE $2 - w.window_start >= $3::bigint * interval '1 millisecond' OR w.count < $4
RETURNING window_start, count`

type PostgresCounter struct {
	pool *pgxpool.Pool
	opts Options
}

func NewPostgres(pool *pgxpool.Pool, opts Options) *PostgresCounter {
	return &PostgresCounter{pool: pool, opts: opts.withDefaults()}
}

func (c *PostgresCounter) CheckAndIncrement(ctx context.Context, scopeKey string) (Decision, error) {
	now := c.opts.Now().UTC()
	windowMs := c.opts.Window.Milliseconds()

	var (
		windowStart time.Time
		count       int
	)
	err := c.pool.QueryRow(ctx, checkAndIncrementSQL, scopeKey, now, windowMs, c.opts.Max).
		Scan(&windowStart, &count)
	if err == nil {
		return decide(true, count, c.opts.Max, windowStart, c.opts.Window), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Decision{}, fmt.Errorf("check rate window: %w", err)
	}

	err = c.pool.QueryRow(ctx,
		`SELECT window_start, count FROM rate_windows WHERE scope_key = $1`, scopeKey).
		Scan(&windowStart, &count)
	if err != nil {
		return Decision{}, fmt.Errorf("read denied rate window: %w", err)
	}

	return decide(false, count, c.opts.Max, windowStart, c.opts.Window), nil
}

// Purge drops windows that have already elapsed.
func (c *PostgresCounter) Purge(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM rate_windows WHERE window_start <= $1`,
		c.opts.Now().UTC().Add(-c.opts.Window))
	if err != nil {
		return 0, fmt.Errorf("purge rate windows: %w", err)
	}
	return tag.RowsAffected(), nil
}
