package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RateLimitRepository is a fixed-window counter stored in otp_rate_limits
type RateLimitRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{pool: db.Pool, now: time.Now}
}

// CompareAndIncrement counts one request against key when the window still
// has room, in a single statement. A rejected request leaves the row as is.
// An elapsed window restarts at 1.
func (r *RateLimitRepository) CompareAndIncrement(ctx context.Context, key string, ceiling int, window time.Duration) (bool, error) {
	if ceiling <= 0 {
		return false, nil
	}

	now := r.now().UTC()
	windowExpired := now.Add(-window)

	query := `
		INSERT INTO otp_rate_limits AS t (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE SET
			window_start = CASE WHEN t.window_start <= $3 THEN EXCLUDED.window_start ELSE t.window_start END,
			count        = CASE WHEN t.window_start <= $3 THEN 1 ELSE t.count + 1 END
		WHERE t.window_start <= $3 OR t.count < $4
		RETURNING count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, key, now, windowExpired, ceiling).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return true, nil
}

// DeleteStale removes counters whose window started before cutoff
func (r *RateLimitRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM otp_rate_limits WHERE window_start <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limit counters: %w", err)
	}

	return result.RowsAffected(), nil
}
