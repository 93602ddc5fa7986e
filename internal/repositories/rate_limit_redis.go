package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "otp:rl:"

// KEYS[1] counter key. ARGV[1] ceiling, ARGV[2] window in ms.
// Returns 1 when the request was counted, 0 when the window is full.
var compareAndIncrementLua = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return 0
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisRateLimitRepository is a fixed-window counter in Redis. The window
// starts with the first counted request and ends when the key expires.
type RedisRateLimitRepository struct {
	client redis.UniversalClient
}

func NewRedisRateLimitRepository(client redis.UniversalClient) *RedisRateLimitRepository {
	return &RedisRateLimitRepository{client: client}
}

func (r *RedisRateLimitRepository) CompareAndIncrement(ctx context.Context, key string, ceiling int, window time.Duration) (bool, error) {
	if ceiling <= 0 {
		return false, nil
	}

	allowed, err := compareAndIncrementLua.Run(ctx, r.client,
		[]string{rateLimitKeyPrefix + key},
		ceiling, window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return allowed == 1, nil
}

// DeleteStale is a no-op; Redis expires the counters itself
func (r *RedisRateLimitRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
