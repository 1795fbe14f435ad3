package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the counter and starts its window on the first hit in
// one round trip, so a crash between INCR and PEXPIRE cannot leave a counter
// without expiry.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// Window is a fixed-window counter: at most Limit hits per Size per key.
type Window struct {
	redis redis.UniversalClient
	size  time.Duration
	limit int64
}

// NewWindow returns a window over rdb. A non-positive limit denies nothing.
func NewWindow(rdb redis.UniversalClient, size time.Duration, limit int) *Window {
	return &Window{redis: rdb, size: size, limit: int64(limit)}
}

// Hit counts one event for key. It returns a [*LimitedError] when this hit
// went over the limit.
func (w *Window) Hit(ctx context.Context, key string) (int64, error) {
	res, err := hitScript.Run(ctx, w.redis, []string{key}, w.size.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, res)
	}
	count := res[0]
	if w.limit > 0 && count > w.limit {
		return count, &LimitedError{Key: key, RetryAfter: time.Duration(res[1]) * time.Millisecond}
	}
	return count, nil
}

// Check reports whether key has already used its budget without counting.
func (w *Window) Check(ctx context.Context, key string) error {
	count, err := w.Count(ctx, key)
	if err != nil || w.limit <= 0 || count < w.limit {
		return err
	}
	ttl, err := w.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return &LimitedError{Key: key, RetryAfter: ttl}
}

// Count returns the hits recorded in key's current window. A missing key is zero.
func (w *Window) Count(ctx context.Context, key string) (int64, error) {
	count, err := w.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset deletes keys, closing their windows early.
func (w *Window) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := w.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
