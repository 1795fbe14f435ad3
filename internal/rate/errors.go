package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is matched by every [LimitedError].
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitedError reports a denied hit and how long until its window closes.
type LimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return "rate limited: retry after " + e.RetryAfter.Round(time.Second).String()
}

func (e *LimitedError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter extracts the remaining window from a denial anywhere in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LimitedError
	if errors.As(err, &le) && le.RetryAfter > 0 {
		return le.RetryAfter, true
	}
	return 0, false
}
