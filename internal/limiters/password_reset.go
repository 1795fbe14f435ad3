package limiters

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zengzjie/food-delivery-sass/auth/internal/rate"
)

// ErrResetRateLimited matches a denied reset request. Denials also carry the
// remaining window, see [rate.RetryAfter].
var ErrResetRateLimited = rate.ErrRateLimited

// PasswordResetConfig bounds how many reset mails one address or client IP
// may trigger per window.
type PasswordResetConfig struct {
	Prefix           string
	EnableIPThrottle bool
	Window           time.Duration
	MaxRequests      int
}

// PasswordResetLimiter counts reset mail requests. Unlike the login
// throttle every request counts, not only failures, since the mail itself
// is the cost being limited.
type PasswordResetLimiter struct {
	window *rate.Window
	config PasswordResetConfig
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "fd"
	}
	return &PasswordResetLimiter{
		window: rate.NewWindow(redisClient, cfg.Window, cfg.MaxRequests),
		config: cfg,
	}
}

// CheckRequest counts one reset request. Calling it on a nil limiter is a
// no-op.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if _, err := l.window.Hit(ctx, l.emailKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.window.Hit(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *PasswordResetLimiter) Cooldown() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *PasswordResetLimiter) emailKey(email string) string {
	return l.config.Prefix + ":rl:reset:u:" + strings.ToLower(email)
}

func (l *PasswordResetLimiter) ipKey(ip string) string {
	return l.config.Prefix + ":rl:reset:ip:" + ip
}
