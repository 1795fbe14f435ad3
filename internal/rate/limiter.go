package rate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	Prefix                string
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter enforces per-account and per-IP budgets of failed logins.
type Limiter struct {
	window *Window
	config Config
}

// New creates a login [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "fd"
	}
	return &Limiter{
		window: NewWindow(redisClient, cfg.LoginCooldownDuration, cfg.MaxLoginAttempts),
		config: cfg,
	}
}

// CheckLogin returns a [*LimitedError] once the account or IP has used up its
// failure budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		if err := l.window.Check(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login against every applicable key. It
// returns a [*LimitedError] when this failure exceeded a budget.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	var denied error
	for _, key := range l.keys(email, ip) {
		if _, err := l.window.Hit(ctx, key); err != nil {
			if !errors.Is(err, ErrRateLimited) {
				return err
			}
			if denied == nil {
				denied = err
			}
		}
	}
	return denied
}

// ResetLogin clears the failure counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	return l.window.Reset(ctx, l.keys(email, ip)...)
}

// LoginAttempts returns the current failure count for an account.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	n, err := l.window.Count(ctx, l.loginUserKey(email))
	return int(n), err
}

func (l *Limiter) keys(email, ip string) []string {
	keys := []string{l.loginUserKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}
	return keys
}

func (l *Limiter) loginUserKey(email string) string {
	return l.config.Prefix + ":rl:login:u:" + strings.ToLower(email)
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + ":rl:login:ip:" + ip
}
