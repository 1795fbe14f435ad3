package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth/internal/audit"
	"github.com/zengzjie/food-delivery-sass/auth/internal/flows"
	"github.com/zengzjie/food-delivery-sass/auth/internal/limiters"
	"github.com/zengzjie/food-delivery-sass/auth/internal/rate"
	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/password"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// Engine runs every authentication operation.
//
// Engine instances are immutable after [Builder.Build] and safe for concurrent use.
type Engine struct {
	config       Config
	registry     session.Registry
	users        CredentialStore
	mailer       Mailer
	rateLimiter  *rate.Limiter
	resetLimiter *limiters.PasswordResetLimiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	passwords    *password.Hasher
	tokens       *jwt.Manager
	logger       *slog.Logger
	now          func() time.Time
}

// Close flushes buffered audit events. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the Engine was built with.
// Adapters read cookie and gate settings from it.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) ready() bool {
	return e != nil && e.tokens != nil && e.registry != nil && e.users != nil
}

// mint issues an access and refresh pair without touching the registry.
func (e *Engine) mint(p session.Profile) (flows.IssuedSession, error) {
	access, accessExp, err := e.tokens.IssueAccess(p.UserID, p.Name)
	if err != nil {
		return flows.IssuedSession{}, err
	}
	refresh, refreshExp, err := e.tokens.IssueRefresh(p.UserID, p.Name)
	if err != nil {
		return flows.IssuedSession{}, err
	}
	return flows.IssuedSession{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// issueSession mints a pair and makes it the user's only live session. The
// registry write completes before the pair is handed to anyone.
func (e *Engine) issueSession(ctx context.Context, p session.Profile) (flows.IssuedSession, error) {
	issued, err := e.mint(p)
	if err != nil {
		return flows.IssuedSession{}, err
	}
	rec := &session.Record{
		Profile:     p,
		AccessToken: issued.AccessToken,
		RefreshHash: session.HashToken(issued.RefreshToken),
		IssuedAt:    e.clock().Unix(),
	}
	if err := e.registry.Put(ctx, p.UserID, rec, e.config.sessionTTL()); err != nil {
		return flows.IssuedSession{}, err
	}
	e.metricInc(MetricSessionCreated)
	return issued, nil
}

func tokenPair(issued flows.IssuedSession, p session.Profile) *TokenPair {
	return &TokenPair{
		AccessToken:      issued.AccessToken,
		RefreshToken:     issued.RefreshToken,
		AccessExpiresAt:  issued.AccessExpiresAt,
		RefreshExpiresAt: issued.RefreshExpiresAt,
		User:             p,
	}
}

func isUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// warn logs best-effort side path failures.
func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}
