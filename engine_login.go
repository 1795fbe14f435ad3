package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/zengzjie/food-delivery-sass/auth/internal/flows"
	"github.com/zengzjie/food-delivery-sass/auth/internal/rate"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// Login authenticates email and password and makes the issued pair the
// user's only live session. Any token issued to an earlier login stops
// authorizing protected operations once Login returns.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	res := flows.RunLogin(ctx, email, password, ip, e.loginDeps())
	if res.Failure != flows.LoginFailureNone {
		err := e.loginError(res)
		e.record(ctx, auditRecord{event: loginAuditEvent(res.Failure), email: email, err: err})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.record(ctx, auditRecord{event: auditEventLoginSuccess, userID: res.User.Profile.UserID, email: email})
	return tokenPair(res.Session, res.User.Profile), nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	deps := flows.LoginDeps{
		FindUser: func(ctx context.Context, email string) (*flows.LoginUser, error) {
			u, err := e.users.FindByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			return &flows.LoginUser{Profile: u.Profile(), PasswordHash: u.PasswordHash}, nil
		},
		IsUserNotFound:     isUserNotFound,
		VerifyPassword:     e.passwords.Verify,
		UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		NeedsUpgrade:       e.passwords.NeedsUpgrade,
		HashPassword:       e.passwords.Hash,
		UpdatePasswordHash: e.users.UpdatePasswordHash,
		IssueSession: func(ctx context.Context, p session.Profile) (flows.IssuedSession, error) {
			return e.issueSession(ctx, p)
		},
		Warn: e.warn,
	}
	if e.rateLimiter != nil {
		deps.CheckRate = e.rateLimiter.CheckLogin
		deps.RecordFailure = e.rateLimiter.IncrementLogin
		deps.ResetRate = e.rateLimiter.ResetLogin
		deps.IsRateLimited = func(err error) bool { return errors.Is(err, rate.ErrRateLimited) }
	}
	return deps
}

func (e *Engine) loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureBadRequest:
		return ErrBadRequest.WithMessage("Email and password are required")
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.metricInc(MetricRateLimitHit)
		return rateLimited(res.Err)
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		return ErrInvalidCredentials
	default:
		return ErrInternal.Wrap(res.Err)
	}
}

func loginAuditEvent(kind flows.LoginFailureKind) string {
	if kind == flows.LoginFailureRateLimited {
		return auditEventLoginRateLimited
	}
	return auditEventLoginFailure
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
