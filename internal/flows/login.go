package flows

import (
	"context"
	"errors"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureBadRequest
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureUnavailable
	LoginFailureSession
)

// LoginUser is the flow-local view of a stored account.
type LoginUser struct {
	Profile      session.Profile
	PasswordHash string
}

// IssuedSession is a freshly minted access and refresh pair.
type IssuedSession struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult carries either the issued session or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	User    *LoginUser
	Session IssuedSession
}

// LoginDeps captures login flow dependencies. The rate closures may be nil
// when throttling is disabled.
type LoginDeps struct {
	CheckRate     func(ctx context.Context, email, ip string) error
	RecordFailure func(ctx context.Context, email, ip string) error
	ResetRate     func(ctx context.Context, email, ip string) error
	// IsRateLimited separates a denial from a limiter outage. When nil every
	// limiter error is a denial.
	IsRateLimited func(error) bool

	FindUser       func(ctx context.Context, email string) (*LoginUser, error)
	IsUserNotFound func(error) bool

	VerifyPassword     func(plaintext, hash string) (bool, error)
	UpgradeOnLogin     bool
	NeedsUpgrade       func(hash string) (bool, error)
	HashPassword       func(plaintext string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	// IssueSession mints tokens and writes the registry record. It must
	// complete before the flow returns the pair.
	IssueSession func(ctx context.Context, profile session.Profile) (IssuedSession, error)

	Warn func(msg string, args ...any)
}

var errEmptyCredentials = errors.New("email and password are required")

// RunLogin authenticates email and password and establishes the single live
// session for that user, superseding any previous one.
func RunLogin(ctx context.Context, email, password, ip string, deps LoginDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if email == "" || password == "" {
		return LoginResult{Failure: LoginFailureBadRequest, Err: errEmptyCredentials}
	}

	limited := func(err error) bool {
		return deps.IsRateLimited == nil || deps.IsRateLimited(err)
	}

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, email, ip); err != nil {
			if !limited(err) {
				return LoginResult{Failure: LoginFailureUnavailable, Err: err}
			}
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	fail := func(cause error) LoginResult {
		if deps.RecordFailure != nil {
			if err := deps.RecordFailure(ctx, email, ip); err != nil {
				if limited(err) {
					return LoginResult{Failure: LoginFailureRateLimited, Err: err}
				}
				deps.Warn("login failure not counted", "error", err)
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: cause}
	}

	user, err := deps.FindUser(ctx, email)
	if err != nil {
		if deps.IsUserNotFound != nil && deps.IsUserNotFound(err) {
			return fail(err)
		}
		return LoginResult{Failure: LoginFailureUnavailable, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(errors.New("password mismatch"))
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		upgradePassword(ctx, user, password, deps)
	}

	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, email, ip); err != nil {
			deps.Warn("login limiter reset failed", "error", err)
		}
	}

	issued, err := deps.IssueSession(ctx, user.Profile)
	if err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, User: user}
	}
	return LoginResult{User: user, Session: issued}
}

// upgradePassword is best effort; a failure leaves the old hash usable.
func upgradePassword(ctx context.Context, user *LoginUser, password string, deps LoginDeps) {
	needs, err := deps.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("password rehash failed", "user_id", user.Profile.UserID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, user.Profile.UserID, hash); err != nil {
		deps.Warn("password hash upgrade not persisted", "user_id", user.Profile.UserID, "error", err)
		return
	}
	user.PasswordHash = hash
}
