package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/zengzjie/food-delivery-sass/auth/internal/flows"
	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// Refresh exchanges the refresh token paired with the user's live session
// for a new pair and rotates the registry record.
//
// Every failure is [ErrRefreshFailed]; the wrapped cause tells why. A refresh
// token left behind by a superseded or logged-out session fails, and of two
// concurrent refreshes with the same token exactly one succeeds.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshFailed.Wrap(ErrUnauthenticated)
	}

	res := flows.RunRefresh(ctx, refreshToken, e.refreshDeps())
	if res.Failure != flows.RefreshFailureNone {
		err := e.refreshError(res)
		event := auditEventRefreshInvalid
		if res.Failure == flows.RefreshFailureReuse {
			event = auditEventRefreshReuse
		}
		e.record(ctx, auditRecord{event: event, userID: res.UserID, err: err})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.record(ctx, auditRecord{event: auditEventRefreshSuccess, userID: res.UserID, email: res.Profile.Email})
	return tokenPair(res.Session, res.Profile), nil
}

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		Verify: func(token string) (*jwt.Claims, error) {
			return e.tokens.Verify(token, jwt.PurposeRefresh)
		},
		LoadRecord: e.registry.Get,
		FindProfile: func(ctx context.Context, userID string) (session.Profile, error) {
			u, err := e.users.FindByID(ctx, userID)
			if err != nil {
				return session.Profile{}, err
			}
			return u.Profile(), nil
		},
		IsUserNotFound: isUserNotFound,
		Mint:           e.mint,
		Rotate: func(ctx context.Context, userID string, expected [32]byte, next *session.Record) error {
			return e.registry.Rotate(ctx, userID, expected, next, e.config.sessionTTL())
		},
		Now: func() int64 { return e.clock().Unix() },
	}
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	e.metricInc(MetricRefreshFailure)

	var cause *Error
	switch res.Failure {
	case flows.RefreshFailureExpired:
		cause = ErrTokenExpired
	case flows.RefreshFailureWrongPurpose:
		cause = ErrWrongTokenPurpose
	case flows.RefreshFailureMalformed:
		cause = ErrTokenMalformed
	case flows.RefreshFailureSessionNotFound:
		cause = ErrUnauthenticated
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshRotationLost)
		cause = ErrSupersededSession
	case flows.RefreshFailureUserNotFound:
		cause = ErrUserNotFound
	default:
		cause = ErrInternal
	}
	if res.Err != nil && !errors.Is(res.Err, cause) {
		return ErrRefreshFailed.Wrap(cause.Wrap(res.Err))
	}
	return ErrRefreshFailed.Wrap(cause)
}

// Logout ends the user's live session. It is idempotent: logging out a user
// without a session succeeds.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUnauthenticated
	}
	if err := e.registry.Invalidate(ctx, userID); err != nil {
		e.record(ctx, auditRecord{event: auditEventLogout, userID: userID, err: err})
		return ErrInternal.Wrap(fmt.Errorf("invalidate session: %w", err))
	}
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.record(ctx, auditRecord{event: auditEventLogout, userID: userID})
	return nil
}
