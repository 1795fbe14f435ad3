package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureExpired
	RefreshFailureMalformed
	RefreshFailureWrongPurpose
	RefreshFailureSessionNotFound
	RefreshFailureReuse
	RefreshFailureUserNotFound
	RefreshFailureIssue
	RefreshFailureUnavailable
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	Profile session.Profile
	Session IssuedSession
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// Verify checks the token under the refresh purpose.
	Verify     func(token string) (*jwt.Claims, error)
	LoadRecord func(ctx context.Context, userID string) (*session.Record, error)

	FindProfile    func(ctx context.Context, userID string) (session.Profile, error)
	IsUserNotFound func(error) bool

	// Mint issues a pair without touching the registry.
	Mint func(profile session.Profile) (IssuedSession, error)
	// Rotate swaps the registry record iff its refresh hash still equals expected.
	Rotate func(ctx context.Context, userID string, expected [32]byte, next *session.Record) error
	Now    func() int64
}

// RunRefresh exchanges a refresh token for a new pair. Only the refresh token
// currently paired with the user's record can rotate it, so a refresh token
// from a superseded or logged-out device is rejected, and of two concurrent
// refreshes with the same token exactly one wins.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Verify(refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		case errors.Is(err, jwt.ErrWrongPurpose):
			return RefreshResult{Failure: RefreshFailureWrongPurpose, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
		}
	}
	userID := claims.SubjectID()

	rec, err := deps.LoadRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: err, UserID: userID}
	}

	presented := session.HashToken(refreshToken)
	if subtle.ConstantTimeCompare(presented[:], rec.RefreshHash[:]) != 1 {
		return RefreshResult{Failure: RefreshFailureReuse, Err: session.ErrRefreshHashMismatch, UserID: userID}
	}

	profile, err := deps.FindProfile(ctx, userID)
	if err != nil {
		if deps.IsUserNotFound != nil && deps.IsUserNotFound(err) {
			return RefreshResult{Failure: RefreshFailureUserNotFound, Err: err, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: err, UserID: userID}
	}

	issued, err := deps.Mint(profile)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID}
	}

	next := &session.Record{
		Profile:     profile,
		AccessToken: issued.AccessToken,
		RefreshHash: session.HashToken(issued.RefreshToken),
		IssuedAt:    deps.Now(),
	}
	if err := deps.Rotate(ctx, userID, presented, next); err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, UserID: userID}
		case errors.Is(err, session.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, UserID: userID}
		default:
			return RefreshResult{Failure: RefreshFailureUnavailable, Err: err, UserID: userID}
		}
	}

	return RefreshResult{UserID: userID, Profile: profile, Session: issued}
}
