package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the user.
	ErrNotFound = errors.New("session not found")
	// ErrRefreshHashMismatch is returned by Rotate when the stored refresh
	// hash is not the expected one.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
	// ErrRedisUnavailable wraps transport failures of the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Registry maps a user id to its single live session record.
//
// Every method is atomic per user id: a reader never observes a snapshot
// from one Put paired with the token of another.
type Registry interface {
	// Put overwrites the record for userID. ttl must be > 0.
	Put(ctx context.Context, userID string, rec *Record, ttl time.Duration) error
	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, userID string) (*Record, error)
	// CurrentToken returns the live access token, or ErrNotFound.
	CurrentToken(ctx context.Context, userID string) (string, error)
	// Invalidate removes the record. Removing an absent record is not an error.
	Invalidate(ctx context.Context, userID string) error
	// Rotate replaces the record only if its refresh hash equals expected.
	// It returns ErrNotFound or ErrRefreshHashMismatch otherwise.
	Rotate(ctx context.Context, userID string, expected [32]byte, next *Record, ttl time.Duration) error
}

var errInvalidTTL = errors.New("session ttl must be > 0")

func validatePut(userID string, rec *Record, ttl time.Duration) error {
	if userID == "" {
		return errors.New("session user id is required")
	}
	if rec == nil {
		return errors.New("nil session record")
	}
	if ttl <= 0 {
		return errInvalidTTL
	}
	return nil
}
