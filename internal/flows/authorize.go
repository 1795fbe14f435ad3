package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// AuthorizeFailureKind classifies gate rejections for root-level mapping.
type AuthorizeFailureKind int

const (
	AuthorizeFailureNone AuthorizeFailureKind = iota
	AuthorizeFailureUnauthenticated
	AuthorizeFailureSuperseded
	AuthorizeFailureExpired
	AuthorizeFailureMalformed
	AuthorizeFailureWrongPurpose
	AuthorizeFailureForbidden
	AuthorizeFailureUnavailable
)

// AuthorizeResult is the gate's verdict. Public is set when the operation is
// on the allow-list; Record is set whenever an identity may be attached.
type AuthorizeResult struct {
	Public  bool
	Failure AuthorizeFailureKind
	Err     error
	Record  *session.Record
	Claims  *jwt.Claims
}

// AuthorizeDeps captures gate dependencies.
type AuthorizeDeps struct {
	IsPublic     func(operation string) bool
	AllowedRoles func(operation string) []string
	// Subject reads the unverified subject of a token.
	Subject    func(token string) (string, error)
	LoadRecord func(ctx context.Context, userID string) (*session.Record, error)
	// Verify checks signature, expiry and the access purpose.
	Verify func(token string) (*jwt.Claims, error)
}

// RunAuthorize classifies one request invoking operations.
//
// The request is public only when it names at least one operation and every
// one of them is on the allow-list; a single protected operation makes the
// whole request protected. Protected requests are checked in a fixed order:
// token present, subject resolvable, record present, presented token equal to
// the record's current token, cryptographic verification, then the role
// requirement of each operation. The registry comparison precedes
// verification so a superseded token is reported as superseded even after it
// has also expired.
func RunAuthorize(ctx context.Context, operations []string, token string, deps AuthorizeDeps) AuthorizeResult {
	if allPublic(operations, deps.IsPublic) {
		return AuthorizeResult{Public: true, Record: currentRecord(ctx, token, deps)}
	}

	if token == "" {
		return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated, Err: errors.New("no token presented")}
	}
	sub, err := deps.Subject(token)
	if err != nil || sub == "" {
		return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated, Err: err}
	}
	rec, err := deps.LoadRecord(ctx, sub)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return AuthorizeResult{Failure: AuthorizeFailureUnauthenticated, Err: err}
		}
		return AuthorizeResult{Failure: AuthorizeFailureUnavailable, Err: err}
	}
	if !sameToken(rec.AccessToken, token) {
		return AuthorizeResult{Failure: AuthorizeFailureSuperseded}
	}

	claims, err := deps.Verify(token)
	if err != nil {
		return AuthorizeResult{Failure: tokenFailure(err), Err: err}
	}

	if deps.AllowedRoles != nil {
		for _, operation := range operations {
			if roles := deps.AllowedRoles(operation); len(roles) > 0 && !contains(roles, rec.Profile.Role) {
				return AuthorizeResult{Failure: AuthorizeFailureForbidden}
			}
		}
	}

	return AuthorizeResult{Record: rec, Claims: claims}
}

func allPublic(operations []string, isPublic func(string) bool) bool {
	if len(operations) == 0 || isPublic == nil {
		return false
	}
	for _, operation := range operations {
		if !isPublic(operation) {
			return false
		}
	}
	return true
}

// currentRecord returns the subject's record only when token is its current
// token. Any failure means anonymous.
func currentRecord(ctx context.Context, token string, deps AuthorizeDeps) *session.Record {
	if token == "" || deps.Subject == nil || deps.LoadRecord == nil {
		return nil
	}
	sub, err := deps.Subject(token)
	if err != nil || sub == "" {
		return nil
	}
	rec, err := deps.LoadRecord(ctx, sub)
	if err != nil || !sameToken(rec.AccessToken, token) {
		return nil
	}
	return rec
}

func tokenFailure(err error) AuthorizeFailureKind {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return AuthorizeFailureExpired
	case errors.Is(err, jwt.ErrWrongPurpose):
		return AuthorizeFailureWrongPurpose
	default:
		return AuthorizeFailureMalformed
	}
}

func sameToken(stored, presented string) bool {
	return len(stored) == len(presented) &&
		subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
