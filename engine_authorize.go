package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth/internal/flows"
	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// Authorize classifies one operation and decides whether it may proceed.
//
// A request invoking several fields is public only when all of them are.
// Public operations always proceed; the identity is attached only when the
// presented token is the subject's current one. Protected operations are
// rejected with exactly one of [ErrUnauthenticated], [ErrSupersededSession],
// [ErrTokenExpired], [ErrTokenMalformed], [ErrWrongTokenPurpose] or
// [ErrForbidden]. A registry outage on a protected operation is INTERNAL.
// Rejections are terminal: the gate never retries or refreshes.
func (e *Engine) Authorize(ctx context.Context, op Operation) Outcome {
	if !e.ready() {
		return Outcome{State: StateRejected, Err: ErrEngineNotReady}
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	names := op.names()
	res := flows.RunAuthorize(ctx, names, op.Token, e.authorizeDeps())
	out := e.outcome(res)

	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}

	if out.State == StateRejected {
		e.record(ctx, auditRecord{
			event:     auditEventGateRejected,
			userID:    subjectOf(res),
			operation: strings.Join(names, ","),
			err:       out.Err,
		})
	}
	return out
}

// AuthorizeContext runs [Engine.Authorize] and, when an identity is known,
// returns ctx carrying it.
func (e *Engine) AuthorizeContext(ctx context.Context, op Operation) (context.Context, Outcome) {
	out := e.Authorize(ctx, op)
	if out.Identity != nil {
		ctx = WithIdentity(ctx, out.Identity)
	}
	return ctx, out
}

func (e *Engine) authorizeDeps() flows.AuthorizeDeps {
	return flows.AuthorizeDeps{
		IsPublic: e.isPublic,
		AllowedRoles: func(operation string) []string {
			return e.config.Gate.OperationRoles[operation]
		},
		Subject:    e.tokens.Subject,
		LoadRecord: e.registry.Get,
		Verify: func(token string) (*jwt.Claims, error) {
			return e.tokens.Verify(token, jwt.PurposeAccess)
		},
	}
}

func (e *Engine) isPublic(operation string) bool {
	for _, name := range e.config.Gate.PublicOperations {
		if name == operation {
			return true
		}
	}
	return false
}

func (e *Engine) outcome(res flows.AuthorizeResult) Outcome {
	if res.Public {
		e.metricInc(MetricGatePublic)
		return Outcome{State: StatePublicAllowed, Identity: identityOf(res.Record)}
	}

	switch res.Failure {
	case flows.AuthorizeFailureNone:
		e.metricInc(MetricGateAuthorized)
		return Outcome{State: StateAuthorized, Identity: identityOf(res.Record)}
	case flows.AuthorizeFailureUnauthenticated:
		e.metricInc(MetricGateUnauthenticated)
		return rejected(ErrUnauthenticated, res.Err)
	case flows.AuthorizeFailureSuperseded:
		e.metricInc(MetricGateSuperseded)
		return rejected(ErrSupersededSession, nil)
	case flows.AuthorizeFailureExpired:
		e.metricInc(MetricGateExpired)
		return rejected(ErrTokenExpired, res.Err)
	case flows.AuthorizeFailureWrongPurpose:
		e.metricInc(MetricGateWrongPurpose)
		return rejected(ErrWrongTokenPurpose, res.Err)
	case flows.AuthorizeFailureForbidden:
		e.metricInc(MetricGateForbidden)
		return rejected(ErrForbidden, nil)
	case flows.AuthorizeFailureUnavailable:
		return rejected(ErrInternal, res.Err)
	default:
		e.metricInc(MetricGateMalformed)
		return rejected(ErrTokenMalformed, res.Err)
	}
}

func rejected(sentinel *Error, cause error) Outcome {
	err := sentinel
	if cause != nil {
		err = sentinel.Wrap(cause)
	}
	return Outcome{State: StateRejected, Err: err}
}

func identityOf(rec *session.Record) *Identity {
	if rec == nil {
		return nil
	}
	return &Identity{
		SubjectID: rec.Profile.UserID,
		Name:      rec.Profile.Name,
		Role:      rec.Profile.Role,
		Profile:   rec.Profile,
	}
}

func subjectOf(res flows.AuthorizeResult) string {
	if res.Record != nil {
		return res.Record.Profile.UserID
	}
	return ""
}

// CurrentIdentity returns the snapshot cached at the user's last login or
// refresh. It returns [ErrUnauthenticated] when no session is live.
func (e *Engine) CurrentIdentity(ctx context.Context, userID string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	rec, err := e.registry.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, ErrInternal.Wrap(err)
	}
	return identityOf(rec), nil
}
