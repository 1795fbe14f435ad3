package auth

import (
	"context"
	"strings"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuse         = "refresh_reuse_detected"
	auditEventGateRejected         = "gate_rejected"
	auditEventLogout               = "logout"
	auditEventRegistrationRequest  = "registration_request"
	auditEventActivation           = "account_activation"
	auditEventAccountDeleted       = "account_deleted"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
)

// auditRecord is what an Engine operation knows about itself when it
// finishes. A nil err means the operation succeeded.
type auditRecord struct {
	event     string
	userID    string
	email     string
	operation string
	err       error
}

// record turns rec into an [AuditEvent] stamped with the engine clock and the
// caller's IP. It is a no-op when auditing is disabled.
func (e *Engine) record(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.clock().UTC(),
		EventType: rec.event,
		UserID:    rec.userID,
		Email:     rec.email,
		Operation: rec.operation,
		IP:        clientIPFromContext(ctx),
		Success:   rec.err == nil,
		Error:     auditErrorCode(rec.err),
	})
}

// auditErrorCode is the lower-cased taxonomy code of err. Unclassified
// errors are internal_error.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	ae := AsError(err)
	if ae.Code == CodeInternal {
		return "internal_error"
	}
	return strings.ToLower(string(ae.Code))
}
