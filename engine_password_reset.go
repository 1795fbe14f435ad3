package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	"github.com/zengzjie/food-delivery-sass/auth/internal/limiters"
	"github.com/zengzjie/food-delivery-sass/auth/jwt"
)

var (
	errResetTokenEmpty = ErrBadRequest.WithMessage("The password reset Token cannot be empty.")
	errResetUnknown    = ErrUserNotFound.WithMessage("User not found with this email!")
	errResetMail       = ErrInternal.WithMessage("Failed to send password reset email")
)

// RequestPasswordReset mails a reset link to the account's address.
//
// The token is bound to the current password hash, so it stops verifying as
// soon as it has been used once. A mail failure is reported, but the token is
// already valid and a later request simply issues another.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrBadRequest.WithMessage("Email is required")
	}
	e.metricInc(MetricPasswordResetRequest)

	if err := e.resetLimiter.CheckRequest(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrResetRateLimited) {
			e.metricInc(MetricRateLimitHit)
			limited := rateLimited(err)
			e.record(ctx, auditRecord{event: auditEventPasswordResetRequest, email: email, err: limited})
			return limited
		}
		return ErrInternal.Wrap(err)
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if isUserNotFound(err) {
			e.record(ctx, auditRecord{event: auditEventPasswordResetRequest, email: email, err: ErrUserNotFound})
			return errResetUnknown
		}
		return ErrInternal.Wrap(err)
	}

	token, _, err := e.tokens.IssueReset(user.ID, hashFingerprint(user.PasswordHash))
	if err != nil {
		return ErrInternal.Wrap(err)
	}

	if err := e.send(ctx, Message{
		To:       user.Email,
		Subject:  "Reset your password!",
		Template: e.config.Registration.ResetTemplate,
		Data:     map[string]string{"name": user.Name, "resetLink": e.resetLink(token)},
	}); err != nil {
		e.record(ctx, auditRecord{event: auditEventPasswordResetRequest, userID: user.ID, email: email, err: err})
		return errResetMail.Wrap(err)
	}

	e.record(ctx, auditRecord{event: auditEventPasswordResetRequest, userID: user.ID, email: email})
	return nil
}

// ExecutePasswordReset sets a new password for the account named by a reset
// token and ends the account's live session.
func (e *Engine) ExecutePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if resetToken == "" {
		return errResetTokenEmpty
	}

	fail := func(userID string, err error) error {
		e.metricInc(MetricPasswordResetFailure)
		e.record(ctx, auditRecord{event: auditEventPasswordResetConfirm, userID: userID, err: err})
		return err
	}

	claims, err := e.tokens.Verify(resetToken, jwt.PurposeReset)
	if err != nil {
		return fail("", ErrResetLinkInvalid.Wrap(err))
	}
	userID := claims.SubjectID()

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if isUserNotFound(err) {
			return fail(userID, ErrResetLinkInvalid.Wrap(err))
		}
		return ErrInternal.Wrap(err)
	}
	want := hashFingerprint(user.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(want), []byte(claims.Fingerprint)) != 1 {
		return fail(userID, ErrResetLinkInvalid)
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return passwordError(err)
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if isUserNotFound(err) {
			return fail(userID, ErrResetLinkInvalid.Wrap(err))
		}
		return ErrInternal.Wrap(err)
	}

	if err := e.registry.Invalidate(ctx, userID); err != nil {
		e.warn("session invalidation after password reset failed", "user_id", userID, "error", err)
	} else {
		e.metricInc(MetricSessionInvalidated)
	}
	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, user.Email, ""); err != nil {
			e.warn("login limiter reset failed", "user_id", userID, "error", err)
		}
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.record(ctx, auditRecord{event: auditEventPasswordResetConfirm, userID: userID, email: user.Email})
	return nil
}

func (e *Engine) resetLink(token string) string {
	base := strings.TrimRight(e.config.Registration.ClientURI, "/")
	return base + "/reset-password?token=" + url.QueryEscape(token)
}

func hashFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
