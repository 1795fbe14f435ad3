package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/zengzjie/food-delivery-sass/auth/internal"
	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/password"
)

var (
	errMissingFields    = ErrBadRequest.WithMessage("Name, email, password, mobile, address and sex are required")
	errInvalidEmail     = ErrBadRequest.WithMessage("Email address is invalid")
	errDomainNotAllowed = ErrBadRequest.WithMessage("Only specific email domains are allowed to register")
	errMobileExists     = ErrAccountExists.WithMessage("User already exist with this phone number!")
	errActivationMail   = ErrInternal.WithMessage("Failed to send activation email")
)

// Register validates a sign-up and mails an activation code. No account is
// written until [Engine.Activate] succeeds; the returned activation token
// carries the pending registration and must be handed back with the code.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	e.metricInc(MetricRegistrationRequested)

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Mobile == "" || in.Address == "" || in.Sex == "" {
		return "", errMissingFields
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return "", errInvalidEmail
	}
	if !e.domainAllowed(in.Email) {
		return "", errDomainNotAllowed
	}

	if err := e.ensureUnique(ctx, in.Email, in.Mobile); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegistrationDuplicate)
		}
		e.record(ctx, auditRecord{event: auditEventRegistrationRequest, email: in.Email, err: err})
		return "", err
	}

	hash, err := e.passwords.Hash(in.Password)
	if err != nil {
		return "", passwordError(err)
	}

	code, err := internal.NewOTP(e.config.Registration.ActivationCodeDigits)
	if err != nil {
		return "", ErrInternal.Wrap(err)
	}

	token, _, err := e.tokens.IssueActivation(jwt.Registration{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Mobile:       in.Mobile,
		Address:      in.Address,
		Sex:          in.Sex,
	}, code)
	if err != nil {
		return "", ErrInternal.Wrap(err)
	}

	if err := e.send(ctx, Message{
		To:       in.Email,
		Subject:  "Activate your account!",
		Template: e.config.Registration.ActivationTemplate,
		Data:     map[string]string{"name": in.Name, "activationCode": code},
	}); err != nil {
		e.record(ctx, auditRecord{event: auditEventRegistrationRequest, email: in.Email, err: err})
		return "", errActivationMail.Wrap(err)
	}

	e.record(ctx, auditRecord{event: auditEventRegistrationRequest, email: in.Email})
	return token, nil
}

// Activate completes a registration. The code must match the one mailed by
// [Engine.Register]; a token whose email has meanwhile been registered is
// rejected, which makes every activation token single use.
func (e *Engine) Activate(ctx context.Context, activationToken, code string) (*User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if activationToken == "" || code == "" {
		e.metricInc(MetricActivationFailure)
		return nil, ErrActivationInvalid
	}

	claims, err := e.tokens.Verify(activationToken, jwt.PurposeActivation)
	if err != nil || claims.Pending == nil {
		e.metricInc(MetricActivationFailure)
		return nil, ErrActivationInvalid.Wrap(err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Code), []byte(code)) != 1 {
		e.metricInc(MetricActivationFailure)
		e.record(ctx, auditRecord{event: auditEventActivation, email: claims.Pending.Email, err: ErrActivationInvalid})
		return nil, ErrActivationInvalid
	}

	pending := claims.Pending
	if _, err := e.users.FindByEmail(ctx, pending.Email); err == nil {
		e.metricInc(MetricActivationFailure)
		return nil, ErrAccountExists
	} else if !isUserNotFound(err) {
		return nil, ErrInternal.Wrap(err)
	}

	now := e.clock().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		Name:         pending.Name,
		Role:         e.config.Registration.DefaultRole,
		Mobile:       pending.Mobile,
		Address:      pending.Address,
		Sex:          pending.Sex,
		AvatarURL:    e.config.Registration.DefaultAvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.Create(ctx, user); err != nil {
		e.metricInc(MetricActivationFailure)
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, ErrInternal.Wrap(err)
	}

	e.metricInc(MetricActivationSuccess)
	e.record(ctx, auditRecord{event: auditEventActivation, userID: user.ID, email: user.Email})
	return user, nil
}

// DeleteAccount removes the account and ends its session.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.users.Delete(ctx, userID); err != nil {
		if isUserNotFound(err) {
			return ErrUserNotFound
		}
		return ErrInternal.Wrap(err)
	}
	if err := e.registry.Invalidate(ctx, userID); err != nil {
		// The record expires with its TTL and refresh fails once the user is gone.
		e.warn("session invalidation after delete failed", "user_id", userID, "error", err)
	} else {
		e.metricInc(MetricSessionInvalidated)
	}
	e.metricInc(MetricAccountDeleted)
	e.record(ctx, auditRecord{event: auditEventAccountDeleted, userID: userID})
	return nil
}

func (e *Engine) ensureUnique(ctx context.Context, email, mobile string) error {
	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !isUserNotFound(err) {
		return ErrInternal.Wrap(err)
	}
	if _, err := e.users.FindByMobile(ctx, mobile); err == nil {
		return errMobileExists
	} else if !isUserNotFound(err) {
		return ErrInternal.Wrap(err)
	}
	return nil
}

func (e *Engine) domainAllowed(email string) bool {
	allowed := e.config.Registration.AllowedEmailDomains
	if len(allowed) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	for _, d := range allowed {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// send delivers msg. A missing mailer is a wiring error.
func (e *Engine) send(ctx context.Context, msg Message) error {
	if e.mailer == nil {
		return errors.New("no mailer configured")
	}
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.metricInc(MetricMailFailure)
		e.warn("mail delivery failed", "template", msg.Template, "to", msg.To, "error", err)
		return err
	}
	return nil
}

func passwordError(err error) error {
	if errors.Is(err, password.ErrPolicy) {
		return ErrBadRequest.WithMessage("Password does not meet the length policy").Wrap(err)
	}
	return ErrInternal.Wrap(err)
}
