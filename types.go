package auth

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth/internal/audit"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// User is the persisted account as returned by a [CredentialStore].
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Mobile       string
	Address      string
	Sex          string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the snapshot written into the session registry at login.
func (u *User) Profile() session.Profile {
	return session.Profile{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Mobile:    u.Mobile,
		Address:   u.Address,
		Sex:       u.Sex,
		AvatarURL: u.AvatarURL,
	}
}

// CredentialStore is the persistent account store.
//
// Lookups return [ErrUserNotFound] when the account is absent; Create returns
// [ErrAccountExists] on a unique violation. Other failures are returned as-is
// and surface as INTERNAL.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByMobile(ctx context.Context, mobile string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
}

// Message is an outbound templated email.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}

// Mailer delivers templated email. Rendering belongs to the implementation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             session.Profile
}

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	SubjectID string
	Name      string
	Role      string
	Profile   session.Profile
}

// Operation is one gate invocation: the GraphQL fields or route being called
// and the bearer token presented with it, if any.
//
// Fields lists every top-level field of a GraphQL document and takes
// precedence over Name. Such a request is public only when every field is,
// and the role requirement of each field applies.
type Operation struct {
	Name   string
	Fields []string
	Token  string
}

func (o Operation) names() []string {
	if len(o.Fields) > 0 {
		return o.Fields
	}
	if o.Name == "" {
		return nil
	}
	return []string{o.Name}
}

// State is a position in the gate state machine.
type State uint8

const (
	StateUnclassified State = iota
	StatePublicAllowed
	StateProtectedChecking
	StateAuthorized
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePublicAllowed:
		return "public_allowed"
	case StateProtectedChecking:
		return "protected_checking"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	default:
		return "unclassified"
	}
}

// Outcome is the terminal result of [Engine.Authorize].
//
// State is StatePublicAllowed, StateAuthorized or StateRejected. Identity is
// set for Authorized and for PublicAllowed when the presented token is the
// subject's current one. Err is set only for Rejected.
type Outcome struct {
	State    State
	Identity *Identity
	Err      *Error
}

// Allowed reports whether the operation may proceed.
func (o Outcome) Allowed() bool {
	return o.State == StatePublicAllowed || o.State == StateAuthorized
}

// RegisterInput carries a sign-up request. Every field is required.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Mobile   string
	Address  string
	Sex      string
}

// AuditEvent is the event model delivered to an [AuditSink].
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON audit event per line with emails masked.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs audit events through a [slog.Logger].
type SlogSink = audit.SlogSink

// MultiSink fans audit events out to several sinks.
type MultiSink = audit.MultiSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewSlogSink returns a [SlogSink] logging to l, or to slog.Default when l is nil.
func NewSlogSink(l *slog.Logger) *SlogSink { return audit.NewSlogSink(l) }
