package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned for a well-formed token past its expiration.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the signature or the shape of a token is invalid.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongPurpose is returned for a genuine token presented for a purpose it was not minted for.
	ErrWrongPurpose = errors.New("token presented for the wrong purpose")
)

const minSecretLength = 16

// Config holds the purpose-specific secrets and lifetimes.
//
// Now overrides the clock; it is used by tests that need to move past an
// expiry without sleeping.
type Config struct {
	AccessSecret     []byte
	RefreshSecret    []byte
	ActivationSecret []byte
	ResetSecret      []byte

	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ActivationTTL time.Duration
	ResetTTL      time.Duration

	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

// Manager signs and verifies tokens for every [Purpose].
//
// Manager instances are immutable after construction and safe for concurrent use.
type Manager struct {
	config  Config
	secrets map[Purpose][]byte
	ttls    map[Purpose]time.Duration
}

// NewManager validates cfg and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secrets := map[Purpose][]byte{
		PurposeAccess:     cloneBytes(cfg.AccessSecret),
		PurposeRefresh:    cloneBytes(cfg.RefreshSecret),
		PurposeActivation: cloneBytes(cfg.ActivationSecret),
		PurposeReset:      cloneBytes(cfg.ResetSecret),
	}
	ttls := map[Purpose]time.Duration{
		PurposeAccess:     cfg.AccessTTL,
		PurposeRefresh:    cfg.RefreshTTL,
		PurposeActivation: cfg.ActivationTTL,
		PurposeReset:      cfg.ResetTTL,
	}

	for _, p := range []Purpose{PurposeAccess, PurposeRefresh, PurposeActivation, PurposeReset} {
		if len(secrets[p]) < minSecretLength {
			return nil, fmt.Errorf("%s secret must be at least %d bytes", p, minSecretLength)
		}
		if ttls[p] <= 0 {
			return nil, fmt.Errorf("%s TTL must be > 0", p)
		}
	}

	// A shared secret would let one purpose's token verify as another.
	all := []Purpose{PurposeAccess, PurposeRefresh, PurposeActivation, PurposeReset}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if bytes.Equal(secrets[all[i]], secrets[all[j]]) {
				return nil, fmt.Errorf("%s and %s secrets must differ", all[i], all[j])
			}
		}
	}

	return &Manager{config: cfg, secrets: secrets, ttls: ttls}, nil
}

// TTL returns the configured lifetime for purpose p.
func (m *Manager) TTL(p Purpose) time.Duration {
	return m.ttls[p]
}

// IssueAccess mints an access token carrying subjectID and name.
func (m *Manager) IssueAccess(subjectID, name string) (string, time.Time, error) {
	return m.issue(PurposeAccess, Claims{Name: name, RegisteredClaims: jwt.RegisteredClaims{Subject: subjectID}})
}

// IssueRefresh mints a refresh token carrying subjectID and name.
func (m *Manager) IssueRefresh(subjectID, name string) (string, time.Time, error) {
	return m.issue(PurposeRefresh, Claims{Name: name, RegisteredClaims: jwt.RegisteredClaims{Subject: subjectID}})
}

// IssueActivation mints an activation token for a pending registration.
// The subject is the registration email.
func (m *Manager) IssueActivation(reg Registration, code string) (string, time.Time, error) {
	if reg.Email == "" {
		return "", time.Time{}, errors.New("activation requires an email")
	}
	pending := reg
	return m.issue(PurposeActivation, Claims{
		Name:             reg.Name,
		Pending:          &pending,
		Code:             code,
		RegisteredClaims: jwt.RegisteredClaims{Subject: reg.Email},
	})
}

// IssueReset mints a password reset token. fingerprint binds the token to
// the password hash it was issued against so it stops verifying once used.
func (m *Manager) IssueReset(subjectID, fingerprint string) (string, time.Time, error) {
	return m.issue(PurposeReset, Claims{
		Fingerprint:      fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subjectID},
	})
}

func (m *Manager) issue(p Purpose, claims Claims) (string, time.Time, error) {
	if claims.Subject == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	now := m.config.Now()
	expiresAt := now.Add(m.ttls[p])

	claims.Purpose = p
	claims.ID = uuid.NewString()
	claims.Issuer = m.config.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secrets[p])
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry and purpose of tokenStr.
//
// The returned error is one of [ErrExpired], [ErrMalformed] or
// [ErrWrongPurpose], possibly wrapping the parser's own error.
func (m *Manager) Verify(tokenStr string, expected Purpose) (*Claims, error) {
	if !expected.valid() {
		return nil, fmt.Errorf("unknown token purpose %q", expected)
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	presented, err := m.peek(tokenStr)
	if err != nil {
		return nil, ErrMalformed
	}
	if presented.Purpose != expected {
		if m.signedFor(tokenStr, presented.Purpose) {
			return nil, ErrWrongPurpose
		}
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFor(expected))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Subject reads the "sub" claim without verifying the signature. It is only
// suitable for locating the session record a token claims to belong to.
func (m *Manager) Subject(tokenStr string) (string, error) {
	claims, err := m.peek(strings.TrimSpace(tokenStr))
	if err != nil {
		return "", ErrMalformed
	}
	if claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

func (m *Manager) peek(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// signedFor reports whether tokenStr carries a valid signature under the
// secret of p, ignoring expiry.
func (m *Manager) signedFor(tokenStr string, p Purpose) bool {
	if !p.valid() {
		return false
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFor(p))
	return err == nil
}

func (m *Manager) keyFor(p Purpose) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.secrets[p], nil
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
