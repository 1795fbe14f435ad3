package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines the Engine's tunables.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Tokens       TokenConfig
	Session      SessionConfig
	Gate         GateConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Security     SecurityConfig
	Cookie       CookieConfig
	Audit        AuditConfig
	Metrics      MetricsConfig

	// Now overrides the clock for token issuance and verification.
	Now func() time.Time
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds one HMAC secret and lifetime per token purpose.
// Secrets must be at least 16 bytes and pairwise distinct.
type TokenConfig struct {
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
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the server-side session registry.
type SessionConfig struct {
	RedisPrefix string
	// TTL bounds a registry record. Zero means Tokens.RefreshTTL, so a record
	// lives exactly as long as the refresh token that can rotate it.
	TTL time.Duration
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig classifies operations for [Engine.Authorize].
type GateConfig struct {
	// PublicOperations never reject. Everything else is protected.
	PublicOperations []string
	// OperationRoles restricts protected operations to the listed roles.
	// Operations absent from the map accept any authenticated role.
	OperationRoles map[string][]string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines argon2id cost parameters and the length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig shapes sign-up, activation and reset mail.
type RegistrationConfig struct {
	// AllowedEmailDomains limits sign-up to these domains when non-empty.
	AllowedEmailDomains []string
	DefaultRole         string
	DefaultAvatarURL    string
	// ClientURI is the web client origin used to build reset links.
	ClientURI            string
	ActivationCodeDigits int
	ActivationTemplate   string
	ResetTemplate        string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines throttling thresholds for login and reset requests.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxResetRequests      int
	ResetCooldownDuration time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig names and scopes the session cookies written by the middleware.
type CookieConfig struct {
	AccessName    string
	RefreshName   string
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
	// Production adds Secure and Domain.
	Production bool
	Domain     string
}

// AuditConfig defines dispatcher buffering.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds one sink delivery. Zero disables the bound.
	SinkTimeout time.Duration
}

// MetricsConfig toggles in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a Config with every field set except the token
// secrets, which callers must supply.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			ActivationTTL: 5 * time.Minute,
			ResetTTL:      5 * time.Minute,
			Issuer:        "food-delivery-users",
		},
		Session: SessionConfig{
			RedisPrefix: "fd",
		},
		Gate: GateConfig{
			OperationRoles: map[string][]string{
				"deleteUser": {"user", "admin"},
			},
			PublicOperations: []string{
				"register", "activateUser", "login", "refreshToken",
				"resetPassword", "executePasswordReset",
			},
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      6,
			UpgradeOnLogin: true,
		},
		Registration: RegistrationConfig{
			DefaultRole:          "user",
			DefaultAvatarURL:     "https://github.com/shadcn.png",
			ClientURI:            "http://localhost:3000",
			ActivationCodeDigits: 6,
			ActivationTemplate:   "activation-mail",
			ResetTemplate:        "reset-password",
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			MaxResetRequests:      3,
			ResetCooldownDuration: 15 * time.Minute,
		},
		Cookie: CookieConfig{
			AccessName:    "Authorization",
			RefreshName:   "Refresh_Token",
			AccessMaxAge:  24 * time.Hour,
			RefreshMaxAge: 7 * 24 * time.Hour,
			Domain:        ".example.com",
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.AccessSecret = cloneBytes(cfg.Tokens.AccessSecret)
	out.Tokens.RefreshSecret = cloneBytes(cfg.Tokens.RefreshSecret)
	out.Tokens.ActivationSecret = cloneBytes(cfg.Tokens.ActivationSecret)
	out.Tokens.ResetSecret = cloneBytes(cfg.Tokens.ResetSecret)
	out.Gate.PublicOperations = append([]string(nil), cfg.Gate.PublicOperations...)
	if cfg.Gate.OperationRoles != nil {
		out.Gate.OperationRoles = make(map[string][]string, len(cfg.Gate.OperationRoles))
		for op, roles := range cfg.Gate.OperationRoles {
			out.Gate.OperationRoles[op] = append([]string(nil), roles...)
		}
	}
	out.Registration.AllowedEmailDomains = append([]string(nil), cfg.Registration.AllowedEmailDomains...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error. Token secrets are checked
// by jwt.NewManager when the Engine is built.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 ||
		c.Tokens.ActivationTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}
	if c.Tokens.RefreshTTL <= c.Tokens.AccessTTL {
		return errors.New("Tokens RefreshTTL must be greater than AccessTTL")
	}
	if c.Tokens.Leeway < 0 {
		return errors.New("Tokens Leeway must be >= 0")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL < 0 {
		return errors.New("Session TTL must be >= 0")
	}

	// Gate
	public := make(map[string]struct{}, len(c.Gate.PublicOperations))
	for _, op := range c.Gate.PublicOperations {
		if strings.TrimSpace(op) == "" {
			return errors.New("Gate PublicOperations must not contain empty names")
		}
		public[op] = struct{}{}
	}
	for op, roles := range c.Gate.OperationRoles {
		if _, ok := public[op]; ok {
			return fmt.Errorf("Gate operation %q cannot be both public and role-restricted", op)
		}
		if len(roles) == 0 {
			return fmt.Errorf("Gate OperationRoles[%q] must list at least one role", op)
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Registration
	if c.Registration.DefaultRole == "" {
		return errors.New("Registration DefaultRole must not be empty")
	}
	if c.Registration.ActivationCodeDigits < 6 || c.Registration.ActivationCodeDigits > 10 {
		return errors.New("Registration ActivationCodeDigits must be between 6 and 10")
	}
	if c.Registration.ClientURI == "" {
		return errors.New("Registration ClientURI must not be empty")
	}
	if c.Registration.ActivationTemplate == "" || c.Registration.ResetTemplate == "" {
		return errors.New("Registration mail templates must not be empty")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}
	if c.Security.MaxResetRequests < 0 {
		return errors.New("Security MaxResetRequests must be >= 0")
	}
	if c.Security.MaxResetRequests > 0 && c.Security.ResetCooldownDuration <= 0 {
		return errors.New("Security ResetCooldownDuration must be > 0")
	}

	// Cookie
	if c.Cookie.AccessName == "" || c.Cookie.RefreshName == "" {
		return errors.New("Cookie names must not be empty")
	}
	if c.Cookie.AccessName == c.Cookie.RefreshName {
		return errors.New("Cookie AccessName and RefreshName must differ")
	}
	if c.Cookie.Production && c.Cookie.Domain == "" {
		return errors.New("Cookie Domain is required in production")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	return nil
}

func (c *Config) sessionTTL() time.Duration {
	if c.Session.TTL > 0 {
		return c.Session.TTL
	}
	return c.Tokens.RefreshTTL
}
