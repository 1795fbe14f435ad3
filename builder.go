package auth

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/zengzjie/food-delivery-sass/auth/internal/audit"
	"github.com/zengzjie/food-delivery-sass/auth/internal/limiters"
	"github.com/zengzjie/food-delivery-sass/auth/internal/rate"
	"github.com/zengzjie/food-delivery-sass/auth/jwt"
	"github.com/zengzjie/food-delivery-sass/auth/password"
	"github.com/zengzjie/food-delivery-sass/auth/session"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	registry  session.Registry
	users     CredentialStore
	mailer    Mailer
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the session registry and the throttles with client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRegistry overrides the session registry. Without Redis this is the
// only way to get a registry; tests use [session.NewMemoryStore].
func (b *Builder) WithRegistry(reg session.Registry) *Builder {
	b.registry = reg
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.users = store
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("credential store required")
	}
	if b.registry == nil && b.redis == nil {
		return nil, errors.New("redis client or session registry required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- SESSION REGISTRY --------
	registry := b.registry
	if registry == nil {
		registry = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		registry: registry,
		users:    b.users,
		mailer:   b.mailer,
		logger:   logger,
		now:      cfg.Now,
	}

	// -------- THROTTLES --------
	// Both need Redis; without it login and reset requests are unthrottled.
	if b.redis != nil {
		if cfg.Security.EnableLoginThrottle {
			engine.rateLimiter = rate.New(b.redis, rate.Config{
				Prefix:                cfg.Session.RedisPrefix,
				EnableIPThrottle:      cfg.Security.EnableIPThrottle,
				MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
				LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			})
		}
		if cfg.Security.MaxResetRequests > 0 {
			engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
				Prefix:           cfg.Session.RedisPrefix,
				EnableIPThrottle: cfg.Security.EnableIPThrottle,
				Window:           cfg.Security.ResetCooldownDuration,
				MaxRequests:      cfg.Security.MaxResetRequests,
			})
		}
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
		Logger:      logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.passwords = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:     cloneBytes(cfg.Tokens.AccessSecret),
		RefreshSecret:    cloneBytes(cfg.Tokens.RefreshSecret),
		ActivationSecret: cloneBytes(cfg.Tokens.ActivationSecret),
		ResetSecret:      cloneBytes(cfg.Tokens.ResetSecret),
		AccessTTL:        cfg.Tokens.AccessTTL,
		RefreshTTL:       cfg.Tokens.RefreshTTL,
		ActivationTTL:    cfg.Tokens.ActivationTTL,
		ResetTTL:         cfg.Tokens.ResetTTL,
		Issuer:           cfg.Tokens.Issuer,
		Leeway:           cfg.Tokens.Leeway,
		Now:              cfg.Now,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.tokens = jm

	b.built = true

	return engine, nil
}
