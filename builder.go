package goIdentity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/notify"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it once during startup; Build may
// be called only once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	notifier  Notifier
	auditSink AuditSink
	logger    *slog.Logger
	providers []oauth.Client
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, reset tokens and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the one authoritative user backend.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Without one the engine logs nothing.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithOAuthClient registers a provider. Later registrations of the same
// name replace earlier ones.
func (b *Builder) WithOAuthClient(c oauth.Client) *Builder {
	if c != nil {
		b.providers = append(b.providers, c)
	}
	return b
}

// WithClock replaces time.Now for session, reset and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "goidentity")

	// -------- TOKEN CODEC --------
	codec, err := token.NewCodec(token.Config{
		Key:        cfg.Token.SigningKey,
		KeyID:      cfg.Token.KeyID,
		VerifyKeys: cfg.Token.VerifyKeys,
		Issuer:     cfg.Token.Issuer,
		Leeway:     cfg.Token.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		now:       now,
		store:     b.store,
		codec:     codec,
		hasher:    hasher,
		providers: oauth.NewRegistry(b.providers...),
		policy: password.Policy{
			MinLength:     cfg.Password.MinLength,
			MaxBytes:      cfg.Password.MaxBytes,
			RequireUpper:  cfg.Password.RequireUpper,
			RequireLower:  cfg.Password.RequireLower,
			RequireDigit:  cfg.Password.RequireDigit,
			RequireSymbol: cfg.Password.RequireSymbol,
		},
	}

	// -------- REDIS-BACKED STORES --------
	engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix).WithClock(now)
	engine.resets = stores.NewPasswordResetStore(b.redis, cfg.Reset.RedisPrefix).WithClock(now)
	engine.states = stores.NewOAuthStateStore(b.redis, cfg.OAuth.RedisPrefix)
	engine.limiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		MaxResetRequests:      cfg.Reset.MaxRequests,
		ResetRequestWindow:    cfg.Reset.RequestWindow,
	})

	// -------- OBSERVABILITY --------
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	notifier := b.notifier
	if notifier == nil {
		notifier = NotifierFunc(func(_ context.Context, n ResetNotification) error {
			logger.Warn("no notifier configured; password reset link not sent", "user_id", n.UserID)
			return nil
		})
	}
	engine.notifier = notify.New[ResetNotification](notify.Config{
		BufferSize: cfg.Notify.BufferSize,
		Workers:    cfg.Notify.Workers,
		Timeout:    cfg.Notify.Timeout,
	}, notifier.SendPasswordReset, logger)

	b.built = true

	return engine, nil
}
