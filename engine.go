package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/notify"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/token"
)

// Engine runs every identity operation. It is immutable after Build and
// safe for concurrent use.
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	store     CredentialStore
	sessions  *session.Store
	resets    *stores.PasswordResetStore
	states    *stores.OAuthStateStore
	limiter   *rate.Limiter
	codec     *token.Codec
	hasher    *password.Hasher
	policy    password.Policy
	providers *oauth.Registry

	audit    *audit.Dispatcher
	notifier *notify.Dispatcher[ResetNotification]
	metrics  *Metrics
}

// Close flushes the audit and notification queues.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notifier.Close()
	e.audit.Close()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Logger returns the engine logger, tagged with component=goidentity.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Providers lists the registered OAuth provider names.
func (e *Engine) Providers() []string {
	return e.providers.Names()
}

// Ping checks Redis and, when it supports it, the credential store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if _, err := e.sessions.Ping(ctx); err != nil {
		return err
	}
	if p, ok := e.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("credential store: %w", err)
		}
	}
	return nil
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationStats reports notifier queue counters.
func (e *Engine) NotificationStats() notify.Stats {
	if e == nil {
		return notify.Stats{}
	}
	return e.notifier.Stats()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx bounds a store call by Config.StoreTimeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

func (e *Engine) hooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.sessions != nil && e.codec != nil && e.hasher != nil
}

/*
====================================
CREDENTIAL STORE ADAPTERS
====================================
*/

func toUserRecord(u User) flows.UserRecord {
	return flows.UserRecord{
		UserID:       u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
	}
}

func (e *Engine) getUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.GetUserByEmail(ctx, email)
}

func (e *Engine) updatePasswordHash(ctx context.Context, userID, hash string) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.UpdatePasswordHash(ctx, userID, hash)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrLinkNotFound)
}

func isEmailTaken(err error) bool {
	return errors.Is(err, ErrEmailTaken)
}

// CurrentUser loads the stored account behind p. A principal whose user no
// longer exists is unauthenticated.
func (e *Engine) CurrentUser(ctx context.Context, p *Principal) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	if p == nil {
		return User{}, ErrUnauthenticated
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrUnauthenticated
		}
		return User{}, err
	}
	return u, nil
}
