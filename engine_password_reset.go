package goIdentity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/notify"
	"github.com/MrEthical07/goIdentity/internal/stores"
)

// RequestPasswordReset issues a reset link for an eligible account and
// queues it for the Notifier. The result does not depend on whether the
// email exists; only an unbuilt engine returns an error.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, email, e.passwordResetFlowDeps())
}

// ConfirmPasswordReset redeems token, sets newPassword and revokes every
// session of the account. Unusable tokens return ErrResetInvalidOrExpired;
// weak passwords return a *ValidationError and leave the token unused.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunConfirmPasswordReset(ctx, token, newPassword, e.passwordResetFlowDeps())
}

// ResetURL renders the link a user follows to redeem token.
func (e *Engine) ResetURL(token string) string {
	base := strings.TrimRight(e.config.Routes.PublicURL, "/")
	return base + e.config.Routes.Reset + "?token=" + url.QueryEscape(token)
}

func newResetToken() (string, string, [32]byte, error) {
	id, err := internal.NewRandomID()
	if err != nil {
		return "", "", [32]byte{}, err
	}
	secret, err := internal.NewResetSecret()
	if err != nil {
		return "", "", [32]byte{}, err
	}
	return id.String(), internal.EncodeResetToken(id, secret), internal.HashResetSecret(secret), nil
}

func parseResetToken(tok string) (string, [32]byte, error) {
	id, secret, err := internal.DecodeResetToken(tok)
	if err != nil {
		return "", [32]byte{}, err
	}
	return id.String(), internal.HashResetSecret(secret), nil
}

func isResetRejected(err error) bool {
	return errors.Is(err, stores.ErrResetNotFound) ||
		errors.Is(err, stores.ErrResetExpired) ||
		errors.Is(err, stores.ErrResetAlreadyUsed) ||
		errors.Is(err, stores.ErrResetSecretMismatch) ||
		errors.Is(err, stores.ErrResetAttemptsExceeded)
}

func (e *Engine) passwordResetFlowDeps() flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		ResetTTL:    e.config.Reset.TTL,
		MaxAttempts: e.config.Reset.MaxAttempts,
		Now:         e.now,
		AllowResetRequest: func(ctx context.Context, email string) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.AllowResetRequest(ctx, email)
		},
		GetUserByEmail: func(ctx context.Context, email string) (flows.UserRecord, error) {
			u, err := e.getUserByEmail(ctx, email)
			if err != nil {
				return flows.UserRecord{}, err
			}
			return toUserRecord(u), nil
		},
		NewResetToken:   newResetToken,
		ParseResetToken: parseResetToken,
		SaveResetRecord: func(ctx context.Context, resetID, userID string, secretHash [32]byte, expiresAt time.Time, ttl time.Duration) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.resets.Save(ctx, resetID, &stores.PasswordResetRecord{
				UserID:     userID,
				SecretHash: secretHash,
				ExpiresAt:  expiresAt.Unix(),
			}, ttl)
		},
		ConsumeResetRecord: func(ctx context.Context, resetID string, secretHash [32]byte, maxAttempts int) (string, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			rec, err := e.resets.Consume(ctx, resetID, secretHash, maxAttempts)
			if err != nil {
				return "", err
			}
			return rec.UserID, nil
		},
		ReleaseResetRecord: func(ctx context.Context, resetID string) error {
			// The caller's context may be what failed the password write.
			ctx, cancel := e.storeCtx(context.WithoutCancel(ctx))
			defer cancel()
			return e.resets.Release(ctx, resetID)
		},
		IsResetRejected: isResetRejected,
		IsReplay: func(err error) bool {
			return errors.Is(err, stores.ErrResetAlreadyUsed)
		},
		ResetURL: e.ResetURL,
		Notify: func(ctx context.Context, n flows.ResetNotice) error {
			err := e.notifier.Enqueue(ctx, ResetNotification(n))
			if errors.Is(err, notify.ErrQueueFull) {
				e.metricInc(MetricNotificationDropped)
			}
			return err
		},
		NewValidationError: newValidationError,
		CheckPassword:      e.policy.Check,
		HashPassword:       e.hasher.Hash,
		UpdatePasswordHash: e.updatePasswordHash,
		RevokeAllSessions: func(ctx context.Context, userID string) (int, error) {
			return flows.RunRevokeAllSessions(ctx, userID, e.logoutFlowDeps())
		},
		Hooks: e.hooks(),
		Metrics: flows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			PasswordResetReplay:         int(MetricPasswordResetReplay),
		},
		Events: flows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
			PasswordResetReplay:  auditEventPasswordResetReplay,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady:        ErrEngineNotReady,
			ResetInvalidOrExpired: ErrResetInvalidOrExpired,
		},
	}
}
