package flows

import (
	"context"
	"errors"
	"time"
)

// ResetNotice is handed to the notifier for an eligible reset request.
type ResetNotice struct {
	UserID    string
	Email     string
	Name      string
	URL       string
	ExpiresAt time.Time
}

// PasswordResetMetrics carries metric IDs used by the reset flows.
type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	PasswordResetReplay         int
}

// PasswordResetEvents carries audit event names used by the reset flows.
type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
	PasswordResetReplay  string
}

// PasswordResetErrors carries host-level sentinel errors used by the reset flows.
type PasswordResetErrors struct {
	EngineNotReady        error
	ResetInvalidOrExpired error
}

// PasswordResetDeps captures reset request and redemption dependencies.
type PasswordResetDeps struct {
	ResetTTL    time.Duration
	MaxAttempts int
	Now         func() time.Time

	AllowResetRequest func(context.Context, string) error
	GetUserByEmail    func(context.Context, string) (UserRecord, error)

	NewResetToken      func() (resetID, token string, secretHash [32]byte, err error)
	ParseResetToken    func(string) (resetID string, secretHash [32]byte, err error)
	SaveResetRecord    func(ctx context.Context, resetID, userID string, secretHash [32]byte, expiresAt time.Time, ttl time.Duration) error
	ConsumeResetRecord func(ctx context.Context, resetID string, secretHash [32]byte, maxAttempts int) (userID string, err error)
	// ReleaseResetRecord makes a consumed record redeemable again. Optional.
	ReleaseResetRecord func(ctx context.Context, resetID string) error
	// IsResetRejected reports whether a consume error means the token is
	// absent, used, expired, mismatched, or locked out.
	IsResetRejected func(error) bool
	IsReplay        func(error) bool

	ResetURL func(token string) string
	Notify   func(context.Context, ResetNotice) error

	NewValidationError func(field, message string) error
	CheckPassword      func(string) error
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(context.Context, string, string) error
	RevokeAllSessions  func(context.Context, string) (int, error)

	Hooks
	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ResetTTL <= 0 {
		deps.ResetTTL = time.Hour
	}
	if deps.IsReplay == nil {
		deps.IsReplay = func(error) bool { return false }
	}
}

// RunRequestPasswordReset issues a reset token for eligible accounts. The
// caller's response must not depend on the outcome: malformed, unknown,
// passwordless and throttled emails all return nil, as do store and notifier
// failures, which are logged.
func RunRequestPasswordReset(ctx context.Context, rawEmail string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.GetUserByEmail == nil ||
		deps.NewResetToken == nil ||
		deps.SaveResetRecord == nil ||
		deps.ResetURL == nil ||
		deps.Notify == nil {
		return deps.Errors.EngineNotReady
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	audit := func(userID, outcome string, err error) {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, err == nil, userID, err, func() map[string]string {
			return map[string]string{"outcome": outcome}
		})
	}

	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		audit("", "malformed_email", nil)
		return nil
	}

	if deps.AllowResetRequest != nil {
		if err := deps.AllowResetRequest(ctx, email); err != nil {
			deps.Warn("goIdentity: reset request throttled or limiter unavailable", "error", err)
			audit("", "throttled", nil)
			return nil
		}
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		audit("", "no_account", nil)
		return nil
	}
	if user.PasswordHash == "" {
		audit(user.UserID, "no_password_credential", nil)
		return nil
	}

	resetID, tok, secretHash, err := deps.NewResetToken()
	if err != nil {
		deps.Warn("goIdentity: reset token generation failed", "error", err)
		return nil
	}
	expiresAt := deps.Now().Add(deps.ResetTTL)
	if err := deps.SaveResetRecord(ctx, resetID, user.UserID, secretHash, expiresAt, deps.ResetTTL); err != nil {
		deps.Warn("goIdentity: reset record save failed", "user_id", user.UserID, "error", err)
		audit(user.UserID, "store_failed", err)
		return nil
	}

	notice := ResetNotice{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		URL:       deps.ResetURL(tok),
		ExpiresAt: expiresAt,
	}
	if err := deps.Notify(ctx, notice); err != nil {
		deps.Warn("goIdentity: reset notification not delivered", "user_id", user.UserID, "error", err)
	}

	audit(user.UserID, "issued", nil)
	return nil
}

// RunConfirmPasswordReset redeems tok and sets newPassword. The strength
// check runs before the token is consumed so a rejected password leaves the
// token usable. The token is consumed before the password is written; if
// hashing or the write fails the record is released so the link still works.
// A successful reset revokes every session of the user.
func RunConfirmPasswordReset(ctx context.Context, tok, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.ParseResetToken == nil ||
		deps.ConsumeResetRecord == nil ||
		deps.IsResetRejected == nil ||
		deps.NewValidationError == nil ||
		deps.CheckPassword == nil ||
		deps.HashPassword == nil ||
		deps.UpdatePasswordHash == nil ||
		deps.RevokeAllSessions == nil {
		return deps.Errors.EngineNotReady
	}

	failure := func(userID, reason string, err error) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, userID, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	resetID, secretHash, err := deps.ParseResetToken(tok)
	if err != nil {
		return failure("", "malformed_token", deps.Errors.ResetInvalidOrExpired)
	}
	if err := deps.CheckPassword(newPassword); err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return deps.NewValidationError("password", err.Error())
	}

	userID, err := deps.ConsumeResetRecord(ctx, resetID, secretHash, deps.MaxAttempts)
	if err != nil {
		if deps.IsReplay(err) {
			deps.MetricInc(deps.Metrics.PasswordResetReplay)
			deps.EmitAudit(ctx, deps.Events.PasswordResetReplay, false, "", err, nil)
		}
		if deps.IsResetRejected(err) {
			return failure("", "token_rejected", deps.Errors.ResetInvalidOrExpired)
		}
		return failure("", "store_unavailable", err)
	}

	release := func() {
		if deps.ReleaseResetRecord == nil {
			return
		}
		if err := deps.ReleaseResetRecord(ctx, resetID); err != nil {
			deps.Warn("goIdentity: reset token could not be released", "user_id", userID, "error", err)
		}
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		release()
		return failure(userID, "hash_failed", err)
	}
	if err := deps.UpdatePasswordHash(ctx, userID, hash); err != nil {
		release()
		return failure(userID, "update_hash_failed", err)
	}
	if _, err := deps.RevokeAllSessions(ctx, userID); err != nil {
		return failure(userID, "session_invalidation_failed", errors.Join(errSessionInvalidation, err))
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, userID, nil, nil)
	return nil
}

var errSessionInvalidation = errors.New("password changed but sessions could not be revoked")
