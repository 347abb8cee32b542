package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRegister             = "register"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventOAuthSuccess         = "oauth_success"
	auditEventOAuthFailure         = "oauth_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventPasswordResetReplay  = "password_reset_replay"
)

// AuditErrorCode is the stable error classification written to audit
// records in place of raw error text.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrEmailTaken         AuditErrorCode = "email_taken"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrResetInvalid       AuditErrorCode = "reset_invalid"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrEmailTaken):
		return auditErrEmailTaken
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrResetInvalidOrExpired):
		return auditErrResetInvalid
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrLinkNotFound):
		return auditErrUserNotFound
	default:
		return auditErrInternal
	}
}
