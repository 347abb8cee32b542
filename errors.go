package goIdentity

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation marks malformed input. Errors carrying a field message
	// are *ValidationError and match ErrValidation with errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for an unknown email, an account
	// without a password, and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthenticated is returned by ValidateSession for any unusable token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrEmailTaken is returned when registering an email that already exists.
	// CredentialStore implementations return it from the create methods.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotConfigured is returned for a known OAuth provider without credentials.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrProviderUnknown is returned for an OAuth provider name that is not registered.
	ErrProviderUnknown = errors.New("unknown provider")
	// ErrLoginRateLimited is returned while an email or client IP is cooling down.
	ErrLoginRateLimited = errors.New("too many login attempts")
	// ErrResetInvalidOrExpired covers malformed, unknown, expired, used and
	// mismatched reset tokens.
	ErrResetInvalidOrExpired = errors.New("reset token invalid or expired")
	// ErrEngineNotReady is returned by an Engine that was not built by Builder.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrUserNotFound is returned by CredentialStore lookups with no match.
	ErrUserNotFound = errors.New("user not found")
	// ErrLinkNotFound is returned by CredentialStore.FindUserByLink with no match.
	ErrLinkNotFound = errors.New("linked account not found")
	// ErrLinkConflict is returned by the CredentialStore link methods when the
	// provider identity already belongs to a different user.
	ErrLinkConflict = errors.New("linked account belongs to another user")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is makes every *ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StatusCode maps an engine error to the HTTP status a transport should send.
// Unrecognized errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrResetInvalidOrExpired):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrProviderUnknown):
		return http.StatusNotFound
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrLinkConflict):
		return http.StatusConflict
	case errors.Is(err, ErrLoginRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client for err. Only
// validation messages and the fixed sentinel texts are ever exposed.
func PublicMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	case errors.Is(err, ErrEmailTaken):
		return ErrEmailTaken.Error()
	case errors.Is(err, ErrLinkConflict):
		return ErrLinkConflict.Error()
	case errors.Is(err, ErrProviderUnknown):
		return ErrProviderUnknown.Error()
	case errors.Is(err, ErrLoginRateLimited):
		return ErrLoginRateLimited.Error()
	case errors.Is(err, ErrResetInvalidOrExpired):
		return ErrResetInvalidOrExpired.Error()
	default:
		return "internal error"
	}
}
