package goIdentity

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{newValidationError("email", "bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", ErrResetInvalidOrExpired), http.StatusBadRequest},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrProviderUnknown, http.StatusNotFound},
		{ErrEmailTaken, http.StatusConflict},
		{ErrLinkConflict, http.StatusConflict},
		{ErrLoginRateLimited, http.StatusTooManyRequests},
		{ErrNotConfigured, http.StatusInternalServerError},
		{errors.New("redis: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	if got := PublicMessage(errors.New("pq: password authentication failed for user admin")); got != "internal error" {
		t.Fatalf("internal detail leaked: %q", got)
	}
	if got := PublicMessage(newValidationError("email", "email address is invalid")); got != "email: email address is invalid" {
		t.Fatalf("unexpected validation message %q", got)
	}
	if got := PublicMessage(fmt.Errorf("login: %w", ErrInvalidCredentials)); got != ErrInvalidCredentials.Error() {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("register: %w", newValidationError("name", "too long"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation match")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected field name, got %+v", verr)
	}
}
