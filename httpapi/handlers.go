package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	guard "github.com/MrEthical07/goIdentity/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes = 64 << 10

	resetRequestedMessage = "If an account exists for that email, a reset link has been sent."
)

var errUnsupportedMediaType = errors.New("content type must be application/json")

type handlers struct {
	engine *goIdentity.Engine
	logger *slog.Logger
}

/*
====================================
REQUEST SCHEMAS
====================================
*/

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r registerRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return &goIdentity.ValidationError{Field: "email", Message: "is required"}
	case r.Password == "":
		return &goIdentity.ValidationError{Field: "password", Message: "is required"}
	case strings.TrimSpace(r.Name) == "":
		return &goIdentity.ValidationError{Field: "name", Message: "is required"}
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return &goIdentity.ValidationError{Field: "email", Message: "is required"}
	case r.Password == "":
		return &goIdentity.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

type requestResetRequest struct {
	Email string `json:"email"`
}

func (requestResetRequest) validate() error { return nil }

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r resetRequest) validate() error {
	switch {
	case r.Token == "":
		return &goIdentity.ValidationError{Field: "token", Message: "is required"}
	case r.Password == "":
		return &goIdentity.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

type validator interface {
	validate() error
}

/*
====================================
RESPONSES
====================================
*/

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	User goIdentity.User `json:"user"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *goIdentity.User `json:"user,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

/*
====================================
HANDLERS
====================================
*/

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Register(r.Context(), goIdentity.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.SetCookie(w, h.engine.SessionCookie(res.Session))
	writeJSON(w, http.StatusCreated, userResponse{User: res.User})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.SetCookie(w, h.engine.SessionCookie(res.Session))
	writeJSON(w, http.StatusOK, userResponse{User: res.User})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.engine.SessionCookieName()); err == nil {
		h.engine.Logout(r.Context(), c.Value)
	}
	http.SetCookie(w, h.engine.ClearSessionCookie())
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	p, ok := guard.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	u, err := h.engine.CurrentUser(r.Context(), p)
	if err != nil {
		if errors.Is(err, goIdentity.ErrUnauthenticated) {
			writeJSON(w, http.StatusOK, sessionResponse{})
			return
		}
		h.writeError(w, r, err)
		return
	}
	expires := p.ExpiresAt
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: &u, ExpiresAt: &expires})
}

func (h *handlers) requestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		// Only an unready engine gets here; the reply stays identical.
		h.logger.ErrorContext(r.Context(), "password reset request failed", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: resetRequestedMessage})
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *handlers) oauthBegin(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.BeginOAuth(r.Context(), chi.URLParam(r, "provider"), r.URL.Query().Get("next"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for _, c := range res.Cookies {
		http.SetCookie(w, c)
	}
	http.Redirect(w, r, res.AuthURL, http.StatusFound)
}

func (h *handlers) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()
	in := goIdentity.CallbackInput{
		Code:          q.Get("code"),
		State:         q.Get("state"),
		ProviderError: q.Get("error"),
	}
	if c, err := r.Cookie(h.engine.OAuthStateCookieName(provider)); err == nil {
		in.CookieState = c.Value
	}
	if c, err := r.Cookie(h.engine.OAuthNextCookieName()); err == nil {
		in.CookieNext = c.Value
	}

	out := h.engine.CompleteOAuth(r.Context(), provider, in)
	for _, c := range out.Cookies {
		http.SetCookie(w, c)
	}
	http.Redirect(w, r, out.Redirect, http.StatusFound)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.engine.Ping(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

/*
====================================
HELPERS
====================================
*/

// decode reads one JSON object into dst and validates it. It writes the
// error response itself and reports whether the handler may continue.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst validator) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		if errors.Is(err, errUnsupportedMediaType) {
			writeJSON(w, http.StatusUnsupportedMediaType, messageResponse{Message: err.Error()})
			return false
		}
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body"})
		return false
	}
	if err := dst.validate(); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return errUnsupportedMediaType
		}
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := goIdentity.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, messageResponse{Message: goIdentity.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
