// Package oauthtest runs an in-process OAuth 2.0 provider for tests.
package oauthtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/goIdentity/oauth"
	"golang.org/x/oauth2"
)

// Identity is what the fake provider reports for a code.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Provider is an httptest-backed authorization server with token, OIDC
// user-info, and GitHub-style /user and /user/emails endpoints.
type Provider struct {
	Server *httptest.Server

	mu             sync.Mutex
	codes          map[string]Identity
	tokenStatus    int
	userInfoStatus int
	exchanges      int
}

// NewProvider starts a provider that is closed when t finishes.
func NewProvider(t testing.TB) *Provider {
	t.Helper()
	p := &Provider{codes: map[string]Identity{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/userinfo", p.userInfo)
	mux.HandleFunc("/user", p.githubUser)
	mux.HandleFunc("/user/emails", p.githubEmails)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// AddCode makes code exchangeable for id.
func (p *Provider) AddCode(code string, id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = id
}

// FailToken makes the token endpoint answer with status.
func (p *Provider) FailToken(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
}

// FailUserInfo makes the user-info endpoints answer with status.
func (p *Provider) FailUserInfo(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoStatus = status
}

// Exchanges reports how many successful code exchanges happened.
func (p *Provider) Exchanges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges
}

// Endpoint returns the oauth2 endpoint of the fake provider.
func (p *Provider) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   p.Server.URL + "/authorize",
		TokenURL:  p.Server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// Credentials returns configured test credentials.
func (p *Provider) Credentials() oauth.Credentials {
	return oauth.Credentials{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://app.test/auth/oauth/callback",
	}
}

// Generic returns a configured generic client named name.
func (p *Provider) Generic(name string) *oauth.Generic {
	return oauth.NewGeneric(oauth.GenericConfig{
		Name:        name,
		Credentials: p.Credentials(),
		AuthURL:     p.Server.URL + "/authorize",
		TokenURL:    p.Server.URL + "/token",
		UserInfoURL: p.Server.URL + "/userinfo",
		HTTPClient:  p.Server.Client(),
	})
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokenStatus != 0 {
		writeJSON(w, p.tokenStatus, map[string]string{"error": "server_error"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	code := r.PostForm.Get("code")
	if _, ok := p.codes[code]; !ok || r.PostForm.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	p.exchanges++
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "at-" + code,
		"refresh_token": "rt-" + code,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (p *Provider) identity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.userInfoStatus != 0 {
		writeJSON(w, p.userInfoStatus, map[string]string{"error": "unavailable"})
		return Identity{}, false
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer at-") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return Identity{}, false
	}
	id, ok := p.codes[strings.TrimPrefix(auth, "Bearer at-")]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return Identity{}, false
	}
	return id, true
}

func (p *Provider) userInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := p.identity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":            id.Subject,
		"email":          id.Email,
		"email_verified": id.EmailVerified,
		"name":           id.Name,
	})
}

func (p *Provider) githubUser(w http.ResponseWriter, r *http.Request) {
	id, ok := p.identity(w, r)
	if !ok {
		return
	}
	n, _ := strconv.ParseInt(id.Subject, 10, 64)
	writeJSON(w, http.StatusOK, map[string]any{"id": n, "login": id.Name, "name": ""})
}

func (p *Provider) githubEmails(w http.ResponseWriter, r *http.Request) {
	id, ok := p.identity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{
		{"email": "noreply@users.example", "primary": false, "verified": true},
		{"email": id.Email, "primary": true, "verified": id.EmailVerified},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
