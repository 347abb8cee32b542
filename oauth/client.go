package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrProviderUnknown is returned by Registry.Lookup for unregistered names.
	ErrProviderUnknown = errors.New("oauth provider unknown")
	// ErrNotConfigured is returned for known providers missing client credentials.
	ErrNotConfigured = errors.New("oauth provider not configured")
)

const maxBodyBytes = 1 << 20

// Token is the subset of provider tokens the identity layer keeps.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Profile is the normalized user-info response.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Client is one configured identity provider.
type Client interface {
	Name() string
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) Result[Token]
	UserInfo(ctx context.Context, tok Token) Result[Profile]
}

// Credentials are the per-provider values an operator supplies.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Configured reports whether both client id and secret are present.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// base carries the oauth2 plumbing shared by every provider.
type base struct {
	name string
	cfg  *oauth2.Config
	http *http.Client
}

func newBase(name string, creds Credentials, endpoint oauth2.Endpoint, defaultScopes []string, hc *http.Client) base {
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return base{
		name: name,
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		http: hc,
	}
}

func (b base) Name() string { return b.name }

func (b base) Configured() bool {
	return b.cfg.ClientID != "" && b.cfg.ClientSecret != ""
}

func (b base) AuthCodeURL(state string) string {
	return b.cfg.AuthCodeURL(state)
}

func (b base) Exchange(ctx context.Context, code string) Result[Token] {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.http)
	tok, err := b.cfg.Exchange(ctx, code)
	if err != nil {
		return Fail[Token](KindExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return Fail[Token](KindExchangeFailed, errors.New("provider returned no access token"))
	}
	return Ok(Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	})
}

// getJSON performs an authenticated GET and decodes a 2xx JSON body into out.
func (b base) getJSON(ctx context.Context, tok Token, url string, out any) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.http)
	hc := b.cfg.Client(ctx, &oauth2.Token{AccessToken: tok.AccessToken, TokenType: tok.TokenType})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
}

func validProfile(p Profile) Result[Profile] {
	if p.Subject == "" || p.Email == "" {
		return Fail[Profile](KindUserInfoFailed, errors.New("profile missing subject or email"))
	}
	return Ok(p)
}
