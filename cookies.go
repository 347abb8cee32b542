package goIdentity

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the configured session cookie name.
func (e *Engine) SessionCookieName() string {
	return e.config.Cookies.Session
}

// OAuthStateCookieName is the state cookie name for provider.
func (e *Engine) OAuthStateCookieName(provider string) string {
	return e.config.Cookies.OAuthStatePrefix + strings.ToLower(provider)
}

// OAuthNextCookieName is the post-login redirect cookie name.
func (e *Engine) OAuthNextCookieName() string {
	return e.config.Cookies.OAuthNext
}

// SessionCookie renders s as the session cookie.
func (e *Engine) SessionCookie(s IssuedSession) *http.Cookie {
	maxAge := int(s.ExpiresAt.Sub(e.now()).Round(time.Second) / time.Second)
	if maxAge <= 0 {
		maxAge = int(e.config.Session.TTL / time.Second)
	}
	return e.cookie(e.config.Cookies.Session, s.Token, maxAge)
}

// ClearSessionCookie expires the session cookie.
func (e *Engine) ClearSessionCookie() *http.Cookie {
	return e.cookie(e.config.Cookies.Session, "", -1)
}

func (e *Engine) oauthBeginCookies(provider, state, next string) []*http.Cookie {
	maxAge := int(e.config.OAuth.StateTTL / time.Second)
	out := []*http.Cookie{e.cookie(e.OAuthStateCookieName(provider), state, maxAge)}
	if next != "" {
		out = append(out, e.cookie(e.config.Cookies.OAuthNext, next, maxAge))
	} else {
		out = append(out, e.cookie(e.config.Cookies.OAuthNext, "", -1))
	}
	return out
}

func (e *Engine) oauthClearCookies(provider string) []*http.Cookie {
	return []*http.Cookie{
		e.cookie(e.OAuthStateCookieName(provider), "", -1),
		e.cookie(e.config.Cookies.OAuthNext, "", -1),
	}
}

func (e *Engine) cookie(name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   e.config.Cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   e.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.Expires = e.now().Add(time.Duration(maxAge) * time.Second).UTC()
	} else if maxAge < 0 {
		c.Expires = time.Unix(0, 0).UTC()
	}
	return c
}
