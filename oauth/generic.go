package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
)

// GenericConfig describes any OAuth 2.0 provider with a JSON user-info
// endpoint. Empty claim names fall back to OpenID Connect defaults.
type GenericConfig struct {
	Name        string
	Credentials Credentials
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	SubjectClaim       string
	EmailClaim         string
	EmailVerifiedClaim string
	NameClaim          string

	HTTPClient *http.Client
}

// Generic is a configurable provider.
type Generic struct {
	base
	conf GenericConfig
}

func NewGeneric(cfg GenericConfig) *Generic {
	if cfg.SubjectClaim == "" {
		cfg.SubjectClaim = "sub"
	}
	if cfg.EmailClaim == "" {
		cfg.EmailClaim = "email"
	}
	if cfg.EmailVerifiedClaim == "" {
		cfg.EmailVerifiedClaim = "email_verified"
	}
	if cfg.NameClaim == "" {
		cfg.NameClaim = "name"
	}
	endpoint := oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	return &Generic{
		base: newBase(cfg.Name, cfg.Credentials, endpoint, []string{"openid", "email", "profile"}, cfg.HTTPClient),
		conf: cfg,
	}
}

func (g *Generic) Configured() bool {
	return g.base.Configured() && g.conf.AuthURL != "" && g.conf.TokenURL != "" && g.conf.UserInfoURL != ""
}

func (g *Generic) UserInfo(ctx context.Context, tok Token) Result[Profile] {
	claims := map[string]any{}
	if err := g.getJSON(ctx, tok, g.conf.UserInfoURL, &claims); err != nil {
		return Fail[Profile](KindUserInfoFailed, err)
	}
	verified, _ := claims[g.conf.EmailVerifiedClaim].(bool)
	return validProfile(Profile{
		Subject:       claimString(claims[g.conf.SubjectClaim]),
		Email:         claimString(claims[g.conf.EmailClaim]),
		EmailVerified: verified,
		Name:          claimString(claims[g.conf.NameClaim]),
	})
}

// claimString renders string and numeric claims; numeric subjects are common
// for providers keyed by integer user ids.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
