package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleOptions overrides endpoints, mostly for tests.
type GoogleOptions struct {
	Endpoint    *oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

// Google signs users in with Google's OpenID Connect user-info endpoint.
type Google struct {
	base
	userInfoURL string
}

// NewGoogle builds a Google client from creds.
func NewGoogle(creds Credentials, opts GoogleOptions) *Google {
	endpoint := google.Endpoint
	if opts.Endpoint != nil {
		endpoint = *opts.Endpoint
	}
	userInfo := opts.UserInfoURL
	if userInfo == "" {
		userInfo = googleUserInfoURL
	}
	return &Google{
		base:        newBase("google", creds, endpoint, []string{"openid", "email", "profile"}, opts.HTTPClient),
		userInfoURL: userInfo,
	}
}

func (g *Google) UserInfo(ctx context.Context, tok Token) Result[Profile] {
	var body struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := g.getJSON(ctx, tok, g.userInfoURL, &body); err != nil {
		return Fail[Profile](KindUserInfoFailed, err)
	}
	return validProfile(Profile{
		Subject:       body.Sub,
		Email:         body.Email,
		EmailVerified: body.EmailVerified,
		Name:          body.Name,
	})
}
