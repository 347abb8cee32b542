package oauth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// GitHubOptions overrides endpoints, mostly for tests.
type GitHubOptions struct {
	Endpoint   *oauth2.Endpoint
	APIBase    string
	HTTPClient *http.Client
}

// GitHub signs users in with the GitHub REST API. The email is taken from
// /user/emails (primary and verified) because /user only exposes a public
// email, which users may leave blank.
type GitHub struct {
	base
	apiBase string
}

func NewGitHub(creds Credentials, opts GitHubOptions) *GitHub {
	endpoint := github.Endpoint
	if opts.Endpoint != nil {
		endpoint = *opts.Endpoint
	}
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = githubAPIBase
	}
	return &GitHub{
		base:    newBase("github", creds, endpoint, []string{"read:user", "user:email"}, opts.HTTPClient),
		apiBase: apiBase,
	}
}

func (g *GitHub) UserInfo(ctx context.Context, tok Token) Result[Profile] {
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := g.getJSON(ctx, tok, g.apiBase+"/user", &user); err != nil {
		return Fail[Profile](KindUserInfoFailed, err)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := g.getJSON(ctx, tok, g.apiBase+"/user/emails", &emails); err != nil {
		return Fail[Profile](KindUserInfoFailed, err)
	}

	p := Profile{Name: user.Name}
	if user.ID != 0 {
		p.Subject = strconv.FormatInt(user.ID, 10)
	}
	if p.Name == "" {
		p.Name = user.Login
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			p.Email, p.EmailVerified = e.Email, true
			break
		}
	}
	return validProfile(p)
}
