package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// PathClass is the access class of a request path.
type PathClass uint8

const (
	PathPublic PathClass = iota
	PathProtected
	PathAuthOnly
)

func (c PathClass) String() string {
	switch c {
	case PathProtected:
		return "protected"
	case PathAuthOnly:
		return "auth-only"
	default:
		return "public"
	}
}

// Action is what the guard does with a request.
type Action uint8

const (
	Allow Action = iota
	Redirect
)

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Action   Action
	Location string
}

// Status returns the redirect status for method: 302 for GET and HEAD,
// 303 otherwise so the browser follows up with a GET.
func (d Decision) Status(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

// Policy holds the path rules and the two redirect targets.
type Policy struct {
	Rules       goIdentity.RouteRules
	LoginPath   string
	LandingPath string
}

// NewPolicy builds a Policy from the engine configuration.
func NewPolicy(cfg goIdentity.Config) Policy {
	return Policy{
		Rules:       cfg.Guard,
		LoginPath:   cfg.Routes.Login,
		LandingPath: cfg.Routes.Landing,
	}
}

// Classify returns the class of path. Protected rules win over auth-only
// rules when both match.
func (p Policy) Classify(path string) PathClass {
	if matchAny(p.Rules.Protected, path) {
		return PathProtected
	}
	if matchAny(p.Rules.AuthOnly, path) {
		return PathAuthOnly
	}
	return PathPublic
}

// Decide applies the decision table. It performs no I/O.
func (p Policy) Decide(class PathClass, authenticated bool, path, rawQuery string) Decision {
	switch {
	case class == PathProtected && !authenticated:
		target := path
		if rawQuery != "" {
			target += "?" + rawQuery
		}
		return Decision{
			Action:   Redirect,
			Location: p.LoginPath + "?next=" + url.QueryEscape(target),
		}
	case class == PathAuthOnly && authenticated:
		return Decision{Action: Redirect, Location: p.LandingPath}
	default:
		return Decision{Action: Allow}
	}
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if match(pattern, path) {
			return true
		}
	}
	return false
}

// match treats "/x/*" as /x and everything below it, and any other pattern
// as an exact segment prefix: "/login" matches "/login" and "/login/y" but
// not "/loginx".
func match(pattern, path string) bool {
	base := strings.TrimSuffix(pattern, "/*")
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return strings.HasPrefix(path, "/")
	}
	return path == base || strings.HasPrefix(path, base+"/")
}

// SessionValidator is the part of *goIdentity.Engine the guard needs.
type SessionValidator interface {
	SessionCookieName() string
	ValidateSession(ctx context.Context, cookieValue string) (*goIdentity.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal Guard resolved for the request.
func PrincipalFromContext(ctx context.Context) (*goIdentity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*goIdentity.Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *goIdentity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard validates the session cookie once per request and enforces policy.
// Requests with a missing or unusable cookie are treated as anonymous.
func Guard(v SessionValidator, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *goIdentity.Principal
			if v != nil {
				if c, err := r.Cookie(v.SessionCookieName()); err == nil && c.Value != "" {
					if p, err := v.ValidateSession(r.Context(), c.Value); err == nil {
						principal = p
					}
				}
			}

			class := policy.Classify(r.URL.Path)
			d := policy.Decide(class, principal != nil, r.URL.Path, r.URL.RawQuery)
			if d.Action == Redirect {
				http.Redirect(w, r, d.Location, d.Status(r.Method))
				return
			}

			if principal != nil {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}
