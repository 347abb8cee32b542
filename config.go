package goIdentity

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/token"
)

// Config is the complete engine configuration. Start from DefaultConfig
// and override fields; Builder.Build calls Validate.
type Config struct {
	Token        TokenConfig
	Session      SessionConfig
	Password     PasswordConfig
	Reset        ResetConfig
	Security     SecurityConfig
	OAuth        OAuthConfig
	Routes       RoutesConfig
	Cookies      CookieConfig
	Guard        RouteRules
	Audit        AuditConfig
	Metrics      MetricsConfig
	Notify       NotifyConfig
	StoreTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the signed session cookie.
type TokenConfig struct {
	// SigningKey is the HS256 key; at least 32 bytes.
	SigningKey []byte
	KeyID      string
	// VerifyKeys are retired keys by key id, accepted for verification only.
	VerifyKeys map[string][]byte
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	TTL time.Duration
	// Revocation makes every validation confirm the Redis session record.
	Revocation  bool
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the strength policy applied
// at registration and reset.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength     int
	MaxBytes      int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type ResetConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
	// MaxRequests per email within RequestWindow; zero disables the limit.
	MaxRequests   int
	RequestWindow time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds login throttling budgets.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

type OAuthConfig struct {
	// OutboundTimeout bounds each provider call (token exchange, user info).
	OutboundTimeout time.Duration
	// StateTTL bounds the signed state cookie and the replay marker.
	StateTTL    time.Duration
	RedisPrefix string
}

/*
====================================
ROUTES AND COOKIES
====================================
*/

// RoutesConfig names the application pages the engine redirects to.
type RoutesConfig struct {
	// PublicURL is the externally visible origin, used to build reset links.
	PublicURL string
	Login     string
	Home      string
	Landing   string
	Reset     string
}

type CookieConfig struct {
	Session          string
	OAuthStatePrefix string
	OAuthNext        string
	Domain           string
	Secure           bool
}

// RouteRules drive request classification. Entries are path prefixes; a
// trailing "/*" matches the path and everything below it. Paths matching
// neither list are public.
type RouteRules struct {
	Protected []string
	AuthOnly  []string
}

/*
====================================
OBSERVABILITY
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type NotifyConfig struct {
	BufferSize int
	Workers    int
	Timeout    time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. SigningKey is left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer: "goidentity",
			Leeway: 5 * time.Second,
		},
		Session: SessionConfig{
			TTL:         7 * 24 * time.Hour,
			Revocation:  true,
			RedisPrefix: "gis",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxBytes:       128,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSymbol:  true,
		},
		Reset: ResetConfig{
			TTL:           time.Hour,
			MaxAttempts:   5,
			RedisPrefix:   "gipr",
			MaxRequests:   3,
			RequestWindow: 15 * time.Minute,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		OAuth: OAuthConfig{
			OutboundTimeout: 10 * time.Second,
			StateTTL:        10 * time.Minute,
			RedisPrefix:     "gios",
		},
		Routes: RoutesConfig{
			PublicURL: "http://localhost:8080",
			Login:     "/auth/login",
			Home:      "/dashboard",
			Landing:   "/dashboard",
			Reset:     "/reset-password",
		},
		Cookies: CookieConfig{
			Session:          "session",
			OAuthStatePrefix: "oauth_state_",
			OAuthNext:        "oauth_next",
		},
		Guard: RouteRules{
			Protected: []string{"/dashboard/*", "/account/*"},
			AuthOnly:  []string{"/auth/login", "/auth/register"},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			BufferSize: 256,
			Workers:    2,
			Timeout:    10 * time.Second,
		},
		StoreTimeout: 3 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Guard.Protected = append([]string(nil), cfg.Guard.Protected...)
	out.Guard.AuthOnly = append([]string(nil), cfg.Guard.AuthOnly...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.SigningKey) == 0 {
		return errors.New("Token SigningKey is required")
	}
	if len(c.Token.SigningKey) < token.MinKeyBytes {
		return fmt.Errorf("Token SigningKey must be at least %d bytes", token.MinKeyBytes)
	}
	for kid, key := range c.Token.VerifyKeys {
		if len(key) < token.MinKeyBytes {
			return fmt.Errorf("Token VerifyKeys[%q] must be at least %d bytes", kid, token.MinKeyBytes)
		}
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxBytes < c.Password.MinLength {
		return errors.New("Password MaxBytes must be >= MinLength")
	}

	// Reset
	if c.Reset.TTL <= 0 {
		return errors.New("Reset TTL must be > 0")
	}
	if c.Reset.MaxAttempts <= 0 {
		return errors.New("Reset MaxAttempts must be > 0")
	}
	if c.Reset.MaxRequests > 0 && c.Reset.RequestWindow <= 0 {
		return errors.New("Reset RequestWindow must be > 0 when MaxRequests is set")
	}

	// Security
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0 when MaxLoginAttempts is set")
	}

	// OAuth
	if c.OAuth.OutboundTimeout <= 0 {
		return errors.New("OAuth OutboundTimeout must be > 0")
	}
	if c.OAuth.StateTTL <= 0 {
		return errors.New("OAuth StateTTL must be > 0")
	}

	// Routes
	if c.Routes.PublicURL != "" {
		u, err := url.Parse(c.Routes.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("Routes PublicURL must be an absolute URL")
		}
	}
	for name, p := range map[string]string{
		"Login":   c.Routes.Login,
		"Home":    c.Routes.Home,
		"Landing": c.Routes.Landing,
		"Reset":   c.Routes.Reset,
	} {
		if !isLocalPath(p) {
			return fmt.Errorf("Routes %s must be a local path", name)
		}
	}

	// Cookies
	if c.Cookies.Session == "" || c.Cookies.OAuthStatePrefix == "" || c.Cookies.OAuthNext == "" {
		return errors.New("Cookies names must be non-empty")
	}
	for _, name := range []string{c.Cookies.Session, c.Cookies.OAuthStatePrefix, c.Cookies.OAuthNext} {
		if (&http.Cookie{Name: name, Value: "x"}).Valid() != nil {
			return fmt.Errorf("Cookies name %q is not a valid cookie name", name)
		}
	}

	// Guard
	for _, p := range append(append([]string(nil), c.Guard.Protected...), c.Guard.AuthOnly...) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Guard pattern %q must start with /", p)
		}
	}

	// Observability
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Notify.BufferSize < 0 || c.Notify.Workers < 0 {
		return errors.New("Notify BufferSize and Workers must be >= 0")
	}

	if c.StoreTimeout < 0 {
		return errors.New("StoreTimeout must be >= 0")
	}
	return nil
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.ContainsRune(p, '\\')
}
