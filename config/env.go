package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/token"
	"github.com/mitchellh/mapstructure"
)

// Prefix is stripped from every environment variable FromEnv reads.
const Prefix = "GOIDENTITY_"

// Settings is the deployment configuration read from the environment. Field
// tags name the variable without Prefix.
type Settings struct {
	SigningKey         string        `mapstructure:"SIGNING_KEY"`
	Env                string        `mapstructure:"ENV"`
	Addr               string        `mapstructure:"ADDR"`
	PublicURL          string        `mapstructure:"PUBLIC_URL"`
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	TokenEncryptionKey string        `mapstructure:"TOKEN_ENCRYPTION_KEY"`
	OutboundTimeout    time.Duration `mapstructure:"OUTBOUND_TIMEOUT"`
	AllowedOrigins     []string      `mapstructure:"ALLOWED_ORIGINS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	LogFormat          string        `mapstructure:"LOG_FORMAT"`
	// TrustProxy takes client addresses from X-Forwarded-For / X-Real-IP.
	TrustProxy     bool `mapstructure:"TRUST_PROXY"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`
	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `mapstructure:"GITHUB_REDIRECT_URL"`
}

// Defaults returns the values used for unset variables.
func Defaults() Settings {
	return Settings{
		Env:       "development",
		Addr:      ":8080",
		PublicURL: "http://localhost:8080",
		RedisAddr: "localhost:6379",
		LogLevel:  "info",
		LogFormat: "json",

		MetricsEnabled: true,
	}
}

// Load reads Settings from the process environment.
func Load() (Settings, error) {
	return FromEnv(os.Environ())
}

// FromEnv decodes the GOIDENTITY_* entries of environ, given as KEY=VALUE
// pairs, over Defaults. Durations use time.ParseDuration syntax and lists
// are comma separated.
func FromEnv(environ []string) (Settings, error) {
	raw := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, Prefix) || value == "" {
			continue
		}
		raw[strings.TrimPrefix(key, Prefix)] = value
	}

	s := Defaults()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &s,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Settings{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}

	for i, o := range s.AllowedOrigins {
		s.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	return s, nil
}

// Production reports whether Env selects production behaviour.
func (s Settings) Production() bool {
	return strings.EqualFold(s.Env, "production") || strings.EqualFold(s.Env, "prod")
}

// Key decodes SigningKey. Base64 (standard or URL alphabet, padded or not)
// is tried first; anything else is used as raw bytes.
func (s Settings) Key() ([]byte, error) {
	if s.SigningKey == "" {
		return nil, errors.New(Prefix + "SIGNING_KEY is required")
	}
	key := decodeKey(s.SigningKey)
	if len(key) < token.MinKeyBytes {
		return nil, fmt.Errorf("%sSIGNING_KEY must be at least %d bytes", Prefix, token.MinKeyBytes)
	}
	return key, nil
}

// SealKey decodes TokenEncryptionKey. It returns nil when unset.
func (s Settings) SealKey() ([]byte, error) {
	if s.TokenEncryptionKey == "" {
		return nil, nil
	}
	key := decodeKey(s.TokenEncryptionKey)
	if len(key) != 32 {
		return nil, errors.New(Prefix + "TOKEN_ENCRYPTION_KEY must decode to 32 bytes")
	}
	return key, nil
}

func decodeKey(v string) []byte {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(v); err == nil && len(b) >= token.MinKeyBytes {
			return b
		}
	}
	return []byte(v)
}

// EngineConfig overlays s onto goIdentity.DefaultConfig and validates it.
func (s Settings) EngineConfig() (goIdentity.Config, error) {
	key, err := s.Key()
	if err != nil {
		return goIdentity.Config{}, err
	}

	cfg := goIdentity.DefaultConfig()
	cfg.Token.SigningKey = key
	cfg.Cookies.Secure = s.Production()
	if s.PublicURL != "" {
		cfg.Routes.PublicURL = strings.TrimRight(s.PublicURL, "/")
	}
	if s.OutboundTimeout > 0 {
		cfg.OAuth.OutboundTimeout = s.OutboundTimeout
	}
	if err := cfg.Validate(); err != nil {
		return goIdentity.Config{}, err
	}
	return cfg, nil
}

// OAuthClients returns the built-in providers. Both are always registered so
// that a provider without credentials reports ErrNotConfigured rather than
// being unknown.
func (s Settings) OAuthClients() []oauth.Client {
	return []oauth.Client{
		oauth.NewGoogle(oauth.Credentials{
			ClientID:     s.GoogleClientID,
			ClientSecret: s.GoogleClientSecret,
			RedirectURL:  s.redirectURL(s.GoogleRedirectURL, "google"),
		}, oauth.GoogleOptions{}),
		oauth.NewGitHub(oauth.Credentials{
			ClientID:     s.GitHubClientID,
			ClientSecret: s.GitHubClientSecret,
			RedirectURL:  s.redirectURL(s.GitHubRedirectURL, "github"),
		}, oauth.GitHubOptions{}),
	}
}

func (s Settings) redirectURL(explicit, provider string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimRight(s.PublicURL, "/") + "/auth/oauth/" + provider + "/callback"
}

// Logger builds the process logger from LogLevel and LogFormat.
func (s Settings) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
