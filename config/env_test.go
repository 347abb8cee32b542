package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rawKey = strings.Repeat("k", 32)

func TestFromEnv_Defaults(t *testing.T) {
	s, err := FromEnv(nil)
	require.NoError(t, err)

	assert.Equal(t, Defaults(), s)
	assert.False(t, s.Production())
	assert.False(t, s.TrustProxy)
	assert.True(t, s.MetricsEnabled)

	_, err = s.EngineConfig()
	assert.ErrorContains(t, err, "SIGNING_KEY is required")
}

func TestFromEnv_Values(t *testing.T) {
	s, err := FromEnv([]string{
		"GOIDENTITY_SIGNING_KEY=" + rawKey,
		"GOIDENTITY_ENV=production",
		"GOIDENTITY_PUBLIC_URL=https://id.example.com/",
		"GOIDENTITY_REDIS_ADDR=redis:6379",
		"GOIDENTITY_DATABASE_URL=postgres://u:p@db/identity",
		"GOIDENTITY_OUTBOUND_TIMEOUT=4s",
		"GOIDENTITY_ALLOWED_ORIGINS=https://app.example.com, https://admin.example.com",
		"GOIDENTITY_GOOGLE_CLIENT_ID=gid",
		"GOIDENTITY_GOOGLE_CLIENT_SECRET=gsecret",
		"GOIDENTITY_TRUST_PROXY=true",
		"GOIDENTITY_METRICS_ENABLED=false",
		"UNRELATED=1",
		"GOIDENTITY_EMPTY=",
		"malformed",
	})
	require.NoError(t, err)

	assert.True(t, s.Production())
	assert.Equal(t, "redis:6379", s.RedisAddr)
	assert.Equal(t, "postgres://u:p@db/identity", s.DatabaseURL)
	assert.Equal(t, 4*time.Second, s.OutboundTimeout)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, s.AllowedOrigins)
	assert.Equal(t, ":8080", s.Addr)
	assert.True(t, s.TrustProxy)
	assert.False(t, s.MetricsEnabled)

	cfg, err := s.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte(rawKey), cfg.Token.SigningKey)
	assert.True(t, cfg.Cookies.Secure)
	assert.Equal(t, "https://id.example.com", cfg.Routes.PublicURL)
	assert.Equal(t, 4*time.Second, cfg.OAuth.OutboundTimeout)
}

func TestFromEnv_BadDuration(t *testing.T) {
	_, err := FromEnv([]string{"GOIDENTITY_OUTBOUND_TIMEOUT=soon"})
	assert.Error(t, err)
}

func TestKey_Base64AndRaw(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef0123")
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		key, err := Settings{SigningKey: enc.EncodeToString(secret)}.Key()
		require.NoError(t, err)
		assert.Equal(t, secret, key)
	}

	key, err := Settings{SigningKey: rawKey}.Key()
	require.NoError(t, err)
	assert.Equal(t, []byte(rawKey), key)

	_, err = Settings{SigningKey: "short"}.Key()
	assert.ErrorContains(t, err, "at least 32 bytes")
}

func TestSealKey(t *testing.T) {
	key, err := Settings{}.SealKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	want := []byte(strings.Repeat("s", 32))
	key, err = Settings{TokenEncryptionKey: base64.StdEncoding.EncodeToString(want)}.SealKey()
	require.NoError(t, err)
	assert.Equal(t, want, key)

	_, err = Settings{TokenEncryptionKey: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 48)))}.SealKey()
	assert.Error(t, err)
}

func TestOAuthClients(t *testing.T) {
	s := Defaults()
	s.GoogleClientID = "gid"
	s.GoogleClientSecret = "gsecret"
	s.GitHubRedirectURL = "https://id.example.com/gh"

	clients := s.OAuthClients()
	require.Len(t, clients, 2)

	google, github := clients[0], clients[1]
	assert.Equal(t, "google", google.Name())
	assert.True(t, google.Configured())
	assert.Contains(t, google.AuthCodeURL("st"), "redirect_uri=http%3A%2F%2Flocalhost%3A8080%2Fauth%2Foauth%2Fgoogle%2Fcallback")

	assert.Equal(t, "github", github.Name())
	assert.False(t, github.Configured())
}

func TestLogger(t *testing.T) {
	assert.NotNil(t, Settings{LogLevel: "debug", LogFormat: "text"}.Logger())
	assert.NotNil(t, Settings{LogLevel: "nonsense"}.Logger())
}
