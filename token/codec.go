package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyBytes is the shortest HMAC key NewCodec accepts.
const MinKeyBytes = 32

// ErrInvalidToken is the only error Verify returns. Callers must not try to
// distinguish malformed, forged, and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Config configures a Codec.
type Config struct {
	// Key signs new tokens and verifies tokens without a kid header or with
	// a kid equal to KeyID.
	Key []byte
	// KeyID is written to the kid header when set.
	KeyID string
	// VerifyKeys are previous keys, indexed by kid, accepted during rotation.
	// They are never used for signing.
	VerifyKeys map[string][]byte
	Issuer     string
	Leeway     time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Payload is the identity embedded in a session token.
type Payload struct {
	UserID    string
	Email     string
	SessionID string
}

// Claims is the decoded form of a session token.
type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Payload returns the identity part of c.
func (c *Claims) Payload() Payload {
	return Payload{UserID: c.UserID, Email: c.Email, SessionID: c.SessionID}
}

// Codec signs and verifies HS256 session tokens. It is safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Key) < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinKeyBytes)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if kid == cfg.KeyID {
			return nil, fmt.Errorf("verify key %q shadows the signing key id", kid)
		}
		if len(key) < MinKeyBytes {
			return nil, fmt.Errorf("verify key %q must be at least %d bytes", kid, MinKeyBytes)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Codec{config: cfg}, nil
}

// Sign mints a token for p that expires after ttl.
func (c *Codec) Sign(p Payload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	jti, err := newJTI()
	if err != nil {
		return "", err
	}

	now := c.config.Now()
	claims := Claims{
		UserID:    p.UserID,
		Email:     p.Email,
		SessionID: p.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
			ID:        jti,
		},
	}

	return c.sign(claims)
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if c.config.KeyID != "" {
		tok.Header["kid"] = c.config.KeyID
	}
	return tok.SignedString(c.config.Key)
}

// Verify parses and validates raw. Any failure yields ErrInvalidToken.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	tok, err := c.parser().ParseWithClaims(raw, &Claims{}, c.keyFunc)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) parser() *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.config.Now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	return jwt.NewParser(options...)
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid == c.config.KeyID {
		return c.config.Key, nil
	}
	if key, ok := c.config.VerifyKeys[kid]; ok {
		return key, nil
	}
	return nil, errors.New("unknown kid")
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
