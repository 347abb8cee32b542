package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const statePurpose = "oauth_state"

// StateClaims is the decoded form of a signed OAuth state cookie.
type StateClaims struct {
	Nonce    string `json:"nonce"`
	Provider string `json:"prv"`
	Purpose  string `json:"pur"`
	jwt.RegisteredClaims
}

// SignState binds an OAuth state nonce to provider until ttl elapses. The
// result is only accepted by VerifyState, never by Verify.
func (c *Codec) SignState(nonce, provider string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("state ttl must be positive")
	}
	if nonce == "" || provider == "" {
		return "", errors.New("state nonce and provider are required")
	}

	now := c.config.Now()
	return c.sign(StateClaims{
		Nonce:    nonce,
		Provider: provider,
		Purpose:  statePurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	})
}

// VerifyState parses a token minted by SignState. Expired, forged and
// session tokens all yield ErrInvalidToken.
func (c *Codec) VerifyState(raw string) (*StateClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	tok, err := c.parser().ParseWithClaims(raw, &StateClaims{}, c.keyFunc)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(*StateClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != statePurpose || claims.Nonce == "" || claims.Provider == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
