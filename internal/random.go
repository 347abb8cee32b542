package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// RandomID is 16 random bytes rendered as unpadded base64url.
type RandomID [16]byte

const (
	resetSecretSize   = 32
	resetTokenRawSize = len(RandomID{}) + resetSecretSize
	stateSize         = 32
)

// ErrMalformedToken is returned when a presented token cannot be decoded.
var ErrMalformedToken = errors.New("malformed token")

func NewRandomID() (RandomID, error) {
	var id RandomID
	_, err := rand.Read(id[:])
	return id, err
}

func (id RandomID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseRandomID(s string) (RandomID, error) {
	var id RandomID
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != len(id) {
		return id, ErrMalformedToken
	}
	copy(id[:], raw)
	return id, nil
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() (string, error) {
	id, err := NewRandomID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewOAuthState returns a 32-byte CSRF nonce in base64url form.
func NewOAuthState() (string, error) {
	b := make([]byte, stateSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func NewResetSecret() ([resetSecretSize]byte, error) {
	var secret [resetSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashResetSecret(secret [resetSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeResetToken packs the reset record id and its secret into one opaque
// base64url string. Only the secret's hash is ever persisted.
func EncodeResetToken(resetID RandomID, secret [resetSecretSize]byte) string {
	var raw [resetTokenRawSize]byte
	copy(raw[:len(resetID)], resetID[:])
	copy(raw[len(resetID):], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeResetToken(token string) (RandomID, [resetSecretSize]byte, error) {
	var (
		id     RandomID
		secret [resetSecretSize]byte
	)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != resetTokenRawSize {
		return id, secret, ErrMalformedToken
	}
	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])
	return id, secret, nil
}
