package postgres

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealPrefix = "v1:"

var (
	// ErrSealKey is returned by NewSealer for a key that is not 32 bytes.
	ErrSealKey = errors.New("token encryption key must be 32 bytes")
	// ErrSealedValue is returned when a stored value cannot be opened.
	ErrSealedValue = errors.New("sealed value is corrupt or was sealed with another key")
)

// Sealer encrypts provider tokens with XChaCha20-Poly1305. Every value is
// bound to its linked account through the additional data, so a ciphertext
// copied onto another row does not open.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrSealKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealKey, err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns "v1:" followed by base64(nonce || ciphertext). The empty
// string seals to itself.
func (s *Sealer) Seal(plaintext, provider, providerAccountID string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), additionalData(provider, providerAccountID))
	return sealPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed, provider, providerAccountID string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealPrefix) {
		return "", ErrSealedValue
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealPrefix))
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrSealedValue
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, ct, additionalData(provider, providerAccountID))
	if err != nil {
		return "", ErrSealedValue
	}
	return string(pt), nil
}

func additionalData(provider, providerAccountID string) []byte {
	return []byte(provider + "\x00" + providerAccountID)
}
