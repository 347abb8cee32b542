package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrStateRedisUnavailable = errors.New("oauth state redis unavailable")

// OAuthStateStore remembers consumed OAuth state nonces until their cookie
// could no longer verify.
type OAuthStateStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOAuthStateStore(redisClient redis.UniversalClient, prefix string) *OAuthStateStore {
	if prefix == "" {
		prefix = "gios"
	}
	return &OAuthStateStore{redis: redisClient, prefix: prefix}
}

func (s *OAuthStateStore) key(nonce string) string {
	return s.prefix + ":" + nonce
}

// Consume marks nonce as used for ttl. It reports false when the nonce was
// already consumed.
func (s *OAuthStateStore) Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	if nonce == "" || ttl <= 0 {
		return false, errors.New("oauth state nonce and ttl are required")
	}
	fresh, err := s.redis.SetNX(ctx, s.key(nonce), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStateRedisUnavailable, err)
	}
	return fresh, nil
}
