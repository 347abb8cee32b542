package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersionV1 = 1

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetExpired          = errors.New("reset record expired")
	ErrResetAlreadyUsed      = errors.New("reset record already used")
	ErrResetSecretMismatch   = errors.New("reset secret mismatch")
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is the persisted half of a reset token.
type PasswordResetRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
	Used       bool
	UsedAt     int64
}

type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "gipr"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock returns a copy of s that reads time from now.
func (s *PasswordResetStore) WithClock(now func() time.Time) *PasswordResetStore {
	cp := *s
	cp.now = now
	return &cp
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":" + resetID
}

func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *PasswordResetRecord, ttl time.Duration) error {
	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}
	// SETNX: reset ids are random, a collision must not overwrite.
	ok, err := s.redis.SetNX(ctx, s.key(resetID), encoded, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if !ok {
		return errors.New("reset record id collision")
	}
	return nil
}

// Consume atomically checks providedHash against the stored record and marks
// it used. It fails with ErrResetNotFound, ErrResetExpired,
// ErrResetAlreadyUsed, ErrResetSecretMismatch or ErrResetAttemptsExceeded.
// After maxAttempts mismatches the record is deleted.
func (s *PasswordResetStore) Consume(ctx context.Context, resetID string, providedHash [32]byte, maxAttempts int) (*PasswordResetRecord, error) {
	const maxRetries = 4
	key := s.key(resetID)

	for i := 0; i < maxRetries; i++ {
		var matched *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrResetNotFound
				}
				return err
			}

			record, err := decodePasswordResetRecord(data)
			if err != nil {
				return err
			}

			now := s.now()
			if record.Used {
				return ErrResetAlreadyUsed
			}
			remaining := time.Unix(record.ExpiresAt, 0).Sub(now)
			if remaining <= 0 {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrResetExpired
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
					if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					}); err != nil {
						return err
					}
					return ErrResetAttemptsExceeded
				}
				if err := s.rewrite(ctx, tx, key, record, remaining); err != nil {
					return err
				}
				return ErrResetSecretMismatch
			}

			record.Used = true
			record.UsedAt = now.Unix()
			if err := s.rewrite(ctx, tx, key, record, remaining); err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrResetNotFound),
				errors.Is(err, ErrResetExpired),
				errors.Is(err, ErrResetAlreadyUsed),
				errors.Is(err, ErrResetSecretMismatch),
				errors.Is(err, ErrResetAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}
		return matched, nil
	}

	// Still contended after every retry: another redeemer is mid-flight.
	return nil, ErrResetAlreadyUsed
}

// Release returns a consumed record to the unused state, keeping its
// remaining TTL and attempt count. It is for undoing a Consume whose
// follow-up write failed. Releasing an unused record is a no-op.
func (s *PasswordResetStore) Release(ctx context.Context, resetID string) error {
	const maxRetries = 4
	key := s.key(resetID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrResetNotFound
				}
				return err
			}
			record, err := decodePasswordResetRecord(data)
			if err != nil {
				return err
			}
			if !record.Used {
				return nil
			}
			remaining := time.Unix(record.ExpiresAt, 0).Sub(s.now())
			if remaining <= 0 {
				return ErrResetExpired
			}
			record.Used = false
			record.UsedAt = 0
			return s.rewrite(ctx, tx, key, record, remaining)
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err == nil, errors.Is(err, ErrResetNotFound), errors.Is(err, ErrResetExpired):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}
	return errors.New("reset record release contended")
}

func (s *PasswordResetStore) rewrite(ctx context.Context, tx *redis.Tx, key string, record *PasswordResetRecord, ttl time.Duration) error {
	updated, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, updated, ttl)
		return nil
	})
	return err
}

// Get returns the record for resetID without consuming it.
func (s *PasswordResetStore) Get(ctx context.Context, resetID string) (*PasswordResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(resetID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	record, err := decodePasswordResetRecord(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() >= record.ExpiresAt {
		return nil, ErrResetExpired
	}
	return record, nil
}

func encodePasswordResetRecord(record *PasswordResetRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(resetRecordVersionV1)

	var flags byte
	if record.Used {
		flags |= 1
	}
	buf.WriteByte(flags)

	for _, v := range []any{record.Attempts, record.ExpiresAt, record.UsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("reset record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodePasswordResetRecord(data []byte) (*PasswordResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}
	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &PasswordResetRecord{Used: flags&1 == 1}
	for _, v := range []any{&record.Attempts, &record.ExpiresAt, &record.UsedAt} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
