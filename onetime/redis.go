package onetime

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	guardian "github.com/goliatone/go-guardian"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL         = 15 * time.Minute
	DefaultCodeLength  = 6
	DefaultPrefix      = "guardian:otc"
	DefaultMaxAttempts = 5

	maxTxRetries = 4
)

var (
	errCodeMissing  = errors.New("code not found")
	errCodeMismatch = errors.New("code mismatch")
)

// RedisStore keeps one-time codes in redis. A code lives under
// <prefix>:<purpose>:<account> until it expires, is consumed, or runs out
// of attempts.
type RedisStore struct {
	client      redis.UniversalClient
	ttl         time.Duration
	length      int
	prefix      string
	maxAttempts int64
	logger      guardian.Logger
}

var _ guardian.OneTimeCodes = (*RedisStore)(nil)

// Option customizes a RedisStore
type Option func(*RedisStore)

// WithTTL sets how long an issued code stays valid
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCodeLength sets the number of digits in a code
func WithCodeLength(length int) Option {
	return func(s *RedisStore) {
		if length > 0 {
			s.length = length
		}
	}
}

// WithPrefix sets the key namespace
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxAttempts sets how many wrong guesses burn a code
func WithMaxAttempts(n int) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxAttempts = int64(n)
		}
	}
}

// WithLogger sets the store logger
func WithLogger(logger guardian.Logger) Option {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore returns a store backed by client
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:      client,
		ttl:         DefaultTTL,
		length:      DefaultCodeLength,
		prefix:      DefaultPrefix,
		maxAttempts: DefaultMaxAttempts,
		logger:      guardian.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(purpose, accountID string) string {
	return s.prefix + ":" + purpose + ":" + accountID
}

func (s *RedisStore) attemptsKey(purpose, accountID string) string {
	return s.key(purpose, accountID) + ":attempts"
}

// Issue returns a fresh code, or the one still pending for the same purpose
// and account so repeated requests do not invalidate what was sent.
func (s *RedisStore) Issue(ctx context.Context, purpose, accountID string) (string, error) {
	if purpose == "" || accountID == "" {
		return "", goerrors.New("purpose and account are required", goerrors.CategoryBadInput)
	}

	code, err := randomDigits(s.length)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate code")
	}

	key := s.key(purpose, accountID)
	created, err := s.client.SetNX(ctx, key, code, s.ttl).Result()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store code")
	}
	if created {
		s.client.Del(ctx, s.attemptsKey(purpose, accountID))
		return code, nil
	}

	existing, err := s.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		if err := s.client.Set(ctx, key, code, s.ttl).Err(); err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store code")
		}
		return code, nil
	case err != nil:
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read code")
	}
	return existing, nil
}

// Verify consumes code when it matches. A mismatch counts against the
// attempt budget and reports false without error.
func (s *RedisStore) Verify(ctx context.Context, purpose, accountID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	key := s.key(purpose, accountID)
	attempts := s.attemptsKey(purpose, accountID)

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return errCodeMissing
			}
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
				n, err := tx.Incr(ctx, attempts).Result()
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					if n >= s.maxAttempts {
						pipe.Del(ctx, key, attempts)
					} else {
						pipe.Expire(ctx, attempts, s.ttl)
					}
					return nil
				})
				if err != nil {
					return err
				}
				return errCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, attempts)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errCodeMissing), errors.Is(err, errCodeMismatch):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			s.logger.Error("one-time code verification failed", "purpose", purpose, "error", err)
			return false, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to verify code")
		}
	}

	return false, goerrors.New("code verification contended", goerrors.CategoryOperation)
}

func randomDigits(n int) (string, error) {
	ten := big.NewInt(10)
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}
