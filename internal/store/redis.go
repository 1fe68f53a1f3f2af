package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "interview:"

// RedisStore implements SessionStore on Redis. Each session is a JSON value
// whose key TTL tracks the session expiry.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedis connects to the Redis server at url.
func NewRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opts)), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// ttlFor converts an absolute expiry into a key TTL. Zero means no expiry.
func (s *RedisStore) ttlFor(expiresAt time.Time) (time.Duration, bool) {
	if expiresAt.IsZero() {
		return 0, true
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

// Create stores a new session with SET NX.
func (s *RedisStore) Create(ctx context.Context, session *domain.Session) error {
	ttl, live := s.ttlFor(session.ExpiresAt)
	if !live {
		return fmt.Errorf("create session %s: already expired", session.ID)
	}

	rec := toRecord(session)
	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, redisKey(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}
	session.Version = 1
	return nil
}

// Get loads a session.
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeRecord(data)
}

func decodeRecord(data []byte) (*domain.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return rec.toSession(), nil
}

// Save writes the session inside a WATCH transaction so a concurrent writer
// aborts it.
func (s *RedisStore) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	key := redisKey(session.ID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		current, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		ttl, live := s.ttlFor(session.ExpiresAt)
		if !live {
			return domain.ErrSessionNotFound
		}
		rec := toRecord(session)
		rec.Version = expectedVersion + 1
		next, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		return err
	}
	session.Version = expectedVersion + 1
	return nil
}

// Delete removes a session key.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
