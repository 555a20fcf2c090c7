package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"textbook-chat-be/internal/repository/contract"
	"textbook-chat-be/pkg/chat"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:session:"

// SessionRepository stores session-scoped values in Redis so that any
// gateway instance can restore a session's history.
type SessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ contract.ISessionStorageRepository = &SessionRepository{}

func NewSessionRepository(rdb *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{rdb: rdb, ttl: ttl}
}

func (r *SessionRepository) Scope(sessionID string) chat.Storage {
	return &sessionStorage{repo: r, prefix: keyPrefix + sessionID + ":"}
}

type sessionStorage struct {
	repo   *SessionRepository
	prefix string
}

func (s *sessionStorage) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.repo.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set refreshes the session TTL on every write.
func (s *sessionStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := s.repo.rdb.Set(ctx, s.prefix+key, value, s.repo.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *sessionStorage) Remove(ctx context.Context, key string) error {
	if err := s.repo.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
