package memory

import (
	"context"
	"time"

	"textbook-chat-be/internal/repository/contract"
	"textbook-chat-be/pkg/chat"

	"github.com/patrickmn/go-cache"
)

type SessionRepository struct {
	cache *cache.Cache
	ttl   time.Duration
}

var _ contract.ISessionStorageRepository = &SessionRepository{}

// NewSessionRepository keeps values for ttl after their last write and
// purges expired items every 10 minutes.
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

func (r *SessionRepository) Scope(sessionID string) chat.Storage {
	return &sessionStorage{repo: r, prefix: sessionID + ":"}
}

func (r *SessionRepository) ItemCount() int {
	return r.cache.ItemCount()
}

type sessionStorage struct {
	repo   *SessionRepository
	prefix string
}

func (s *sessionStorage) Get(_ context.Context, key string) ([]byte, error) {
	if x, found := s.repo.cache.Get(s.prefix + key); found {
		return append([]byte(nil), x.([]byte)...), nil
	}
	return nil, chat.ErrNotFound
}

func (s *sessionStorage) Set(_ context.Context, key string, value []byte) error {
	s.repo.cache.Set(s.prefix+key, append([]byte(nil), value...), cache.DefaultExpiration)
	return nil
}

func (s *sessionStorage) Remove(_ context.Context, key string) error {
	s.repo.cache.Delete(s.prefix + key)
	return nil
}
