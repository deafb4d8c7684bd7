package games

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/educe-api/workflow"
	cache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL bounds how long an abandoned session is kept.
const DefaultSessionTTL = 2 * time.Hour

// SessionStore persists game sessions between requests.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

func sessionNotFound(id string) error {
	return fmt.Errorf("%w: game session %s not found", workflow.ErrNotFound, id)
}

// RedisStore keeps sessions as JSON values with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "game_session:" + id
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode game session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save game session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	b, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game session %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode game session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete game session %s: %w", id, err)
	}
	return nil
}

// MemoryStore keeps sessions in process. Used when Redis is not configured.
type MemoryStore struct {
	items *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{items: cache.New(ttl, 10*time.Minute)}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	cp := *s
	cp.Answers = s.Result()
	m.items.SetDefault(s.ID, cp)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	v, ok := m.items.Get(id)
	if !ok {
		return nil, sessionNotFound(id)
	}
	s := v.(Session)
	s.Answers = s.Result()
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.items.Delete(id)
	return nil
}
