package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/formbridge/backend/internal/domain/session"
)

const redisKeyPrefix = "formbridge:session:"

// RedisStore implements session.Store on a Redis backend, enabling multiple
// service instances to share one session space. Expiry is enforced twice:
// the key TTL matches the session's fixed ExpiresAt, and reads re-check
// ExpiresAt so a lagging TTL can never extend a session.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a session store backed by the given Redis client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Create stores a new session for the form
func (s *RedisStore) Create(ctx context.Context, formID, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	sess := &session.Session{
		SessionID:    sessionID,
		FormID:       formID,
		ContextID:    session.NewContextID(formID, sessionID).String(),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
		FormData:     make(map[string]any),
		AgentContext: make(map[string]any),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session, refreshing LastActivity without extending the
// fixed expiry
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.LastActivity = time.Now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update applies a partial update to an existing session
func (s *RedisStore) Update(ctx context.Context, sessionID string, patch session.Patch) (*session.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if patch.FormData != nil {
		if sess.FormData == nil {
			sess.FormData = make(map[string]any)
		}
		for k, v := range patch.FormData {
			sess.FormData[k] = v
		}
	}
	if patch.AgentContext != nil {
		if sess.AgentContext == nil {
			sess.AgentContext = make(map[string]any)
		}
		for k, v := range patch.AgentContext {
			sess.AgentContext[k] = v
		}
	}
	sess.LastActivity = time.Now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session explicitly
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	removed, err := s.client.Del(ctx, redisKeyPrefix+sessionID).Result()
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if removed == 0 {
		return session.ErrNotFound
	}
	return nil
}

// Sweep is a no-op for Redis; key TTLs handle reclamation
func (s *RedisStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// Close releases the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, sessionID string) (*session.Session, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("redis session decode: %w", err)
	}
	if sess.Expired(time.Now()) {
		_ = s.client.Del(ctx, redisKeyPrefix+sessionID).Err()
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis session encode: %w", err)
	}
	expiry := time.Until(sess.ExpiresAt)
	if expiry <= 0 {
		return session.ErrNotFound
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sess.SessionID, data, expiry).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ensure RedisStore implements session.Store
var _ session.Store = (*RedisStore)(nil)
