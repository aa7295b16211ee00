package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formbridge/backend/internal/domain/session"
)

// MemoryStore implements session.Store using an in-process map. Suitable for
// single-instance deployments and testing; the redis backend covers
// horizontal scaling behind the same interface.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	ttl       time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// now is swappable for expiry tests
	now func() time.Time
}

// NewMemoryStore creates a new in-memory session store. It starts a
// background goroutine that sweeps expired sessions on the given interval,
// independent of request traffic.
func NewMemoryStore(ttl, sweepInterval time.Duration, logger *zap.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	store := &MemoryStore{
		sessions: make(map[string]*session.Session),
		ttl:      ttl,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	if sweepInterval > 0 {
		store.wg.Add(1)
		go store.sweepLoop(sweepInterval)
	}
	return store
}

// Create stores a new session for the form
func (s *MemoryStore) Create(_ context.Context, formID, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := s.now()
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

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	return cloneSession(sess), nil
}

// Get returns the session, refreshing LastActivity. Expiry is anchored to
// creation time; an expired session is deleted and reported as not found.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return nil, session.ErrNotFound
	}
	sess.LastActivity = s.now()
	return cloneSession(sess), nil
}

// Update applies a partial update to an existing session
func (s *MemoryStore) Update(_ context.Context, sessionID string, patch session.Patch) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return nil, session.ErrNotFound
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
	sess.LastActivity = s.now()
	return cloneSession(sess), nil
}

// Delete removes a session explicitly
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return session.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Sweep removes all sessions past their expiry
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of live entries (for testing/monitoring)
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if removed, _ := s.Sweep(context.Background()); removed > 0 && s.logger != nil {
				s.logger.Debug("swept expired sessions", zap.Int("removed", removed))
			}
		}
	}
}

func cloneSession(sess *session.Session) *session.Session {
	out := *sess
	out.FormData = cloneMap(sess.FormData)
	out.AgentContext = cloneMap(sess.AgentContext)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Ensure MemoryStore implements session.Store
var _ session.Store = (*MemoryStore)(nil)
