package crm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenData is one OAuth credential set for the record-keeping system
type TokenData struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	InstanceURL  string    `json:"instanceUrl"`
}

// TokenSession binds a credential set to one form session. Created on OAuth
// completion, mutated in place on refresh, persisted on every mutation, and
// reclaimed after the idle TTL.
type TokenSession struct {
	SessionID    string    `json:"sessionId"`
	ContextID    string    `json:"contextId"`
	TokenData    TokenData `json:"tokenData"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// TokenStore persists token sessions as a JSON collection file. Entries idle
// longer than the TTL are pruned on load and by the periodic sweep.
type TokenStore struct {
	mu        sync.Mutex
	path      string
	idleTTL   time.Duration
	sessions  map[string]*TokenSession
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTokenStore loads (or creates) the token session file at path
func NewTokenStore(path string, idleTTL, sweepInterval time.Duration, logger *zap.Logger) (*TokenStore, error) {
	store := &TokenStore{
		path:     path,
		idleTTL:  idleTTL,
		sessions: make(map[string]*TokenSession),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	if sweepInterval > 0 {
		store.wg.Add(1)
		go store.sweepLoop(sweepInterval)
	}
	return store, nil
}

// Get returns the token session for a form session id, touching its
// last-accessed time
func (s *TokenStore) Get(sessionID string) (*TokenSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	ts.LastAccessed = time.Now()
	out := *ts
	return &out, true
}

// Put stores a token session and persists the collection
func (s *TokenStore) Put(ts *TokenSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *ts
	copied.LastAccessed = time.Now()
	s.sessions[ts.SessionID] = &copied
	return s.persistLocked()
}

// UpdateToken replaces the credential set of an existing token session and
// persists the collection
func (s *TokenStore) UpdateToken(sessionID string, data TokenData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("crm: token session %s not found", sessionID)
	}
	ts.TokenData = data
	ts.LastAccessed = time.Now()
	return s.persistLocked()
}

// Delete removes a token session and persists the collection. The session
// becomes unusable until the caller re-authenticates.
func (s *TokenStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil
	}
	delete(s.sessions, sessionID)
	return s.persistLocked()
}

// Sweep removes token sessions idle longer than the TTL
func (s *TokenStore) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.idleTTL)
	removed := 0
	for id, ts := range s.sessions {
		if ts.LastAccessed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persistLocked()
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *TokenStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of stored token sessions (for testing/monitoring)
func (s *TokenStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *TokenStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("crm: reading token sessions: %w", err)
	}
	var sessions map[string]*TokenSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("crm: decoding token sessions: %w", err)
	}

	// Prune entries idle past the TTL at load time
	cutoff := time.Now().Add(-s.idleTTL)
	for id, ts := range sessions {
		if ts.LastAccessed.Before(cutoff) {
			delete(sessions, id)
		}
	}
	s.sessions = sessions
	if s.sessions == nil {
		s.sessions = make(map[string]*TokenSession)
	}
	return nil
}

// persistLocked writes the collection atomically. Callers must hold s.mu.
func (s *TokenStore) persistLocked() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("crm: encoding token sessions: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("crm: creating token session dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("crm: writing token sessions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("crm: replacing token sessions: %w", err)
	}
	return nil
}

func (s *TokenStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			removed, err := s.Sweep()
			if err != nil && s.logger != nil {
				s.logger.Warn("token session sweep failed", zap.Error(err))
			} else if removed > 0 && s.logger != nil {
				s.logger.Debug("swept idle token sessions", zap.Int("removed", removed))
			}
		}
	}
}
