package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/formbridge/backend/internal/domain/shared"
)

// refreshCall is one in-flight token refresh. Concurrent callers for the
// same session wait on done and read the shared result instead of issuing
// their own refresh.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// TokenManager serves valid access tokens for per-user token sessions.
// Refresh is single-flight per session id: a pending refresh is registered
// under the session id and joined by concurrent callers. On success the
// token session is updated and persisted; on failure it is discarded and
// the caller must re-authenticate.
type TokenManager struct {
	store     *TokenStore
	refresher TokenRefresher
	skew      time.Duration
	logger    *zap.Logger

	mu       sync.Mutex // guards inflight; never held across network calls
	inflight map[string]*refreshCall
}

// NewTokenManager creates a token manager. skew is how long before expiry a
// token is considered stale.
func NewTokenManager(store *TokenStore, refresher TokenRefresher, skew time.Duration, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		store:     store,
		refresher: refresher,
		skew:      skew,
		logger:    logger,
		inflight:  make(map[string]*refreshCall),
	}
}

// Has reports whether a token session exists for the form session id
func (m *TokenManager) Has(sessionID string) bool {
	_, ok := m.store.Get(sessionID)
	return ok
}

// Session returns the token session for a form session id
func (m *TokenManager) Session(sessionID string) (*TokenSession, bool) {
	return m.store.Get(sessionID)
}

// GetValidAccessToken returns a usable access token for the session,
// refreshing it when within the expiry skew. Concurrent callers observe and
// await one in-flight refresh rather than triggering duplicates.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	if call, ok := m.inflight[sessionID]; ok {
		m.mu.Unlock()
		return m.await(ctx, call)
	}

	ts, ok := m.store.Get(sessionID)
	if !ok {
		m.mu.Unlock()
		return "", shared.NewConnectionError(
			fmt.Sprintf("no token session for session %s; authentication required", sessionID))
	}
	if time.Now().Before(ts.TokenData.ExpiresAt.Add(-m.skew)) {
		m.mu.Unlock()
		return ts.TokenData.AccessToken, nil
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight[sessionID] = call
	m.mu.Unlock()

	m.refresh(ctx, sessionID, ts, call)

	m.mu.Lock()
	delete(m.inflight, sessionID)
	m.mu.Unlock()

	return call.token, call.err
}

// refresh performs the network refresh and settles the call
func (m *TokenManager) refresh(ctx context.Context, sessionID string, ts *TokenSession, call *refreshCall) {
	defer close(call.done)

	if ts.TokenData.RefreshToken == "" {
		call.err = shared.NewConnectionError(
			fmt.Sprintf("token session %s has no refresh token; authentication required", sessionID))
		_ = m.store.Delete(sessionID)
		return
	}

	data, err := m.refresher.Refresh(ctx, ts.TokenData.RefreshToken)
	if err != nil {
		// A failed refresh leaves the session unusable; discard it so the
		// caller re-authenticates instead of looping on a dead credential.
		if delErr := m.store.Delete(sessionID); delErr != nil && m.logger != nil {
			m.logger.Warn("discarding token session failed",
				zap.String("session_id", sessionID), zap.Error(delErr))
		}
		call.err = err
		if m.logger != nil {
			m.logger.Warn("token refresh failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return
	}

	// Some token services omit the refresh token on rotation; keep the old one
	if data.RefreshToken == "" {
		data.RefreshToken = ts.TokenData.RefreshToken
	}
	if data.InstanceURL == "" {
		data.InstanceURL = ts.TokenData.InstanceURL
	}

	if err := m.store.UpdateToken(sessionID, *data); err != nil {
		call.err = err
		return
	}
	call.token = data.AccessToken
}

func (m *TokenManager) await(ctx context.Context, call *refreshCall) (string, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
