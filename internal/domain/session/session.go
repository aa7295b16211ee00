package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the fixed lifetime of a form session. Expiry is anchored to
// creation time and does not slide on access.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound indicates the session does not exist or has expired
	ErrNotFound = errors.New("session: not found")
)

// Session holds ephemeral per-interaction state for one form
type Session struct {
	SessionID    string         `json:"sessionId"`
	FormID       string         `json:"formId"`
	ContextID    string         `json:"contextId"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	FormData     map[string]any `json:"formData,omitempty"`
	AgentContext map[string]any `json:"agentContext,omitempty"`
}

// Expired reports whether the session is past its fixed expiry
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Patch describes a partial session update
type Patch struct {
	FormData     map[string]any
	AgentContext map[string]any
}

// Store is the port for session persistence. Implementations must be safe
// for concurrent use and must expire sessions strictly at their fixed
// ExpiresAt regardless of intermediate access.
type Store interface {
	// Create stores a new session for the form. If sessionID is empty a new
	// UUIDv4 is generated.
	Create(ctx context.Context, formID, sessionID string) (*Session, error)

	// Get returns the session, refreshing its LastActivity. Expired sessions
	// are removed and reported as ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Update applies a partial update to an existing session
	Update(ctx context.Context, sessionID string, patch Patch) (*Session, error)

	// Delete removes a session explicitly
	Delete(ctx context.Context, sessionID string) error

	// Sweep removes all sessions past their expiry and returns the number
	// removed
	Sweep(ctx context.Context) (int, error)

	// Close releases store resources and stops background sweeps
	Close() error
}
