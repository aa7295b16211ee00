package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/formbridge/backend/internal/domain/session"
	"github.com/formbridge/backend/internal/domain/shared"
)

// Service wraps the session store with caller-facing validation and error
// translation
type Service struct {
	store session.Store
}

// NewService creates a session service
func NewService(store session.Store) *Service {
	return &Service{store: store}
}

// Create opens a new session for a form. A caller-supplied session id must
// be a UUIDv4; when absent one is generated.
func (s *Service) Create(ctx context.Context, formID, sessionID string) (*session.Session, error) {
	if formID == "" {
		return nil, shared.NewValidationError("formId is required")
	}
	if sessionID != "" && !session.IsUUIDv4(sessionID) {
		return nil, shared.NewValidationError(fmt.Sprintf("sessionId %q is not a UUIDv4", sessionID))
	}
	return s.store.Create(ctx, formID, sessionID)
}

// Get returns a live session. The id is validated before any lookup.
func (s *Service) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	if !session.IsUUIDv4(sessionID) {
		return nil, shared.NewValidationError(fmt.Sprintf("sessionId %q is not a UUIDv4", sessionID))
	}
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, shared.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID))
	}
	return sess, err
}

// Update applies a partial update to a live session
func (s *Service) Update(ctx context.Context, sessionID string, patch session.Patch) (*session.Session, error) {
	if !session.IsUUIDv4(sessionID) {
		return nil, shared.NewValidationError(fmt.Sprintf("sessionId %q is not a UUIDv4", sessionID))
	}
	sess, err := s.store.Update(ctx, sessionID, patch)
	if errors.Is(err, session.ErrNotFound) {
		return nil, shared.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID))
	}
	return sess, err
}

// Delete removes a session explicitly
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if !session.IsUUIDv4(sessionID) {
		return shared.NewValidationError(fmt.Sprintf("sessionId %q is not a UUIDv4", sessionID))
	}
	err := s.store.Delete(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return shared.NewNotFoundError(fmt.Sprintf("session %s not found", sessionID))
	}
	return err
}
