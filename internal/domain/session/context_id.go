package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/formbridge/backend/internal/domain/shared"
)

// ContextID is a composite key "{formID}:{sessionID}" identifying one
// in-flight form interaction. It is never stored as a struct; callers parse
// it on demand.
type ContextID struct {
	FormID    string
	SessionID string
}

// String returns the wire representation of the context ID
func (c ContextID) String() string {
	return c.FormID + ":" + c.SessionID
}

// NewContextID builds a context ID from its two segments
func NewContextID(formID, sessionID string) ContextID {
	return ContextID{FormID: formID, SessionID: sessionID}
}

// ParseContextID splits a raw context ID into its form and session segments.
// The session segment must be a valid UUIDv4.
func ParseContextID(raw string) (ContextID, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ContextID{}, shared.NewValidationError(
			fmt.Sprintf("invalid context ID %q: expected format formId:sessionId", raw))
	}
	if !IsUUIDv4(parts[1]) {
		return ContextID{}, shared.NewValidationError(
			fmt.Sprintf("invalid context ID %q: session segment is not a UUIDv4", raw))
	}
	return ContextID{FormID: parts[0], SessionID: parts[1]}, nil
}

// ValidateContextID parses the raw context ID and additionally requires its
// form segment to equal the expected form ID.
func ValidateContextID(raw, expectedFormID string) (ContextID, error) {
	id, err := ParseContextID(raw)
	if err != nil {
		return ContextID{}, err
	}
	if id.FormID != expectedFormID {
		return ContextID{}, shared.NewValidationError(
			fmt.Sprintf("context ID form %q does not match form %q", id.FormID, expectedFormID))
	}
	return id, nil
}

// IsUUIDv4 reports whether s is a canonical RFC 4122 version 4 UUID
func IsUUIDv4(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}
