package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sessionapp "github.com/formbridge/backend/internal/application/session"
	"github.com/formbridge/backend/internal/domain/session"
)

// SessionHandler serves the form-session lifecycle
type SessionHandler struct {
	BaseHandler
	sessions *sessionapp.Service
}

// NewSessionHandler creates a session handler
func NewSessionHandler(sessions *sessionapp.Service, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler: BaseHandler{Logger: logger},
		sessions:    sessions,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("/:sessionId", h.Get)
		sessions.PUT("/:sessionId", h.Update)
		sessions.DELETE("/:sessionId", h.Delete)
	}
}

// CreateSessionRequest opens a session for a form. A caller-supplied
// sessionId is honored when it is a UUIDv4.
type CreateSessionRequest struct {
	FormID    string `json:"formId" binding:"required"`
	SessionID string `json:"sessionId" binding:"omitempty,sessionid"`
}

// SessionResponse is the caller-facing session view
type SessionResponse struct {
	SessionID    string         `json:"sessionId"`
	FormID       string         `json:"formId"`
	ContextID    string         `json:"contextId"`
	CreatedAt    string         `json:"createdAt"`
	ExpiresAt    string         `json:"expiresAt"`
	FormData     map[string]any `json:"formData,omitempty"`
	AgentContext map[string]any `json:"agentContext,omitempty"`
}

func toSessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		SessionID:    s.SessionID,
		FormID:       s.FormID,
		ContextID:    s.ContextID,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339),
		FormData:     s.FormData,
		AgentContext: s.AgentContext,
	}
}

// Create opens a new session
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondValidationError(c, "formId is required and sessionId must be a UUIDv4")
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), req.FormID, req.SessionID)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	h.RespondCreated(c, toSessionResponse(sess))
}

// Get returns a live session
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.RespondError(c, err)
		return
	}
	h.RespondSuccess(c, toSessionResponse(sess))
}

// UpdateSessionRequest is a partial session update
type UpdateSessionRequest struct {
	FormData     map[string]any `json:"formData"`
	AgentContext map[string]any `json:"agentContext"`
}

// Update merges new form data or agent context into a session
func (h *SessionHandler) Update(c *gin.Context) {
	var req UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondValidationError(c, "request body must be a JSON object")
		return
	}

	sess, err := h.sessions.Update(c.Request.Context(), c.Param("sessionId"), session.Patch{
		FormData:     req.FormData,
		AgentContext: req.AgentContext,
	})
	if err != nil {
		h.RespondError(c, err)
		return
	}
	h.RespondSuccess(c, toSessionResponse(sess))
}

// Delete removes a session before its natural expiry
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("sessionId")); err != nil {
		h.RespondError(c, err)
		return
	}
	h.RespondSuccess(c, gin.H{"deleted": true})
}
