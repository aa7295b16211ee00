package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	submissionapp "github.com/formbridge/backend/internal/application/submission"
)

// FormHandler serves form definitions and accepts submissions
type FormHandler struct {
	BaseHandler
	provider   submissionapp.ConnectionProvider
	resolver   submissionapp.FormResolver
	submission *submissionapp.Service
}

// NewFormHandler creates a form handler
func NewFormHandler(provider submissionapp.ConnectionProvider, resolver submissionapp.FormResolver, submission *submissionapp.Service, logger *zap.Logger) *FormHandler {
	return &FormHandler{
		BaseHandler: BaseHandler{Logger: logger},
		provider:    provider,
		resolver:    resolver,
		submission:  submission,
	}
}

// RegisterRoutes registers form routes
func (h *FormHandler) RegisterRoutes(rg *gin.RouterGroup) {
	forms := rg.Group("/forms")
	{
		forms.GET("/:formId", h.GetForm)
		forms.POST("/:formId/submit", h.Submit)
	}
}

// FormResponse is the caller-facing form definition
type FormResponse struct {
	FormID      string `json:"formId"`
	Title       string `json:"title"`
	Fields      any    `json:"fields,omitempty"`
	Mappings    any    `json:"mappings,omitempty"`
	AgentConfig any    `json:"agentConfig,omitempty"`
	Active      bool   `json:"active"`
}

// GetForm returns a form's definition. An optional contextId query parameter
// selects the caller's own connection; without one the shared connection
// serves the read.
func (h *FormHandler) GetForm(c *gin.Context) {
	formID := c.Param("formId")
	contextID := c.Query("contextId")

	client, err := h.provider.Resolve(c.Request.Context(), contextID)
	if err != nil {
		h.RespondError(c, err)
		return
	}
	res, err := h.resolver.Fetch(c.Request.Context(), formID, client)
	if err != nil {
		h.RespondError(c, err)
		return
	}

	def := res.Definition
	resp := FormResponse{
		FormID: def.FormID,
		Title:  def.Title,
		Active: def.Active,
	}
	if def.Fields != nil {
		resp.Fields = def.Fields
	}
	if def.MappingRules != nil {
		resp.Mappings = def.MappingRules
	}
	if len(def.AgentConfig) > 0 {
		resp.AgentConfig = def.AgentConfig
	}
	h.RespondSuccess(c, resp)
}

// SubmitRequest is the submission payload
type SubmitRequest struct {
	ContextID string         `json:"contextId"`
	FormData  map[string]any `json:"formData" binding:"required"`
}

// Submit accepts one form submission and runs the saga
func (h *FormHandler) Submit(c *gin.Context) {
	formID := c.Param("formId")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondValidationError(c, "formData is required")
		return
	}

	result, err := h.submission.Submit(c.Request.Context(), formID, submissionapp.Request{
		ContextID: req.ContextID,
		FormData:  req.FormData,
	})
	if err != nil {
		h.RespondError(c, err)
		return
	}
	h.RespondSuccess(c, result)
}
