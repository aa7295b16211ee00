package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/formbridge/backend/internal/domain/crm"
	"github.com/formbridge/backend/internal/domain/shared"
	"github.com/formbridge/backend/internal/infrastructure/logger"
	"github.com/formbridge/backend/internal/interfaces/http/dto"
)

// BaseHandler provides shared response helpers for all handlers
type BaseHandler struct {
	Logger *zap.Logger
}

// RespondSuccess writes a success envelope
func (h *BaseHandler) RespondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// RespondCreated writes a success envelope with 201
func (h *BaseHandler) RespondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// RespondError translates an error into the response envelope. Domain errors
// carry their own code; upstream API errors map by variant; everything else
// is an internal error with the detail kept out of the response body.
func (h *BaseHandler) RespondError(c *gin.Context, err error) {
	log := logger.FromContext(c, h.Logger)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(dto.HTTPStatus(domainErr.Code),
			dto.NewErrorResponse(domainErr.Code, domainErr.Message))
		return
	}

	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		code := shared.CodeExternalAPI
		status := http.StatusBadGateway
		if apiErr.Variant == crm.ErrorVariantConnection {
			code = shared.CodeConnection
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, dto.NewErrorResponse(code, apiErr.Message))
		return
	}

	log.Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError,
		dto.NewErrorResponse(shared.CodeInternal, "An unexpected error occurred"))
}

// RespondValidationError writes a 400 validation envelope
func (h *BaseHandler) RespondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest,
		dto.NewErrorResponse(shared.CodeValidation, message))
}
