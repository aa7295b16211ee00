package dto

import (
	"net/http"

	"github.com/formbridge/backend/internal/domain/shared"
)

// statusByCode maps domain error codes to HTTP status codes. Unknown codes
// fall back to 500.
var statusByCode = map[string]int{
	shared.CodeValidation:    http.StatusBadRequest,
	shared.CodeConfiguration: http.StatusBadRequest,
	shared.CodeNotFound:      http.StatusNotFound,
	shared.CodeExternalAPI:   http.StatusBadGateway,
	shared.CodeConnection:    http.StatusServiceUnavailable,
	shared.CodeInternal:      http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status code for a domain error code
func HTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
