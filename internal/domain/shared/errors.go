package shared

// DomainError represents a domain-level error with a stable machine code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes used across the submission pipeline
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeConnection    = "CONNECTION_ERROR"
	CodeExternalAPI   = "EXTERNAL_API_ERROR"
	CodeInternal      = "INTERNAL_ERROR"
)

// NewValidationError creates an error for malformed caller input
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewNotFoundError creates an error for an absent form or session
func NewNotFoundError(message string) *DomainError {
	return NewDomainError(CodeNotFound, message)
}

// NewConfigurationError creates an error for unusable mapping configuration
func NewConfigurationError(message string) *DomainError {
	return NewDomainError(CodeConfiguration, message)
}

// NewConnectionError creates an error for a missing or unusable upstream handle
func NewConnectionError(message string) *DomainError {
	return NewDomainError(CodeConnection, message)
}

// NewInternalError creates an error for unexpected failures
func NewInternalError(message string) *DomainError {
	return NewDomainError(CodeInternal, message)
}
