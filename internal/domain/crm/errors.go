package crm

import (
	"errors"
	"fmt"
)

// ErrorVariant partitions upstream API failures by cause
type ErrorVariant string

const (
	// ErrorVariantAuth indicates an invalid or expired credential
	ErrorVariantAuth ErrorVariant = "AUTH"
	// ErrorVariantPermission indicates insufficient access rights
	ErrorVariantPermission ErrorVariant = "PERMISSION"
	// ErrorVariantQuery indicates a malformed or rejected query
	ErrorVariantQuery ErrorVariant = "QUERY"
	// ErrorVariantCreate indicates a rejected create call
	ErrorVariantCreate ErrorVariant = "CREATE"
	// ErrorVariantConnection indicates a transport-level failure or timeout
	ErrorVariantConnection ErrorVariant = "CONNECTION"
)

// APIError is a classified failure from the record-keeping system
type APIError struct {
	Variant    ErrorVariant
	Code       string
	Message    string
	StatusCode int
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("crm: %s error %s: %s", e.Variant, e.Code, e.Message)
	}
	return fmt.Sprintf("crm: %s error: %s", e.Variant, e.Message)
}

// Retryable reports whether the failure is worth retrying. Only
// transport-level failures qualify; data-validity errors never do.
func (e *APIError) Retryable() bool {
	return e.Variant == ErrorVariantConnection
}

// NewAPIError builds a classified API error
func NewAPIError(variant ErrorVariant, code, message string, statusCode int) *APIError {
	return &APIError{Variant: variant, Code: code, Message: message, StatusCode: statusCode}
}

// ClassifyErrorCode maps an upstream error code to its variant
func ClassifyErrorCode(code string) ErrorVariant {
	switch code {
	case "INVALID_SESSION_ID", "INVALID_AUTH_HEADER", "SESSION_EXPIRED", "INVALID_GRANT":
		return ErrorVariantAuth
	case "INSUFFICIENT_ACCESS", "INSUFFICIENT_ACCESS_OR_READONLY", "API_DISABLED_FOR_ORG":
		return ErrorVariantPermission
	case "MALFORMED_QUERY", "INVALID_FIELD", "INVALID_TYPE", "INVALID_QUERY_FILTER_OPERATOR":
		return ErrorVariantQuery
	case "REQUIRED_FIELD_MISSING", "FIELD_CUSTOM_VALIDATION_EXCEPTION", "STRING_TOO_LONG",
		"DUPLICATE_VALUE", "DUPLICATE_EXTERNAL_ID", "INVALID_FIELD_FOR_INSERT_UPDATE":
		return ErrorVariantCreate
	default:
		return ErrorVariantConnection
	}
}

// IsUniqueViolation reports whether err is a create failure caused by a
// uniqueness constraint on the target object. The duplicate-submission
// fallback path keys off this.
func IsUniqueViolation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "DUPLICATE_VALUE", "DUPLICATE_EXTERNAL_ID", "DUPLICATES_DETECTED":
		return true
	}
	return false
}

// IsAuthError reports whether err is an authentication failure
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Variant == ErrorVariantAuth
}
