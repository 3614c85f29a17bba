package dto

// APIError represents a structured error response.
// All error responses from the API use this format for consistency.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeUnavailable   = "service_unavailable"
)

// Bulk operation error codes
const (
	ErrCodeUnknownOperationType  = "unknown_operation_type"
	ErrCodeMissingParameters     = "missing_parameters"
	ErrCodeInvalidParameterValue = "invalid_parameter_value"
	ErrCodeTargetsNotFound       = "targets_not_found"
	ErrCodeOperationFinalized    = "operation_finalized"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// UnauthorizedError creates an unauthorized error response.
func UnauthorizedError(message string) APIError {
	return NewAPIError(ErrCodeUnauthorized, message)
}
