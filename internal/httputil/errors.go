package httputil

// Code is a machine-readable error identifier returned alongside every
// non-2xx response, distinct from the HTTP status code so clients can branch
// on it without string-matching the message.
type Code string

const (
	CodeValidationError Code = "validation_error"
	CodeUnauthorized    Code = "unauthorized"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeInvalidBody     Code = "invalid_body"
	CodeInternalError   Code = "internal_error"
)
