package ucp

import (
	"net/http"
)

// ErrorType groups failures the way the protocol reports them.
type ErrorType string

const (
	ValidationError    ErrorType = "validation_error"    // Missing or malformed request field.
	AuthError          ErrorType = "auth_error"          // Whitelist, signature, or permission failure.
	StateConflictError ErrorType = "state_conflict"      // Operation not valid for the session's status.
	NotFoundError      ErrorType = "not_found"           // Unknown session or order.
	PersistenceError   ErrorType = "persistence_error"   // Session store write failed.
	ProtocolDisabled   ErrorType = "service_unavailable" // UCP is switched off for this store.
)

// ErrorCode is a machine-readable identifier for the specific failure.
type ErrorCode string

const (
	MissingLineItems     ErrorCode = "missing_line_items"
	MissingPaymentData   ErrorCode = "missing_payment_data"
	MissingWebhookURL    ErrorCode = "missing_webhook_url"
	InvalidWebhookURL    ErrorCode = "invalid_webhook_url"
	InvalidRequestBody   ErrorCode = "invalid_request"
	AgentNotWhitelisted  ErrorCode = "agent_not_whitelisted"
	InvalidSignature     ErrorCode = "invalid_signature"
	SessionNotFound      ErrorCode = "session_not_found"
	OrderNotFound        ErrorCode = "order_not_found"
	NotUCPOrder          ErrorCode = "not_ucp_order"
	SessionExpired       ErrorCode = "session_expired"
	SessionNotModifiable ErrorCode = "session_not_modifiable"
	SessionComplete      ErrorCode = "session_already_complete"
	SessionNotCancelable ErrorCode = "session_not_cancellable"
	SessionSaveFailed    ErrorCode = "session_save_failed"
	UCPDisabled          ErrorCode = "ucp_disabled"
)

// Error represents a structured UCP error payload.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Param   *string   `json:"param,omitempty"`

	status int `json:"-"`
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StatusCode returns the HTTP status the error maps to.
func (e *Error) StatusCode() int {
	if e == nil || e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

type errorOption func(*Error)

// WithOffendingParam sets the JSON path for the field that triggered the error.
func WithOffendingParam(jsonPath string) errorOption {
	return func(er *Error) {
		er.Param = &jsonPath
	}
}

// WithStatusCode overrides the HTTP status code returned to the client.
func WithStatusCode(status int) errorOption {
	return func(er *Error) {
		er.status = status
	}
}

// NewValidationError builds a Bad Request UCP error payload.
func NewValidationError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(ValidationError, code, message, append([]errorOption{WithStatusCode(http.StatusBadRequest)}, opts...)...)
}

// NewAuthError builds a 401 or 403 UCP error payload depending on the code.
func NewAuthError(code ErrorCode, message string, opts ...errorOption) *Error {
	status := http.StatusForbidden
	if code == InvalidSignature {
		status = http.StatusUnauthorized
	}
	return newError(AuthError, code, message, append([]errorOption{WithStatusCode(status)}, opts...)...)
}

// NewNotFoundError builds a Not Found UCP error payload.
func NewNotFoundError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(NotFoundError, code, message, append([]errorOption{WithStatusCode(http.StatusNotFound)}, opts...)...)
}

// NewConflictError builds a Conflict UCP error payload.
func NewConflictError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(StateConflictError, code, message, append([]errorOption{WithStatusCode(http.StatusConflict)}, opts...)...)
}

// NewGoneError builds a Gone UCP error payload for expired sessions.
func NewGoneError(message string, opts ...errorOption) *Error {
	return newError(StateConflictError, SessionExpired, message, append([]errorOption{WithStatusCode(http.StatusGone)}, opts...)...)
}

// NewPersistenceError builds an Internal Server Error UCP error payload.
func NewPersistenceError(message string, opts ...errorOption) *Error {
	return newError(PersistenceError, SessionSaveFailed, message, append([]errorOption{WithStatusCode(http.StatusInternalServerError)}, opts...)...)
}

// NewProtocolDisabledError builds a Service Unavailable UCP error payload.
func NewProtocolDisabledError(message string, opts ...errorOption) *Error {
	return newError(ProtocolDisabled, UCPDisabled, message, append([]errorOption{WithStatusCode(http.StatusServiceUnavailable)}, opts...)...)
}

// NewHTTPError allows callers to control the status code explicitly.
func NewHTTPError(status int, typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(typ, code, message, append(opts, WithStatusCode(status))...)
}

// newError builds a typed error payload matching the UCP schema.
func newError(typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Type:    typ,
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}
