package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when the configuration is invalid
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrorKind categorizes every error returned by the SDK. Each public
// operation returns either a success value or an error of exactly one kind.
//
// Example:
//
//	_, err := client.Create(ctx, "users", "alice", user)
//	switch sdk.KindOf(err) {
//	case sdk.KindAPI:
//	    // remote rejected the request, inspect *sdk.APIError
//	case sdk.KindBudgetExhausted:
//	    // the service kept failing transiently
//	}
type ErrorKind int

const (
	// KindUnknown is an unclassified error, typically a canceled context
	KindUnknown ErrorKind = iota
	// KindAPI means the remote service rejected the request
	KindAPI
	// KindAuthentication means a credential or token exchange failed
	KindAuthentication
	// KindSerialization means a value could not be encoded or decoded
	KindSerialization
	// KindTransport means a network or connection failure
	KindTransport
	// KindIO means a local file access failure
	KindIO
	// KindBudgetExhausted means the retry budget expired on transient failures
	KindBudgetExhausted
)

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindAPI:
		return "api"
	case KindAuthentication:
		return "authentication"
	case KindSerialization:
		return "serialization"
	case KindTransport:
		return "transport"
	case KindIO:
		return "io"
	case KindBudgetExhausted:
		return "budget_exhausted"
	default:
		return "unknown"
	}
}

// APIError represents an error response from the document service.
// It carries the HTTP status code, the error payload and the document path
// (or other caller supplied context) the request was about.
//
// Example:
//
//	var apiErr *sdk.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.IsConflict() {
//	        // document already exists
//	    } else if apiErr.IsNotFound() {
//	        log.Printf("missing %s", apiErr.Context)
//	    }
//	}
type APIError struct {
	// Code is the HTTP status code of the response
	Code int
	// Message is the error message from the server
	Message string
	// Status is the canonical status name, e.g. "NOT_FOUND"
	Status string
	// Context is the document path or operation the request targeted
	Context string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("API error (status %d %s) for %s: %s", e.Code, e.Status, e.Context, e.Message)
	}
	return fmt.Sprintf("API error (status %d %s): %s", e.Code, e.Status, e.Message)
}

// IsNotFound returns true if the error is a not found error
func (e *APIError) IsNotFound() bool {
	return e.Code == http.StatusNotFound
}

// IsConflict returns true if the document already exists
func (e *APIError) IsConflict() bool {
	return e.Code == http.StatusConflict
}

// IsServerError returns true if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.Code >= 500
}

// IsRetryable returns true for rate limiting and server errors
func (e *APIError) IsRetryable() bool {
	return e.IsServerError() || e.Code == http.StatusTooManyRequests
}

// AuthenticationError is returned when credentials are invalid or a token
// exchange is rejected. It is never retried.
type AuthenticationError struct {
	Message string
	Err     error
}

// Error implements the error interface
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("authentication error: %s", e.Message)
}

// Unwrap returns the underlying error
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// SerializationError is returned when a value cannot be encoded to or
// decoded from the document wire format.
type SerializationError struct {
	// Field is the offending field name, if known
	Field   string
	Message string
	Err     error
}

// Error implements the error interface
func (e *SerializationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("field %q: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("serialization error: %s: %v", msg, e.Err)
	}
	return "serialization error: " + msg
}

// Unwrap returns the underlying error
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// TransportError represents a network-related error such as connection
// refused, DNS resolution failure, or a timed out attempt.
//
// Example:
//
//	var netErr *sdk.TransportError
//	if errors.As(err, &netErr) {
//	    log.Printf("network error during %s: %v", netErr.Op, netErr.Err)
//	}
type TransportError struct {
	// Op is the request that failed (e.g., "GET users/alice")
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IOError is returned when a local file cannot be read
type IOError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *IOError) Error() string {
	return fmt.Sprintf("io error on %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *IOError) Unwrap() error {
	return e.Err
}

// BudgetExhaustedError is returned when an operation kept failing with
// transient errors until its retry budget expired. Err holds the last
// observed failure.
type BudgetExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Error implements the error interface
func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts (%v): %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap returns the last transient error
func (e *BudgetExhaustedError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. A BudgetExhaustedError is reported as
// such even though it wraps a transient error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var (
		budgetErr *BudgetExhaustedError
		apiErr    *APIError
		authErr   *AuthenticationError
		serErr    *SerializationError
		netErr    *TransportError
		ioErr     *IOError
	)
	switch {
	case errors.As(err, &budgetErr):
		return KindBudgetExhausted
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &serErr):
		return KindSerialization
	case errors.As(err, &netErr):
		return KindTransport
	case errors.As(err, &ioErr):
		return KindIO
	}
	return KindUnknown
}

// IsRetryable checks if an error is transient.
// Retryable errors are:
//   - Transport errors (connection issues, attempt timeouts)
//   - API errors with status 429 or 5xx
//
// Everything else, including a BudgetExhaustedError, is permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var budgetErr *BudgetExhaustedError
	if errors.As(err, &budgetErr) {
		return false
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var netErr *TransportError
	return errors.As(err, &netErr)
}

// IsNotFound checks if the error is an API error with status 404.
//
// Example:
//
//	var user User
//	err := client.Read(ctx, "users", "alice", &user)
//	if sdk.IsNotFound(err) {
//	    // document doesn't exist
//	}
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict checks if the error is an API error with status 409
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsFailedPrecondition checks if the error is an API error with status 400,
// which the service returns for malformed or unmet preconditions.
func IsFailedPrecondition(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// errorEnvelope is the API error body: {"error": {code, message, status}}
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// classifyResponse returns nil for a 2xx status and an *APIError otherwise.
// The message comes from the error envelope when the body carries one, and
// falls back to the raw body or the status text.
func classifyResponse(status int, body []byte, context string) error {
	if status >= 200 && status < 300 {
		return nil
	}

	apiErr := &APIError{
		Code:    status,
		Context: context,
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		apiErr.Message = trimmed
	} else {
		apiErr.Message = http.StatusText(status)
	}

	if apiErr.Status == "" {
		apiErr.Status = statusName(status)
	}
	return apiErr
}

// statusName maps an HTTP status to the canonical status name the service uses
func statusName(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "FAILED_PRECONDITION"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "ALREADY_EXISTS"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "DEADLINE_EXCEEDED"
	}
	if code >= 500 {
		return "INTERNAL"
	}
	return "UNKNOWN"
}
