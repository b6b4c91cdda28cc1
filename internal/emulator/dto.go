package emulator

import (
	"fmt"
	"net/http"
	"time"

	"github.com/birbparty/firenest/sdk"
)

// DocumentResponse is the wire form of a stored document
type DocumentResponse struct {
	Name       string               `json:"name"`
	Fields     map[string]sdk.Value `json:"fields,omitempty"`
	CreateTime string               `json:"createTime"`
	UpdateTime string               `json:"updateTime"`
}

// DocumentRequest is the body of create and patch requests
type DocumentRequest struct {
	Name   string               `json:"name,omitempty"`
	Fields map[string]sdk.Value `json:"fields"`
}

// ListResponse is one page of a collection listing
type ListResponse struct {
	Documents     []*DocumentResponse `json:"documents,omitempty"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

// RunQueryRequest is the body of a runQuery call
type RunQueryRequest struct {
	StructuredQuery *StructuredQuery `json:"structuredQuery"`
}

// StructuredQuery is the supported subset of the structured query language:
// one collection, an optional field filter, orderings and a limit.
type StructuredQuery struct {
	From    []CollectionSelector `json:"from"`
	Where   *QueryFilter         `json:"where,omitempty"`
	OrderBy []QueryOrder         `json:"orderBy,omitempty"`
	Limit   *int32               `json:"limit,omitempty"`
}

// CollectionSelector names the queried collection
type CollectionSelector struct {
	CollectionID   string `json:"collectionId"`
	AllDescendants bool   `json:"allDescendants,omitempty"`
}

// QueryFilter wraps a field filter
type QueryFilter struct {
	FieldFilter *FieldFilter `json:"fieldFilter,omitempty"`
}

// FieldFilter compares one field against a value
type FieldFilter struct {
	Field FieldReference `json:"field"`
	Op    string         `json:"op"`
	Value sdk.Value      `json:"value"`
}

// FieldReference names a field by its quoted path
type FieldReference struct {
	FieldPath string `json:"fieldPath"`
}

// QueryOrder orders results by one field
type QueryOrder struct {
	Field     FieldReference `json:"field"`
	Direction string         `json:"direction,omitempty"`
}

// RunQueryResponse is one element of the runQuery response array
type RunQueryResponse struct {
	Document *DocumentResponse `json:"document,omitempty"`
	ReadTime string            `json:"readTime"`
}

// ServiceTokenResponse answers a JWT bearer grant
type ServiceTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// SignInRequest is the body of signInWithCustomToken
type SignInRequest struct {
	Token             string `json:"token"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// SignInResponse answers signInWithCustomToken
type SignInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

// SecureTokenResponse answers a refresh token grant
type SecureTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
}

// ErrorResponse is the service's error envelope
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the HTTP code, canonical status and message
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Canonical status names
const (
	StatusInvalidArgument    = "INVALID_ARGUMENT"
	StatusFailedPrecondition = "FAILED_PRECONDITION"
	StatusNotFound           = "NOT_FOUND"
	StatusAlreadyExists      = "ALREADY_EXISTS"
	StatusUnauthenticated    = "UNAUTHENTICATED"
	StatusPermissionDenied   = "PERMISSION_DENIED"
	StatusResourceExhausted  = "RESOURCE_EXHAUSTED"
	StatusInternal           = "INTERNAL"
	StatusUnavailable        = "UNAVAILABLE"
)

// Error is a failure with an HTTP code and a canonical status. Store and
// authority methods return it; handlers render it as the error envelope.
type Error struct {
	Code    int
	Status  string
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.Status, e.Message)
}

// NewErrorResponse builds the envelope for err
func NewErrorResponse(err *Error) *ErrorResponse {
	return &ErrorResponse{Error: ErrorBody{Code: err.Code, Message: err.Message, Status: err.Status}}
}

func invalidArgument(format string, args ...interface{}) *Error {
	return &Error{Code: http.StatusBadRequest, Status: StatusInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) *Error {
	return &Error{Code: http.StatusNotFound, Status: StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func alreadyExists(format string, args ...interface{}) *Error {
	return &Error{Code: http.StatusConflict, Status: StatusAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func unauthenticated(format string, args ...interface{}) *Error {
	return &Error{Code: http.StatusUnauthorized, Status: StatusUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

// formatTime renders a timestamp the way the service does
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
