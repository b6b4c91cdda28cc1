// Package tokenstore persists user refresh tokens between runs, so a user
// session can be resumed without signing in again.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/birbparty/firenest/sdk"
)

// Store keeps one refresh token per user id
type Store interface {
	// Load returns the refresh token saved for userID, or ErrNotFound
	Load(ctx context.Context, userID string) (string, error)

	// Save stores refreshToken for userID, replacing any previous one
	Save(ctx context.Context, userID, refreshToken string) error

	// Delete forgets userID. Deleting an unknown user is not an error.
	Delete(ctx context.Context, userID string) error

	// Close releases the store's resources
	Close() error
}

// Common errors
var (
	ErrNotFound    = NewStoreError("refresh token not found", false)
	ErrStoreClosed = NewStoreError("token store is closed", false)
)

// StoreError represents a token store failure
type StoreError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewStoreError creates a new store error
func NewStoreError(message string, retryable bool) *StoreError {
	return &StoreError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// WithError returns a copy of e wrapping err
func (e *StoreError) WithError(err error) *StoreError {
	return &StoreError{
		Message:    e.Message,
		Retryable:  e.Retryable,
		Underlying: err,
	}
}

// Is matches store errors by message, so wrapped copies of ErrNotFound
// still satisfy errors.Is
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if !errors.As(target, &t) {
		return false
	}
	return e.Message == t.Message
}

// Open returns the store described by spec: a redis:// or rediss:// URL
// selects a RedisStore, anything else is a FileStore path.
func Open(spec string) (Store, error) {
	if strings.HasPrefix(spec, "redis://") || strings.HasPrefix(spec, "rediss://") {
		store, err := NewRedisStoreFromURL(spec)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := NewFileStore(spec)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ResumeUserSession returns a session for userID. A refresh token found in
// store is exchanged first; when there is none, or it is rejected, the
// user is signed in with a custom token. The session's refresh token is
// saved back to store.
func ResumeUserSession(ctx context.Context, store Store, creds *sdk.Credentials, userID string, config *sdk.Config) (*sdk.UserSession, error) {
	refreshToken, err := store.Load(ctx, userID)
	switch {
	case err == nil:
		session, err := sdk.NewUserSessionByRefreshToken(ctx, creds, refreshToken, config)
		if err == nil {
			return session, nil
		}
		if sdk.KindOf(err) != sdk.KindAuthentication {
			return nil, err
		}
		// stale token, sign in again
		if err := store.Delete(ctx, userID); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	session, err := sdk.NewUserSessionByUserID(ctx, creds, userID, true, config)
	if err != nil {
		return nil, err
	}
	if token := session.RefreshToken(); token != "" {
		if err := store.Save(ctx, userID, token); err != nil {
			return nil, err
		}
	}
	return session, nil
}
