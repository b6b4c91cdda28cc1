package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps refresh tokens in a JSON file readable only by its owner.
// It is safe for concurrent use within one process.
type FileStore struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewFileStore creates a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, NewStoreError("token file path is required", false)
	}
	return &FileStore{path: path}, nil
}

// Load returns the refresh token saved for userID
func (s *FileStore) Load(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.readLocked()
	if err != nil {
		return "", err
	}
	token, ok := tokens[userID]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// Save stores refreshToken for userID
func (s *FileStore) Save(ctx context.Context, userID, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.readLocked()
	if err != nil {
		return err
	}
	tokens[userID] = refreshToken
	return s.writeLocked(tokens)
}

// Delete forgets userID
func (s *FileStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := tokens[userID]; !ok {
		return nil
	}
	delete(tokens, userID)
	return s.writeLocked(tokens)
}

// Close marks the store closed
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) readLocked() (map[string]string, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	tokens := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return tokens, nil
	}
	if err != nil {
		return nil, NewStoreError("failed to read token file", true).WithError(err)
	}
	if len(data) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, NewStoreError("malformed token file", false).WithError(err)
	}
	return tokens, nil
}

// writeLocked replaces the file atomically
func (s *FileStore) writeLocked(tokens map[string]string) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return NewStoreError("failed to encode tokens", false).WithError(err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return NewStoreError("failed to create token directory", false).WithError(err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return NewStoreError("failed to write token file", true).WithError(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return NewStoreError("failed to write token file", true).WithError(err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return NewStoreError("failed to write token file", true).WithError(err)
	}
	if err := tmp.Close(); err != nil {
		return NewStoreError("failed to write token file", true).WithError(err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return NewStoreError("failed to replace token file", true).WithError(err)
	}
	return nil
}
