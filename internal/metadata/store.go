// Package metadata persists the per-user preference document. The document
// is an opaque JSON blob; backends overwrite it wholesale on every Put.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

// ErrEmptyUserID is returned when a store is called without a user ID.
var ErrEmptyUserID = errors.New("metadata: user id is required")

// Store reads and replaces a user's metadata document.
type Store interface {
	// Get returns the stored document, or nil if the user has none.
	Get(ctx context.Context, userID string) (json.RawMessage, error)
	// Put replaces the stored document.
	Put(ctx context.Context, userID string, blob json.RawMessage) error
}

func checkUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrEmptyUserID
	}
	return userID, nil
}

// isEmptyDocument reports whether blob carries no stored fields.
func isEmptyDocument(blob json.RawMessage) bool {
	trimmed := bytes.TrimSpace(blob)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
	puts int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]json.RawMessage)}
}

// Get returns a copy of the user's document.
func (s *MemoryStore) Get(_ context.Context, userID string) (json.RawMessage, error) {
	userID, err := checkUserID(userID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[userID]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), doc...), nil
}

// Put stores a copy of blob.
func (s *MemoryStore) Put(ctx context.Context, userID string, blob json.RawMessage) error {
	userID, err := checkUserID(userID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(blob) {
		return errors.New("metadata: document is not valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[userID] = append(json.RawMessage(nil), blob...)
	s.puts++
	return nil
}

// Puts returns the number of successful writes.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
