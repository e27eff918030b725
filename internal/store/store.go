// Package store persists ordered lists of image references between the
// capture, selection and compositing steps of a session.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Well-known list keys
const (
	KeyCaptured = "photoboothPhotos"
	KeySelected = "selectedPhotos"
)

// PhotoStore is durable key to ordered-reference-list storage scoped to a
// session. A missing list reads as empty.
type PhotoStore interface {
	Get(ctx context.Context, session, key string) ([]string, error)
	Put(ctx context.Context, session, key string, refs []string) error
	Close() error
}

// Memory is an in-process PhotoStore
type Memory struct {
	mu    sync.RWMutex
	lists map[string][]string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{lists: make(map[string][]string)}
}

// Get returns a copy of the stored list
func (m *Memory) Get(ctx context.Context, session, key string) ([]string, error) {
	id, err := ListID(session, key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := m.lists[id]
	out := make([]string, len(refs))
	copy(out, refs)
	return out, nil
}

// Put replaces the stored list
func (m *Memory) Put(ctx context.Context, session, key string, refs []string) error {
	id, err := ListID(session, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]string, len(refs))
	copy(stored, refs)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[id] = stored
	return nil
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}

// ListID validates and joins a session and key
func ListID(session, key string) (string, error) {
	session = strings.TrimSpace(session)
	key = strings.TrimSpace(key)
	if session == "" {
		return "", fmt.Errorf("session is required")
	}
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	return session + "/" + key, nil
}
