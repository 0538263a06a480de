package stac

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// CursorStore stores pagination cursors server-side. It is used when a
// cursor's sort-key tuple is too large to travel inline in a URL.
type CursorStore interface {
	// Store saves a cursor and returns a short token to reference it.
	Store(cursor *Cursor) (token string, err error)

	// Retrieve gets a cursor by its token.
	Retrieve(token string) (*Cursor, error)

	// Delete removes a cursor.
	Delete(token string) error
}

// ErrCursorNotFound is returned for unknown or expired cursor tokens.
var ErrCursorNotFound = errors.New("cursor not found")

// cursorEntry holds a cursor with its expiration time.
type cursorEntry struct {
	cursor    *Cursor
	expiresAt time.Time
}

// MemoryCursorStore implements CursorStore with an in-memory TTL map. It is
// suitable for single-instance deployments; distributed deployments should
// back tokens with shared storage.
type MemoryCursorStore struct {
	mu       sync.RWMutex
	cursors  map[string]cursorEntry
	ttl      time.Duration
	stopChan chan struct{}
}

// NewMemoryCursorStore creates an in-memory cursor store. ttl bounds how long
// an abandoned search session can resume; cleanupInterval is how often
// expired entries are swept.
func NewMemoryCursorStore(ttl, cleanupInterval time.Duration) *MemoryCursorStore {
	store := &MemoryCursorStore{
		cursors:  make(map[string]cursorEntry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	go store.cleanupLoop(cleanupInterval)
	return store
}

// Store saves a cursor and returns a short token.
func (s *MemoryCursorStore) Store(cursor *Cursor) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[token] = cursorEntry{
		cursor:    cursor,
		expiresAt: time.Now().Add(s.ttl),
	}
	return token, nil
}

// Retrieve gets a cursor by its token.
func (s *MemoryCursorStore) Retrieve(token string) (*Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.cursors[token]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil, ErrCursorNotFound
	}
	return entry.cursor, nil
}

// Delete removes a cursor by its token.
func (s *MemoryCursorStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, token)
	return nil
}

// Stop stops the background cleanup goroutine.
func (s *MemoryCursorStore) Stop() {
	close(s.stopChan)
}

func (s *MemoryCursorStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MemoryCursorStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for token, entry := range s.cursors {
		if now.After(entry.expiresAt) {
			delete(s.cursors, token)
		}
	}
}

// generateToken creates a cryptographically secure random token.
func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
