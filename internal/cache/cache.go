// Package cache provides a small in-memory key-value store with TTL
// semantics, plus the key-derivation helpers for the response and chunk
// caches.
//
// Writers overwrite blindly: cached values are derived purely from their
// inputs and are idempotent to recompute, so last-writer-wins on a race is
// correct. A missing or expired key reads as absent, never as an error.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// purgeEvery bounds how many writes may pass between full sweeps of
// expired entries. Reads drop expired entries lazily; the sweep keeps the
// map from accumulating keys that are never read again.
const purgeEvery = 64

type entry[V any] struct {
	value   V
	expires time.Time
}

// Store is a TTL-bounded in-memory map. The zero value is not usable;
// construct with New. Safe for concurrent use.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
	writes  int
}

// New creates an empty Store using the real clock.
func New[V any]() *Store[V] {
	return NewWithClock[V](time.Now)
}

// NewWithClock creates a Store with an injectable clock, for tests that
// need to step time past a TTL without sleeping.
func NewWithClock[V any](now func() time.Time) *Store[V] {
	return &Store[V]{
		entries: make(map[string]entry[V]),
		now:     now,
	}
}

// Set stores value under key for ttl, overwriting any previous entry.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry[V]{value: value, expires: s.now().Add(ttl)}

	s.writes++
	if s.writes >= purgeEvery {
		s.writes = 0
		s.purgeLocked()
	}
}

// Get returns the live value for key. An expired entry is removed and
// reported as absent.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.now().After(e.expires) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of stored entries, expired ones included until
// the next sweep touches them.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[V]) purgeLocked() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
}

// historyWindow is how many trailing conversation messages participate in
// the response cache key. Older turns rarely change the answer and would
// defeat caching entirely.
const historyWindow = 4

// ResponseKey derives the response cache key from a question and the
// trailing window of conversation history.
func ResponseKey(question string, history []string) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	sum := sha256.Sum256([]byte(question + "\x00" + strings.Join(history, "\x00")))
	return "resp_" + hex.EncodeToString(sum[:])
}

// ChunkKey derives the retrieved-chunk cache key from the question alone:
// retrieval does not depend on history once the question is reformulated.
func ChunkKey(question string) string {
	sum := sha256.Sum256([]byte(question))
	return "docs_" + hex.EncodeToString(sum[:])
}
