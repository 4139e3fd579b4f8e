// Package session tracks per-conversation state: the bounded message
// history fed back into generation, the pending-disambiguation marker, and
// the last-request timestamp used for throttling.
//
// State is held in memory. A restart drops all conversations; that is the
// accepted durability level for this service.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// maxHistory bounds the retained window per session. Older turns are
// discarded; generation never sees further back than this anyway.
const maxHistory = 20

// session is the per-conversation record. Pending holds the original
// question while a disambiguation prompt is outstanding.
type session struct {
	history     []Message
	pending     string
	hasPending  bool
	lastRequest time.Time
}

// Store holds all live sessions. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

func (s *Store) get(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

// Append records one turn at the end of the session's history, trimming
// the window from the front when it overflows.
func (s *Store) Append(id, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.history = append(sess.history, Message{Role: role, Content: content, At: s.now()})
	if len(sess.history) > maxHistory {
		sess.history = sess.history[len(sess.history)-maxHistory:]
	}
}

// History returns a copy of the session's message window.
func (s *Store) History(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(sess.history))
	copy(out, sess.history)
	return out
}

// SetPending marks the session as awaiting a disambiguation choice for the
// given original question.
func (s *Store) SetPending(id, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.pending = question
	sess.hasPending = true
}

// TakePending atomically consumes the pending disambiguation marker,
// returning the original question it was set for. The marker is cleared
// whether or not the caller ends up honoring it: a user who ignores the
// prompt gets a fresh conversation turn, not a stuck state.
func (s *Store) TakePending(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !sess.hasPending {
		return "", false
	}
	q := sess.pending
	sess.pending = ""
	sess.hasPending = false
	return q, true
}

// Allow reports whether a request for the session may proceed under a
// minimum spacing between consecutive requests. The timestamp advances only
// on success, so a throttled client cannot push its own window forward by
// retrying early.
func (s *Store) Allow(id string, minSpacing time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	now := s.now()
	if !sess.lastRequest.IsZero() && now.Sub(sess.lastRequest) < minSpacing {
		return false
	}
	sess.lastRequest = now
	return true
}
