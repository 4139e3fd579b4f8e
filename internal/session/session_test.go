package session

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendAndHistory(t *testing.T) {
	s := NewStore()
	id := NewID()

	s.Append(id, RoleUser, "what is the bid opening time")
	s.Append(id, RoleAssistant, "12:30:00")

	h := s.History(id)
	if len(h) != 2 {
		t.Fatalf("History returned %d messages, want 2", len(h))
	}
	if h[0].Role != RoleUser || h[1].Role != RoleAssistant {
		t.Errorf("roles = %q, %q", h[0].Role, h[1].Role)
	}
}

func TestHistoryWindowBounded(t *testing.T) {
	s := NewStore()
	id := NewID()

	for i := 0; i < maxHistory+10; i++ {
		s.Append(id, RoleUser, fmt.Sprintf("message %d", i))
	}

	h := s.History(id)
	if len(h) != maxHistory {
		t.Fatalf("History returned %d messages, want %d", len(h), maxHistory)
	}
	if h[len(h)-1].Content != fmt.Sprintf("message %d", maxHistory+9) {
		t.Errorf("window dropped the newest message")
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewStore()
	id := NewID()
	s.Append(id, RoleUser, "original")

	h := s.History(id)
	h[0].Content = "mutated"

	if s.History(id)[0].Content != "original" {
		t.Errorf("caller mutation leaked into the store")
	}
}

func TestPendingConsumedOnce(t *testing.T) {
	s := NewStore()
	id := NewID()

	s.SetPending(id, "abyss")

	q, ok := s.TakePending(id)
	if !ok || q != "abyss" {
		t.Fatalf("TakePending = %q, %v; want %q, true", q, ok, "abyss")
	}

	if _, ok := s.TakePending(id); ok {
		t.Errorf("TakePending succeeded twice")
	}
}

func TestPendingUnknownSession(t *testing.T) {
	s := NewStore()
	if _, ok := s.TakePending("missing"); ok {
		t.Errorf("TakePending succeeded for an unknown session")
	}
}

func TestAllowEnforcesSpacing(t *testing.T) {
	s := NewStore()
	id := NewID()

	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }

	if !s.Allow(id, 2*time.Second) {
		t.Fatalf("first request was throttled")
	}
	if s.Allow(id, 2*time.Second) {
		t.Errorf("immediate second request was allowed")
	}

	// A throttled retry must not reset the window.
	clock = clock.Add(1500 * time.Millisecond)
	if s.Allow(id, 2*time.Second) {
		t.Errorf("request inside the window was allowed")
	}
	clock = clock.Add(600 * time.Millisecond)
	if !s.Allow(id, 2*time.Second) {
		t.Errorf("request after the window was throttled")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore()
	a, b := NewID(), NewID()

	s.Append(a, RoleUser, "hello from a")
	s.SetPending(b, "hello from b")

	if len(s.History(b)) != 0 {
		t.Errorf("session b has session a's history")
	}
	if _, ok := s.TakePending(a); ok {
		t.Errorf("session a has session b's pending marker")
	}
}
