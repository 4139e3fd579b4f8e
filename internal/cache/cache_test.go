package cache

import (
	"fmt"
	"testing"
	"time"
)

// stepClock is a manually advanced clock for TTL tests.
type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStoreRoundTrip(t *testing.T) {
	clock := &stepClock{t: time.Unix(1700000000, 0)}
	s := NewWithClock[string](clock.now)

	s.Set("k", "answer", 5*time.Minute)

	got, ok := s.Get("k")
	if !ok || got != "answer" {
		t.Fatalf("Get = %q, %v; want %q, true", got, ok, "answer")
	}
}

func TestStoreExpiry(t *testing.T) {
	clock := &stepClock{t: time.Unix(1700000000, 0)}
	s := NewWithClock[string](clock.now)

	s.Set("k", "answer", 5*time.Minute)
	clock.advance(5*time.Minute + time.Second)

	if _, ok := s.Get("k"); ok {
		t.Errorf("Get returned a value after TTL expiry")
	}
	if s.Len() != 0 {
		t.Errorf("expired entry not removed on read")
	}
}

func TestStoreMissingKey(t *testing.T) {
	s := New[int]()
	if v, ok := s.Get("nope"); ok || v != 0 {
		t.Errorf("Get on missing key = %v, %v; want zero, false", v, ok)
	}
}

func TestStoreOverwrite(t *testing.T) {
	s := New[string]()
	s.Set("k", "old", time.Minute)
	s.Set("k", "new", time.Minute)

	if got, _ := s.Get("k"); got != "new" {
		t.Errorf("Get after overwrite = %q, want %q", got, "new")
	}
}

func TestStoreDelete(t *testing.T) {
	s := New[string]()
	s.Set("k", "v", time.Minute)
	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Errorf("Get returned a value after Delete")
	}
}

func TestStoreSweepRemovesExpired(t *testing.T) {
	clock := &stepClock{t: time.Unix(1700000000, 0)}
	s := NewWithClock[int](clock.now)

	for i := 0; i < 10; i++ {
		s.Set(fmt.Sprintf("old%d", i), i, time.Minute)
	}
	clock.advance(2 * time.Minute)

	// Enough writes to trigger the periodic sweep.
	for i := 0; i < purgeEvery; i++ {
		s.Set(fmt.Sprintf("new%d", i), i, time.Minute)
	}

	if got := s.Len(); got != purgeEvery {
		t.Errorf("Len after sweep = %d, want %d", got, purgeEvery)
	}
}

func TestResponseKeyUsesTrailingHistory(t *testing.T) {
	history := []string{"h1", "h2", "h3", "h4", "h5", "h6"}

	full := ResponseKey("question", history)
	window := ResponseKey("question", history[2:])
	if full != window {
		t.Errorf("key should depend only on the trailing %d messages", historyWindow)
	}

	other := ResponseKey("question", []string{"different", "history", "entirely", "here"})
	if full == other {
		t.Errorf("different history windows produced the same key")
	}
}

func TestResponseKeyDistinguishesQuestions(t *testing.T) {
	if ResponseKey("a", nil) == ResponseKey("b", nil) {
		t.Errorf("different questions produced the same response key")
	}
}

func TestChunkKeyIgnoresHistory(t *testing.T) {
	if ChunkKey("question") != ChunkKey("question") {
		t.Errorf("chunk key not deterministic")
	}
	if ChunkKey("a") == ChunkKey("b") {
		t.Errorf("different questions produced the same chunk key")
	}
}
