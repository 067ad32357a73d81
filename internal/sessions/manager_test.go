package sessions

import (
	"fmt"
	"testing"
)

// TestHistoryIsCopy verifies callers cannot mutate stored turns.
func TestHistoryIsCopy(t *testing.T) {
	s := NewStore(10)
	key := Key("telegram", "42")
	s.Append(key, Turn{User: "hi", Assistant: "hello"})

	h := s.History(key)
	h[0].Assistant = "tampered"

	if got := s.History(key)[0].Assistant; got != "hello" {
		t.Errorf("stored turn changed: got %q", got)
	}
}

// TestAppendEviction verifies oldest-first eviction at the bound.
func TestAppendEviction(t *testing.T) {
	s := NewStore(3)
	key := Key("discord", "u1")

	for i := 1; i <= 5; i++ {
		s.Append(key, Turn{User: fmt.Sprintf("msg %d", i), Assistant: "ok"})
	}

	h := s.History(key)
	if len(h) != 3 {
		t.Fatalf("len: got %d, want 3", len(h))
	}
	if h[0].User != "msg 3" || h[2].User != "msg 5" {
		t.Errorf("eviction order wrong: first=%q last=%q", h[0].User, h[2].User)
	}
}

// TestSessionsAreIsolated verifies different channel/user pairs never share history.
func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore(10)
	s.Append(Key("telegram", "1"), Turn{User: "a", Assistant: "x"})
	s.Append(Key("telegram", "2"), Turn{User: "b", Assistant: "y"})
	s.Append(Key("discord", "1"), Turn{User: "c", Assistant: "z"})

	if s.Len(Key("telegram", "1")) != 1 || s.Len(Key("telegram", "2")) != 1 || s.Len(Key("discord", "1")) != 1 {
		t.Error("sessions bleed into each other")
	}
	if s.History(Key("telegram", "1"))[0].User != "a" {
		t.Error("wrong turn in session")
	}
}

// TestReset clears only the targeted session.
func TestReset(t *testing.T) {
	s := NewStore(10)
	s.Append(Key("telegram", "1"), Turn{User: "a"})
	s.Append(Key("telegram", "2"), Turn{User: "b"})

	s.Reset(Key("telegram", "1"))
	if s.Len(Key("telegram", "1")) != 0 {
		t.Error("reset session should be empty")
	}
	if s.Len(Key("telegram", "2")) != 1 {
		t.Error("other session should be untouched")
	}
}
