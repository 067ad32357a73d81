// Package sessions keeps per-conversation history in memory.
// History does not survive restarts; the memory backend is the durable store.
package sessions

import (
	"sync"
	"time"
)

// Turn is one completed user/assistant exchange.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// Key builds the session identity for a channel conversation.
//
//	{channel}:{userID}
func Key(channel, userID string) string {
	return channel + ":" + userID
}

// Store holds bounded conversation histories keyed by session.
type Store struct {
	mu       sync.RWMutex
	maxTurns int
	sessions map[string][]Turn
}

// NewStore creates a store keeping at most maxTurns per session.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Store{
		maxTurns: maxTurns,
		sessions: make(map[string][]Turn),
	}
}

// History returns a copy of the session's turns, oldest first.
func (s *Store) History(key string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.sessions[key]
	if !ok {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Append records a completed turn, evicting the oldest when the session
// exceeds its bound.
func (s *Store) Append(key string, turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[key], turn)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.sessions[key] = turns
}

// Reset clears a session's history.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Len returns the number of turns stored for a session.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[key])
}
