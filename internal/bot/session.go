package bot

import (
	"sync"
	"time"

	"coinwatch/internal/storage"
)

// Mode is the step of a multi-message conversation.
type Mode string

const (
	ModeIdle Mode = ""
	// ModeAwaitTarget waits for the USD target of a pending watch.
	ModeAwaitTarget Mode = "await_target"
)

// Session is the ephemeral per-chat conversation state.
type Session struct {
	Mode      Mode
	Symbol    string
	AssetRef  string
	Direction storage.Direction
	touched   time.Time
}

// Sessions keeps one Session per chat, dropping those idle longer than ttl.
type Sessions struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	byChat map[int64]Session
}

// NewSessions constructs an in-memory session table.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Sessions{ttl: ttl, now: time.Now, byChat: make(map[int64]Session)}
}

// Get returns the chat's live session.
func (s *Sessions) Get(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byChat[chatID]
	if !ok {
		return Session{}, false
	}
	if s.now().Sub(sess.touched) > s.ttl {
		delete(s.byChat, chatID)
		return Session{}, false
	}
	return sess, true
}

// Set replaces the chat's session.
func (s *Sessions) Set(chatID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.touched = s.now()
	s.byChat[chatID] = sess
	s.sweepLocked()
}

// Clear forgets the chat's session.
func (s *Sessions) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byChat, chatID)
}

// Len counts stored sessions, expired ones included until swept.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byChat)
}

func (s *Sessions) sweepLocked() {
	now := s.now()
	for id, sess := range s.byChat {
		if now.Sub(sess.touched) > s.ttl {
			delete(s.byChat, id)
		}
	}
}
