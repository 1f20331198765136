package agent

import (
	"sync"

	"github.com/draftworks/agentsmith/internal/provider"
)

// DefaultMemoryLimit bounds how many messages a session retains.
const DefaultMemoryLimit = 40

// SessionMemory keeps per-session conversation history for a runnable agent,
// so multi-turn context survives across separate Invoke calls against the
// same session id. Sessions are independent; the oldest messages are dropped
// once a session exceeds its limit.
type SessionMemory struct {
	mu       sync.Mutex
	sessions map[string][]provider.Message
	limit    int
}

// NewSessionMemory creates session memory with the given message limit per
// session (<=0 means DefaultMemoryLimit).
func NewSessionMemory(limit int) *SessionMemory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &SessionMemory{
		sessions: make(map[string][]provider.Message),
		limit:    limit,
	}
}

// History returns a copy of the session's retained messages.
func (m *SessionMemory) History(sessionID string) []provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.sessions[sessionID]
	out := make([]provider.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Append records messages for a session, trimming the oldest beyond the
// limit. Trimming keeps whole messages only; no mid-message truncation.
func (m *SessionMemory) Append(sessionID string, msgs ...provider.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(m.sessions[sessionID], msgs...)
	if len(all) > m.limit {
		all = all[len(all)-m.limit:]
	}
	m.sessions[sessionID] = all
}

// Clear drops one session's history.
func (m *SessionMemory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
