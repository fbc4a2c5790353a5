// ABOUTME: Per-conversation session: identity state machine and message history
// ABOUTME: Created on connect, discarded on disconnect, never persisted

package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role
	Content string
}

// State is the identity state of a session.
type State int

const (
	// AwaitingIdentity is the initial state: no account is bound.
	AwaitingIdentity State = iota
	// Identified means an account name registered in this session is bound.
	Identified
)

func (s State) String() string {
	switch s {
	case AwaitingIdentity:
		return "awaiting_identity"
	case Identified:
		return "identified"
	default:
		return "unknown"
	}
}

// DefaultHistoryLimit bounds the message history when no limit is given.
const DefaultHistoryLimit = 50

// Session holds the state of one conversation.
// It is not safe for concurrent use; the connection that owns it handles
// one message at a time.
type Session struct {
	ID        string
	Room      string
	CreatedAt time.Time

	state    State
	identity string
	history  []Message
	limit    int
}

// Option configures a Session.
type Option func(*Session)

// WithHistoryLimit caps the number of retained messages. Oldest go first.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithGreeting seeds the history with an assistant message.
func WithGreeting(greeting string) Option {
	return func(s *Session) {
		if greeting != "" {
			s.Append(RoleAssistant, greeting)
		}
	}
}

// New creates a session in the AwaitingIdentity state.
func New(room string, opts ...Option) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		Room:      room,
		CreatedAt: time.Now(),
		limit:     DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current identity state.
func (s *Session) State() State {
	return s.state
}

// Identity returns the bound account name and whether one is bound.
func (s *Session) Identity() (string, bool) {
	return s.identity, s.state == Identified
}

// Bind makes name the session's identity. A later registration rebinds.
func (s *Session) Bind(name string) {
	s.identity = name
	s.state = Identified
}

// Demote clears the identity and returns to AwaitingIdentity.
func (s *Session) Demote() {
	s.identity = ""
	s.state = AwaitingIdentity
}

// Append records a message, dropping the oldest beyond the history limit.
func (s *Session) Append(role Role, content string) {
	s.history = append(s.history, Message{Role: role, Content: content})
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns a copy of the message history, oldest first.
func (s *Session) History() []Message {
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}
