// Package conversation holds the message history and token accounting of a chat session.
package conversation

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DefaultSystemPrompt is the persona used at startup and by the "new" command.
const DefaultSystemPrompt = "You are Io, a friendly and helpful assistant. Answer clearly and concisely."

// Role is the role for a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is one entry of the transcript sent to the completion endpoint.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the ordered transcript. The first message is always the system prompt.
type History []Message

// Append returns a new history with one message added at the tail.
// The receiver is left untouched.
func (h History) Append(role Role, content string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, Message{Role: role, Content: content})
}

// SystemPrompt returns the content of the leading system message, if any.
func (h History) SystemPrompt() string {
	if len(h) == 0 || h[0].Role != RoleSystem {
		return ""
	}
	return h[0].Content
}

// Session is the per-run state: the transcript plus the cumulative token count.
type Session struct {
	ID         string
	History    History
	TokenCount int64
	StartedAt  time.Time
}

// StartSession returns a session whose history is the single system message.
func StartSession(systemPrompt string) Session {
	return Session{
		ID:        uuid.NewString(),
		History:   History{{Role: RoleSystem, Content: systemPrompt}},
		StartedAt: time.Now().UTC(),
	}
}

// Append returns a copy of s with one message appended to its history.
func (s Session) Append(role Role, content string) Session {
	s.History = s.History.Append(role, content)
	return s
}

// AddUsage returns a copy of s with tokens added to TokenCount.
// Negative input is ignored and the sum saturates at math.MaxInt64.
func (s Session) AddUsage(tokens int64) Session {
	if tokens <= 0 {
		return s
	}
	if s.TokenCount > math.MaxInt64-tokens {
		s.TokenCount = math.MaxInt64
		return s
	}
	s.TokenCount += tokens
	return s
}
