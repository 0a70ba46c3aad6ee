package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Greeting opens every session.
const Greeting = "Hello! I'm your AI helpdesk support assistant. How can I help you today?"

// Message is one entry in the conversation log.
type Message struct {
	ID                string    `json:"id" yaml:"id"`
	Role              Role      `json:"role" yaml:"role"`
	Content           string    `json:"content" yaml:"content"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	ProcessingSeconds *float64  `json:"processing_seconds,omitempty" yaml:"processing_seconds,omitempty"`
	ContextSnippet    string    `json:"context_snippet,omitempty" yaml:"context_snippet,omitempty"`
}

func newMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
}

// newMessageID returns a time-ordered id so that later messages sort after earlier ones.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// errorReply is the inline transcript entry for a failed query.
func errorReply(msg string) string {
	return fmt.Sprintf("I'm sorry, I encountered an error: %s. Please try again.", msg)
}

type Connectivity string

const (
	ConnectivityChecking Connectivity = "checking"
	ConnectivityOnline   Connectivity = "online"
	ConnectivityOffline  Connectivity = "offline"
)

// State is a point-in-time copy of a session.
type State struct {
	SessionID     string
	Messages      []Message
	DraftInput    string
	AwaitingReply bool
	LastError     string
	Connectivity  Connectivity
}

// LastAssistant returns the newest assistant message, if any.
func (s State) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}
