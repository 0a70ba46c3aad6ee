package chatstore

import (
	"context"

	"github.com/go-go-golems/helpdesk/pkg/session"
)

// SessionRecord captures journal metadata for one chat session.
type SessionRecord struct {
	SessionID      string `json:"session_id" yaml:"session_id"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	StartedAtMs    int64  `json:"started_at_ms" yaml:"started_at_ms"`
	LastActivityMs int64  `json:"last_activity_ms" yaml:"last_activity_ms"`
	Connectivity   string `json:"connectivity" yaml:"connectivity"`
	LastError      string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	MessageCount   int    `json:"message_count" yaml:"message_count"`
}

// TranscriptStore is the append-only audit journal of chat sessions.
//
// It is write-mostly: sessions never read their history back from it.
// Messages are keyed by (session, message id) so replayed events are idempotent,
// and listed in message-id order, which is creation order.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, sessionID string, msg session.Message) error
	UpsertSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, bool, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	ListMessages(ctx context.Context, sessionID string) ([]session.Message, error)
	Close() error
}
