package chatstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/pkg/errors"
)

// InMemoryTranscriptStore mirrors the SQLite store's merge and ordering rules.
type InMemoryTranscriptStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	messages map[string]map[string]session.Message
}

var _ TranscriptStore = &InMemoryTranscriptStore{}

func NewInMemoryTranscriptStore() *InMemoryTranscriptStore {
	return &InMemoryTranscriptStore{
		sessions: map[string]SessionRecord{},
		messages: map[string]map[string]session.Message{},
	}
}

func (s *InMemoryTranscriptStore) Close() error { return nil }

func (s *InMemoryTranscriptStore) AppendMessage(_ context.Context, sessionID string, msg session.Message) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("in-memory transcript store: sessionID is empty")
	}
	if msg.ID == "" {
		return errors.New("in-memory transcript store: message id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.messages[sessionID]
	if !ok {
		msgs = map[string]session.Message{}
		s.messages[sessionID] = msgs
	}
	if _, exists := msgs[msg.ID]; !exists {
		msgs[msg.ID] = msg
	}
	return nil
}

func (s *InMemoryTranscriptStore) UpsertSession(_ context.Context, record SessionRecord) error {
	record = normalizeSessionRecord(record, time.Now().UnixMilli())
	if record.SessionID == "" {
		return errors.New("in-memory transcript store: sessionID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.sessions[record.SessionID]
	if !ok {
		s.sessions[record.SessionID] = record
		return nil
	}
	if record.BaseURL == "" {
		record.BaseURL = prev.BaseURL
	}
	if prev.StartedAtMs < record.StartedAtMs {
		record.StartedAtMs = prev.StartedAtMs
	}
	if prev.LastActivityMs > record.LastActivityMs {
		record.LastActivityMs = prev.LastActivityMs
	}
	if record.Connectivity == "" {
		record.Connectivity = prev.Connectivity
	}
	s.sessions[record.SessionID] = record
	return nil
}

func (s *InMemoryTranscriptStore) GetSession(_ context.Context, sessionID string) (SessionRecord, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionRecord{}, false, errors.New("in-memory transcript store: sessionID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, false, nil
	}
	r.MessageCount = len(s.messages[sessionID])
	return r, true, nil
}

func (s *InMemoryTranscriptStore) ListSessions(_ context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]SessionRecord, 0, len(s.sessions))
	for id, r := range s.sessions {
		r.MessageCount = len(s.messages[id])
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].LastActivityMs != ret[j].LastActivityMs {
			return ret[i].LastActivityMs > ret[j].LastActivityMs
		}
		return ret[i].SessionID < ret[j].SessionID
	})
	if len(ret) > limit {
		ret = ret[:limit]
	}
	return ret, nil
}

func (s *InMemoryTranscriptStore) ListMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("in-memory transcript store: sessionID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]session.Message, 0, len(s.messages[sessionID]))
	for _, m := range s.messages[sessionID] {
		ret = append(ret, m)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}
