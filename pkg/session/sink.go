package session

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventMessageAppended     EventType = "message-appended"
	EventConnectivityChanged EventType = "connectivity-changed"
	EventQueryStarted        EventType = "query-started"
	EventQueryFinished       EventType = "query-finished"
)

// Event announces a state change. Renderers re-read a State snapshot on receipt;
// the payload carries just enough for journals and metrics.
type Event struct {
	Type         EventType    `json:"type"`
	SessionID    string       `json:"session_id"`
	Time         time.Time    `json:"time"`
	Message      *Message     `json:"message,omitempty"`
	Connectivity Connectivity `json:"connectivity,omitempty"`
	Outcome      string       `json:"outcome,omitempty"`
	Error        string       `json:"error,omitempty"`
	ElapsedMs    int64        `json:"elapsed_ms,omitempty"`
}

// EventSink receives session events. Publish must not call back into the session.
type EventSink interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// NullSink drops everything.
type NullSink struct{}

func (NullSink) PublishEvent(context.Context, Event) error { return nil }

// RecordingSink keeps events in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingSink) PublishEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in order.
func (r *RecordingSink) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		ret = append(ret, ev.Type)
	}
	return ret
}
