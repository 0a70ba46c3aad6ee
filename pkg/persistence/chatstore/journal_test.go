package chatstore

import (
	"context"
	"testing"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/stretchr/testify/require"
)

type scriptedBackend struct {
	errs []error
}

func (b *scriptedBackend) Health(context.Context) error { return nil }

func (b *scriptedBackend) Chat(context.Context, helpdesk.ChatRequest) (*helpdesk.ChatResponse, error) {
	var err error
	if len(b.errs) > 0 {
		err, b.errs = b.errs[0], b.errs[1:]
	}
	if err != nil {
		return nil, err
	}
	return &helpdesk.ChatResponse{Response: "ok", ContextUsed: "faq:1"}, nil
}

// directSink calls the journal synchronously, standing in for the event router.
type directSink struct {
	f func(context.Context, session.Event) error
}

func (d directSink) PublishEvent(ctx context.Context, ev session.Event) error {
	return d.f(ctx, ev)
}

func TestJournalFunc_RecordsSession(t *testing.T) {
	store := NewInMemoryTranscriptStore()
	backend := &scriptedBackend{errs: []error{
		&helpdesk.ApplicationError{StatusCode: 400, Body: helpdesk.ErrorResponse{Detail: "query too long"}},
		nil,
	}}
	s := session.New(backend, session.WithSink(directSink{f: JournalFunc(store, "http://localhost:8000")}))
	ctx := context.Background()

	s.Initialize(ctx)
	s.Begin(ctx, "first").Run(ctx)

	rec, ok, err := store.GetSession(ctx, s.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "query too long", rec.LastError)
	require.Equal(t, "online", rec.Connectivity)
	require.Equal(t, "http://localhost:8000", rec.BaseURL)

	s.Begin(ctx, "second").Run(ctx)
	rec, _, err = store.GetSession(ctx, s.ID())
	require.NoError(t, err)
	require.Empty(t, rec.LastError)
	require.Equal(t, 5, rec.MessageCount)

	msgs, err := store.ListMessages(ctx, s.ID())
	require.NoError(t, err)
	require.Equal(t, s.Snapshot().Messages, msgs)
}

func TestJournalFunc_IgnoresAnonymousEvents(t *testing.T) {
	store := NewInMemoryTranscriptStore()
	f := JournalFunc(store, "")
	require.NoError(t, f(context.Background(), session.Event{Type: session.EventQueryStarted}))
	list, err := store.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, list)
}
