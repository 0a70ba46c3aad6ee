package chatstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) (*SQLiteTranscriptStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "transcripts.db")
	dsn, err := SQLiteTranscriptDSNForFile(dbPath)
	require.NoError(t, err)
	s, err := NewSQLiteTranscriptStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func sampleMessages() []session.Message {
	base := time.UnixMilli(1_700_000_000_000)
	pt := 1.23
	return []session.Message{
		{ID: "0001", Role: session.RoleAssistant, Content: session.Greeting, CreatedAt: base},
		{ID: "0002", Role: session.RoleUser, Content: "router not working", CreatedAt: base.Add(time.Second)},
		{
			ID:                "0003",
			Role:              session.RoleAssistant,
			Content:           "Try restarting your router.",
			CreatedAt:         base.Add(2 * time.Second),
			ProcessingSeconds: &pt,
			ContextSnippet:    "faq:router-reset",
		},
	}
}

func TestSQLiteTranscriptStore_AppendAndList(t *testing.T) {
	s, dbPath := newSQLiteStore(t)
	ctx := context.Background()

	msgs := sampleMessages()
	// Out-of-order and duplicated appends still list in id order, once.
	for _, i := range []int{2, 0, 1, 2} {
		require.NoError(t, s.AppendMessage(ctx, "s1", msgs[i]))
	}

	got, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	if diff := cmp.Diff(msgs, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.ListMessages(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)

	require.Error(t, s.AppendMessage(ctx, "", msgs[0]))
	require.Error(t, s.AppendMessage(ctx, "s1", session.Message{}))

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestSQLiteTranscriptStore_SessionIndex(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSession(ctx, SessionRecord{
		SessionID:      "s1",
		BaseURL:        "http://localhost:8000",
		StartedAtMs:    100,
		LastActivityMs: 100,
		Connectivity:   "checking",
	}))
	require.NoError(t, s.UpsertSession(ctx, SessionRecord{
		SessionID:      "s1",
		StartedAtMs:    300,
		LastActivityMs: 300,
		LastError:      "query too long",
	}))
	require.NoError(t, s.UpsertSession(ctx, SessionRecord{SessionID: "s2", StartedAtMs: 200, LastActivityMs: 200}))
	require.NoError(t, s.AppendMessage(ctx, "s1", sampleMessages()[0]))

	rec, ok, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "http://localhost:8000", rec.BaseURL)
	require.Equal(t, int64(100), rec.StartedAtMs)
	require.Equal(t, int64(300), rec.LastActivityMs)
	require.Equal(t, "checking", rec.Connectivity)
	require.Equal(t, "query too long", rec.LastError)
	require.Equal(t, 1, rec.MessageCount)

	_, ok, err = s.GetSession(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "s1", list[0].SessionID)
	require.Equal(t, "s2", list[1].SessionID)

	limited, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSQLiteTranscriptStore_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteTranscriptStore("")
	require.Error(t, err)
	_, err = SQLiteTranscriptDSNForFile("")
	require.Error(t, err)
}
