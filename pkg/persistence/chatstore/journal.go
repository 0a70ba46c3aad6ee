package chatstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// JournalFunc returns an event handler that copies session events into store.
// Journaling is best-effort: storage errors are logged, never returned, so a broken
// journal cannot stall the chat.
func JournalFunc(store TranscriptStore, baseURL string) func(ctx context.Context, ev session.Event) error {
	var mu sync.Mutex
	lastErrors := map[string]string{}

	return func(ctx context.Context, ev session.Event) error {
		if store == nil || ev.SessionID == "" {
			return nil
		}
		if ctx == nil || ctx.Err() != nil {
			// Watermill message contexts may already be cancelled during shutdown.
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer cancel()
		}

		mu.Lock()
		if ev.Type == session.EventQueryFinished {
			lastErrors[ev.SessionID] = ev.Error
		}
		record := SessionRecord{
			SessionID:      ev.SessionID,
			BaseURL:        baseURL,
			LastActivityMs: ev.Time.UnixMilli(),
			Connectivity:   string(ev.Connectivity),
			LastError:      lastErrors[ev.SessionID],
		}
		mu.Unlock()

		if err := store.UpsertSession(ctx, record); err != nil {
			logJournalError(err, ev)
			return nil
		}
		if ev.Type == session.EventMessageAppended && ev.Message != nil {
			if err := store.AppendMessage(ctx, ev.SessionID, *ev.Message); err != nil {
				logJournalError(err, ev)
			}
		}
		return nil
	}
}

func logJournalError(err error, ev session.Event) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	log.Warn().Err(err).
		Str("component", "journal").
		Str("session_id", ev.SessionID).
		Str("event", string(ev.Type)).
		Msg("transcript journal write failed")
}
