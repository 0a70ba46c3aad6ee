package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []session.Event
}

func (c *collector) handle(_ context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func startRouter(t *testing.T, handlers map[string]HandlerFunc) *Router {
	t.Helper()
	r, err := NewRouter(redisstream.DefaultSettings())
	require.NoError(t, err)
	for name, h := range handlers {
		require.NoError(t, r.AddHandler(name, h))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = r.Close()
		<-done
	})

	select {
	case <-r.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
	return r
}

func TestRouter_FansOutToEveryHandler(t *testing.T) {
	a, b := &collector{}, &collector{}
	r := startRouter(t, map[string]HandlerFunc{"a": a.handle, "b": b.handle})

	err := r.PublishEvent(context.Background(), session.Event{
		Type:         session.EventConnectivityChanged,
		SessionID:    "s1",
		Connectivity: session.ConnectivityOnline,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, 5*time.Second, 10*time.Millisecond)
	a.mu.Lock()
	defer a.mu.Unlock()
	require.Equal(t, session.ConnectivityOnline, a.events[0].Connectivity)
	require.Equal(t, "s1", a.events[0].SessionID)
}

func TestRouter_AsSessionSink(t *testing.T) {
	c := &collector{}
	r := startRouter(t, map[string]HandlerFunc{"journal": c.handle})

	s := session.New(nil, session.WithSink(r))
	q := s.Begin(context.Background(), "hello")
	require.NotNil(t, q)

	require.Eventually(t, func() bool { return c.len() == 2 }, 5*time.Second, 10*time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	var sawUser bool
	for _, ev := range c.events {
		if ev.Type == session.EventMessageAppended {
			require.NotNil(t, ev.Message)
			require.Equal(t, "hello", ev.Message.Content)
			sawUser = true
		}
	}
	require.True(t, sawUser)
}

func TestDecodeEvent_RejectsGarbage(t *testing.T) {
	_, err := DecodeEvent(message.NewMessage("1", []byte("nope")))
	require.Error(t, err)
	_, err = DecodeEvent(message.NewMessage("2", []byte(`{"session_id":"x"}`)))
	require.Error(t, err)

	ev, err := DecodeEvent(message.NewMessage("3", []byte(`{"type":"query-started","session_id":"x"}`)))
	require.NoError(t, err)
	require.Equal(t, session.EventQueryStarted, ev.Type)
}

func TestRouter_DrainWaitsForHandlers(t *testing.T) {
	release := make(chan struct{})
	c := &collector{}
	slow := func(ctx context.Context, ev session.Event) error {
		<-release
		return c.handle(ctx, ev)
	}
	r := startRouter(t, map[string]HandlerFunc{"slow": slow, "fast": (&collector{}).handle})

	for i := 0; i < 3; i++ {
		require.NoError(t, r.PublishEvent(context.Background(), session.Event{Type: session.EventQueryStarted, SessionID: "s1"}))
	}

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, r.Drain(short))

	close(release)
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, r.Drain(ctx))
	require.Equal(t, 3, c.len())
}
