package chatrunner

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/metrics"
	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/go-go-golems/helpdesk/pkg/stub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStubClient(t *testing.T) (*helpdesk.Client, *stub.Server) {
	t.Helper()
	srv := stub.NewServer(stub.DefaultFAQ(), zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c, err := helpdesk.NewClient(ts.URL)
	require.NoError(t, err)
	return c, srv
}

func TestBuild_Validation(t *testing.T) {
	_, err := NewChatBuilder().Build()
	require.ErrorContains(t, err, "backend is required")

	c, _ := newStubClient(t)
	_, err = NewChatBuilder().WithBackend(c).WithMode(RunModeBlocking).Build()
	require.ErrorContains(t, err, "question is required")

	_, err = NewChatBuilder().WithBackend(c).WithMode("batch").Build()
	require.ErrorContains(t, err, "invalid run mode")

	noop := func(context.Context, session.Event) error { return nil }
	_, err = NewChatBuilder().WithBackend(c).
		WithEventHandler("journal", noop).
		WithEventHandler("journal", noop).
		Build()
	require.ErrorContains(t, err, "duplicate event handler")
}

func TestRun_BlockingJournalsAndMeasures(t *testing.T) {
	c, _ := newStubClient(t)
	store := chatstore.NewInMemoryTranscriptStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var out bytes.Buffer

	cs, err := NewChatBuilder().
		WithBackend(c).
		WithMode(RunModeBlocking).
		WithQuery("How do I connect to the VPN?").
		WithOutputWriter(&out).
		WithEventHandler("journal", chatstore.JournalFunc(store, c.BaseURL())).
		WithEventHandler("metrics", m.HandleEvent).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())

	text := out.String()
	assert.Contains(t, text, "Make sure the VPN client is up to date")
	assert.Contains(t, text, "processing: ")
	assert.Contains(t, text, "context: faq:vpn")

	reply, ok := cs.LastReply()
	require.True(t, ok)
	assert.Equal(t, session.RoleAssistant, reply.Role)

	msgs, err := store.ListMessages(context.Background(), cs.Session().ID())
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, session.Greeting, msgs[0].Content)
	assert.Equal(t, "How do I connect to the VPN?", msgs[1].Content)
	assert.Equal(t, reply.Content, msgs[2].Content)

	rec, found, err := store.GetSession(context.Background(), cs.Session().ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "online", rec.Connectivity)
	assert.Equal(t, c.BaseURL(), rec.BaseURL)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("success")))
}

func TestRun_BlockingFailureIsReported(t *testing.T) {
	c, srv := newStubClient(t)
	srv.SetReady(false)
	var out bytes.Buffer

	cs, err := NewChatBuilder().
		WithBackend(c).
		WithMode(RunModeBlocking).
		WithQuery("printer").
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)

	err = cs.Run()
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.Contains(t, out.String(), "I'm sorry, I encountered an error: Chatbot service is not ready")
	assert.NotContains(t, out.String(), "processing:")
}

func TestRun_InteractiveDeclined(t *testing.T) {
	c, _ := newStubClient(t)
	var out bytes.Buffer
	asked := false

	cs, err := NewChatBuilder().
		WithBackend(c).
		WithMode(RunModeInteractive).
		WithQuery("router keeps dropping").
		WithOutputWriter(&out).
		WithContinuationPrompt(func() (bool, error) {
			asked = true
			return false, nil
		}).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())

	assert.True(t, asked)
	assert.Contains(t, out.String(), "Try restarting your router.")
	assert.Len(t, cs.Session().Snapshot().Messages, 3)
}

func TestRun_InteractiveDeclinedAfterFailure(t *testing.T) {
	c, srv := newStubClient(t)
	srv.SetReady(false)
	var out bytes.Buffer
	chatOpened := false

	cs, err := NewChatBuilder().
		WithBackend(c).
		WithMode(RunModeInteractive).
		WithQuery("printer").
		WithOutputWriter(&out).
		WithContinuationPrompt(func() (bool, error) { return false, nil }).
		WithBeforeChat(func() { chatOpened = true }).
		Build()
	require.NoError(t, err)

	err = cs.Run()
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.Contains(t, out.String(), "I'm sorry, I encountered an error: Chatbot service is not ready")
	assert.False(t, chatOpened)
}

func TestRun_InteractiveContinueOpensChat(t *testing.T) {
	c, _ := newStubClient(t)
	var out bytes.Buffer
	chatOpened := false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cs, err := NewChatBuilder().
		WithContext(ctx).
		WithBackend(c).
		WithMode(RunModeInteractive).
		WithQuery("router keeps dropping").
		WithOutputWriter(&out).
		WithContinuationPrompt(func() (bool, error) { return true, nil }).
		WithBeforeChat(func() { chatOpened = true }).
		WithProgramOptions(tea.WithInput(strings.NewReader("\x03")), tea.WithOutput(io.Discard)).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())

	assert.True(t, chatOpened)
	assert.Contains(t, out.String(), "Try restarting your router.")
}

func TestRun_LineMode(t *testing.T) {
	c, _ := newStubClient(t)
	var out bytes.Buffer
	store := chatstore.NewInMemoryTranscriptStore()

	cs, err := NewChatBuilder().
		WithBackend(c).
		WithMode(RunModeLine).
		WithTitle("Desk").
		WithInput(strings.NewReader("forgot my password\nprinter offline\n")).
		WithOutputWriter(&out).
		WithEventHandler("journal", chatstore.JournalFunc(store, c.BaseURL())).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())

	assert.Contains(t, out.String(), "Desk [Online]")
	assert.Contains(t, out.String(), "self-service portal")
	assert.Contains(t, out.String(), "print spooler")

	msgs, err := store.ListMessages(context.Background(), cs.Session().ID())
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
}

func TestRun_CancelledContext(t *testing.T) {
	c, _ := newStubClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cs, err := NewChatBuilder().
		WithContext(ctx).
		WithBackend(c).
		WithMode(RunModeBlocking).
		WithQuery("vpn").
		WithOutputWriter(&bytes.Buffer{}).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())
}

func TestAskForChatContinuation(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"\n", true},
		{"y\n", true},
		{"N\n", false},
	}
	for _, tc := range cases {
		rw := &fakeTTY{Reader: strings.NewReader(tc.in)}
		got, err := askForChatContinuation(rw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.Contains(t, rw.out.String(), "continue in chat mode")
	}
}

type fakeTTY struct {
	*strings.Reader
	out bytes.Buffer
}

func (f *fakeTTY) Write(p []byte) (int, error) {
	return f.out.Write(p)
}
