package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineREPL_Conversation(t *testing.T) {
	b := &fakeBackend{chatResp: answer("Reset your VPN client.", 0.42)}
	s := session.New(b)
	var out bytes.Buffer

	repl := NewLineREPL(s, "", strings.NewReader("my vpn\n\n/quit\nignored\n"), &out)
	require.NoError(t, repl.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "InfoTech Wizard [Online]")
	assert.Contains(t, text, "Assistant: "+session.Greeting)
	assert.Contains(t, text, "Thinking...")
	assert.Contains(t, text, "Assistant: Reset your VPN client.")
	assert.Contains(t, text, "Context used: VPN guide section 2")
	assert.Contains(t, text, "0.42s")

	assert.Equal(t, []string{"my vpn"}, b.queries)
	assert.Len(t, s.Snapshot().Messages, 3)
}

func TestLineREPL_ContinuationAndHealth(t *testing.T) {
	b := &fakeBackend{chatResp: answer("ok", 0.1)}
	s := session.New(b)
	var out bytes.Buffer

	input := "first line\\\nsecond line\n/health\n"
	require.NoError(t, NewLineREPL(s, "Desk", strings.NewReader(input), &out).Run(context.Background()))

	assert.Equal(t, []string{"first line\nsecond line"}, b.queries)
	assert.Contains(t, out.String(), "Desk [Online]")
	assert.Contains(t, out.String(), "Online\n")
}

func TestLineREPL_Failure(t *testing.T) {
	b := &fakeBackend{healthErr: assert.AnError, chatErr: assert.AnError}
	s := session.New(b)
	var out bytes.Buffer

	require.NoError(t, NewLineREPL(s, "", strings.NewReader("help\n"), &out).Run(context.Background()))

	assert.Contains(t, out.String(), "[Offline]")
	assert.Contains(t, out.String(), "I'm sorry, I encountered an error:")
	assert.NotEmpty(t, s.Snapshot().LastError)
}
