package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/pkg/errors"
)

const (
	replPrompt         = "> "
	replContinuePrompt = ". "
)

// LineREPL is the plain stdin/stdout front end used when no terminal is attached.
//
// A line ending in a backslash continues the message on the next line. The commands
// /health and /quit re-probe the backend and leave the loop.
type LineREPL struct {
	session *session.Session
	title   string
	in      io.Reader
	out     io.Writer
}

func NewLineREPL(s *session.Session, title string, in io.Reader, out io.Writer) *LineREPL {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return &LineREPL{session: s, title: title, in: in, out: out}
}

func (r *LineREPL) Run(ctx context.Context) error {
	r.session.Initialize(ctx)

	state := r.session.Snapshot()
	r.printf("%s [%s]\n\n", r.title, connectivityLabel(state.Connectivity))
	for _, m := range state.Messages {
		r.printMessage(m)
	}

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending []string
	r.printf("%s", replPrompt)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()

		if strings.HasSuffix(line, `\`) {
			pending = append(pending, strings.TrimSuffix(line, `\`))
			r.session.SetDraft(strings.Join(pending, "\n"))
			r.printf("%s", replContinuePrompt)
			continue
		}
		pending = append(pending, line)
		text := strings.Join(pending, "\n")
		pending = nil

		switch strings.TrimSpace(text) {
		case "/quit", "/exit":
			return nil
		case "/health":
			r.session.CheckConnectivity(ctx)
			r.printf("%s\n", connectivityLabel(r.session.Snapshot().Connectivity))
			r.printf("%s", replPrompt)
			continue
		}

		q := r.session.Begin(ctx, text)
		if q != nil {
			r.printf("Thinking...\n")
			r.printMessage(q.Run(ctx))
		}
		r.printf("%s", replPrompt)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read input")
	}
	r.printf("\n")
	return nil
}

func (r *LineREPL) printMessage(m session.Message) {
	label := "Assistant"
	if m.Role == session.RoleUser {
		label = "You"
	}
	r.printf("%s: %s\n", label, m.Content)
	if m.Role == session.RoleAssistant {
		if ctx := FormatContext(m.ContextSnippet); ctx != "" {
			r.printf("  %s\n", ctx)
		}
	}
	r.printf("  %s\n\n", FormatFooter(m))
}

func (r *LineREPL) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func connectivityLabel(c session.Connectivity) string {
	switch c {
	case session.ConnectivityOnline:
		return "Online"
	case session.ConnectivityOffline:
		return "Offline"
	default:
		return "Checking..."
	}
}
