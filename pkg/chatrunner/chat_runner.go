package chatrunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/helpdesk/pkg/events"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/go-go-golems/helpdesk/pkg/ui"
	"github.com/mattn/go-isatty" // Needed for askForChatContinuation
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input" // Needed for askForChatContinuation
	"golang.org/x/sync/errgroup"
)

// RunMode defines the execution mode for the chat session.
type RunMode string

const (
	RunModeChat        RunMode = "chat"
	RunModeInteractive RunMode = "interactive"
	RunModeBlocking    RunMode = "blocking"
	RunModeLine        RunMode = "line"
)

// ErrQueryFailed is returned by blocking runs whose query settled with an error reply.
var ErrQueryFailed = errors.New("helpdesk query failed")

const drainTimeout = 2 * time.Second

type namedHandler struct {
	name string
	f    events.HandlerFunc
}

// ChatSession holds the validated configuration and executes the chat logic.
// It's typically created and run by the ChatBuilder.
type ChatSession struct {
	ctx            context.Context
	session        *session.Session
	router         *events.Router
	ownsRouter     bool
	handlers       []namedHandler
	uiOptions      []ui.ModelOption
	programOptions []tea.ProgramOption
	mode           RunMode
	title          string
	query          string
	input          io.Reader
	outputWriter   io.Writer
	askContinue    func() (bool, error)
	beforeChat     func()

	closeOnce sync.Once
	reply     *session.Message
}

// Session exposes the underlying conversation, e.g. for its id.
func (cs *ChatSession) Session() *session.Session {
	return cs.session
}

// LastReply is the assistant message produced by a blocking run.
func (cs *ChatSession) LastReply() (session.Message, bool) {
	if cs.reply == nil {
		return session.Message{}, false
	}
	return *cs.reply, true
}

// Run executes the chat session based on its configured mode.
func (cs *ChatSession) Run() error {
	switch cs.mode {
	case RunModeChat, RunModeInteractive, RunModeBlocking, RunModeLine:
	default:
		return errors.Errorf("unknown run mode: %v", cs.mode)
	}

	eg, childCtx := errgroup.WithContext(cs.ctx)
	childCtx, cancel := context.WithCancel(childCtx)

	f := func() {
		cancel()
		cs.closeOnce.Do(func() {
			if !cs.ownsRouter {
				return
			}
			log.Debug().Str("component", "chatrunner").Msg("Closing router")
			_ = cs.router.Close()
			log.Debug().Str("component", "chatrunner").Msg("Router closed")
		})
	}

	if err := cs.addHandlers(childCtx); err != nil {
		f()
		return err
	}

	if !cs.router.IsRunning() {
		eg.Go(func() error {
			defer f()
			err := cs.router.Run(childCtx)
			if err != nil && childCtx.Err() != nil {
				log.Debug().Err(err).Str("component", "chatrunner").Msg("Router stopped during shutdown")
				return nil
			}
			return err
		})
	}

	eg.Go(func() error {
		defer f()

		select {
		case <-cs.router.Running():
		case <-childCtx.Done():
			return nil
		}
		log.Debug().Str("component", "chatrunner").Str("mode", string(cs.mode)).Msg("Router running")

		var err error
		switch cs.mode {
		case RunModeChat:
			err = cs.runChatInternal(childCtx)
		case RunModeInteractive:
			err = cs.runInteractiveInternal(childCtx)
		case RunModeBlocking:
			err = cs.runBlockingInternal(childCtx)
		case RunModeLine:
			err = cs.runLineInternal(childCtx)
		}

		drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
		defer cancelDrain()
		if derr := cs.router.Drain(drainCtx); derr != nil {
			log.Warn().Err(derr).Str("component", "chatrunner").Msg("Not every session event reached its handlers")
		}
		return err
	})

	log.Debug().Str("component", "chatrunner").Msg("Waiting for errgroup")
	err := eg.Wait()
	log.Debug().Err(err).Str("component", "chatrunner").Msg("Errgroup finished")

	// Don't return context cancellation errors if the original context was cancelled
	if errors.Is(err, context.Canceled) && cs.ctx.Err() == context.Canceled {
		return nil
	}
	return err
}

func (cs *ChatSession) addHandlers(ctx context.Context) error {
	for _, h := range cs.handlers {
		log.Debug().Str("component", "chatrunner").Str("handler", h.name).Msg("Adding event handler")
		if err := cs.router.AddHandler(h.name, h.f); err != nil {
			return errors.Wrapf(err, "failed to add %s handler", h.name)
		}
	}
	if len(cs.handlers) > 0 && cs.router.IsRunning() {
		if err := cs.router.RunHandlers(ctx); err != nil {
			return errors.Wrap(err, "failed to run router handlers")
		}
	}
	return nil
}

// runChatInternal handles the full-screen UI mode.
func (cs *ChatSession) runChatInternal(ctx context.Context) error {
	options := append([]ui.ModelOption{ui.WithTitle(cs.title)}, cs.uiOptions...)
	model := ui.NewModel(ctx, cs.session, options...)
	p := tea.NewProgram(model, append(cs.programOptions, tea.WithContext(ctx))...)

	log.Debug().Str("component", "chatrunner").Msg("Adding UI event handler")
	if err := cs.router.AddHandler("ui", ui.ForwardFunc(p, cs.session.ID())); err != nil {
		return errors.Wrap(err, "failed to add ui handler")
	}
	if err := cs.router.RunHandlers(ctx); err != nil {
		// Don't wrap context cancelled/closed errors if the context was intentionally cancelled
		if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
			return nil
		}
		return errors.Wrap(err, "failed to run router handlers")
	}

	log.Debug().Str("component", "chatrunner").Msg("Starting Bubble Tea program")
	_, runErr := p.Run()
	log.Debug().Err(runErr).Str("component", "chatrunner").Msg("Bubble Tea program finished")

	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}

// runBlockingInternal asks one question and prints the answer.
func (cs *ChatSession) runBlockingInternal(ctx context.Context) error {
	cs.session.Initialize(ctx)

	q := cs.session.Begin(ctx, cs.query)
	if q == nil {
		return errors.New("a question is required for blocking mode")
	}
	reply := q.Run(ctx)
	cs.reply = &reply

	if ctx.Err() != nil && cs.ctx.Err() != nil {
		log.Debug().Str("component", "chatrunner").Msg("Blocking query cancelled by context")
		return nil
	}

	if err := writeAnswer(cs.outputWriter, reply); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	if lastErr := cs.session.Snapshot().LastError; lastErr != "" {
		return errors.Wrap(ErrQueryFailed, lastErr)
	}
	return nil
}

// runInteractiveInternal handles initial blocking run + optional chat transition.
func (cs *ChatSession) runInteractiveInternal(ctx context.Context) error {
	// 1. Run blocking step first
	log.Debug().Str("component", "chatrunner").Msg("Running initial blocking step for interactive mode")
	queryErr := cs.runBlockingInternal(ctx)
	if queryErr != nil && !errors.Is(queryErr, ErrQueryFailed) {
		return errors.Wrap(queryErr, "error during initial blocking step")
	}
	if ctx.Err() != nil {
		return nil
	}

	// 2. Ask the user, the default prompt needs a TTY
	continueInChat, err := cs.askContinue()
	if err != nil {
		return errors.Wrap(err, "failed to ask for chat continuation")
	}
	if !continueInChat {
		log.Debug().Str("component", "chatrunner").Msg("User chose not to continue in chat mode")
		return queryErr
	}

	// 3. Same session, so the chat view opens on the exchange above
	log.Debug().Str("component", "chatrunner").Msg("User chose to continue, starting chat UI")
	if cs.beforeChat != nil {
		cs.beforeChat()
	}
	return cs.runChatInternal(ctx)
}

func (cs *ChatSession) runLineInternal(ctx context.Context) error {
	return ui.NewLineREPL(cs.session, cs.title, cs.input, cs.outputWriter).Run(ctx)
}

func writeAnswer(w io.Writer, reply session.Message) error {
	if _, err := fmt.Fprintln(w, renderAnswer(w, reply.Content)); err != nil {
		return err
	}
	if reply.ProcessingSeconds != nil {
		if _, err := fmt.Fprintf(w, "processing: %.2fs\n", *reply.ProcessingSeconds); err != nil {
			return err
		}
	}
	if ctxLine := ui.FormatContext(reply.ContextSnippet); ctxLine != "" {
		line := "context: " + strings.TrimPrefix(ctxLine, "Context used: ")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// --- ChatBuilder ---

// ChatBuilder provides a fluent API for configuring and running a chat session.
type ChatBuilder struct {
	err            error // To collect errors during build steps
	ctx            context.Context
	backend        helpdesk.Backend
	redis          redisstream.Settings
	router         *events.Router
	handlers       []namedHandler
	sessionOptions []session.Option
	uiOptions      []ui.ModelOption
	programOptions []tea.ProgramOption
	mode           RunMode
	title          string
	query          string
	input          io.Reader
	outputWriter   io.Writer
	askContinue    func() (bool, error)
	beforeChat     func()
}

// NewChatBuilder creates a new builder with default settings.
func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx:            context.Background(), // Default context
		redis:          redisstream.DefaultSettings(),
		programOptions: []tea.ProgramOption{tea.WithAltScreen()},
		title:          ui.DefaultTitle,
		input:          os.Stdin,
		outputWriter:   os.Stdout,
		mode:           RunModeChat, // Default mode
		askContinue:    askOnStderr,
	}
}

// WithContext sets the context for the chat session.
func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ctx == nil {
		b.err = errors.New("context cannot be nil")
		return b
	}
	b.ctx = ctx
	return b
}

// WithBackend sets the helpdesk service the session talks to. (Required)
func (b *ChatBuilder) WithBackend(backend helpdesk.Backend) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if backend == nil {
		b.err = errors.New("backend cannot be nil")
		return b
	}
	b.backend = backend
	return b
}

// WithRedisSettings selects the transport of the internal event router.
func (b *ChatBuilder) WithRedisSettings(s redisstream.Settings) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if err := s.Validate(); err != nil {
		b.err = err
		return b
	}
	b.redis = s
	return b
}

// WithExternalRouter provides an existing Router instance to use.
// If not provided, an internal router will be created and managed.
func (b *ChatBuilder) WithExternalRouter(router *events.Router) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.router = router
	return b
}

// WithEventHandler subscribes an additional consumer, such as the transcript journal or metrics.
func (b *ChatBuilder) WithEventHandler(name string, f events.HandlerFunc) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if name == "" || f == nil {
		b.err = errors.New("event handler needs a name and a function")
		return b
	}
	for _, h := range b.handlers {
		if h.name == name {
			b.err = errors.Errorf("duplicate event handler %q", name)
			return b
		}
	}
	b.handlers = append(b.handlers, namedHandler{name: name, f: f})
	return b
}

func (b *ChatBuilder) WithSessionOptions(opts ...session.Option) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.sessionOptions = append(b.sessionOptions, opts...)
	return b
}

// WithUIOptions adds options for configuring the chat model.
func (b *ChatBuilder) WithUIOptions(opts ...ui.ModelOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.uiOptions = append(b.uiOptions, opts...)
	return b
}

// WithProgramOptions adds options for configuring the bubbletea program.
func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.programOptions = append(b.programOptions, opts...)
	return b
}

// WithMode sets the execution mode (chat, interactive, blocking, line).
func (b *ChatBuilder) WithMode(mode RunMode) *ChatBuilder {
	if b.err != nil {
		return b
	}
	switch mode {
	case RunModeChat, RunModeInteractive, RunModeBlocking, RunModeLine:
		b.mode = mode
	default:
		b.err = errors.Errorf("invalid run mode: %s", mode)
	}
	return b
}

func (b *ChatBuilder) WithTitle(title string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if strings.TrimSpace(title) != "" {
		b.title = title
	}
	return b
}

// WithQuery sets the question asked by blocking and interactive modes.
func (b *ChatBuilder) WithQuery(query string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.query = query
	return b
}

// WithInput sets the reader used by line mode. Defaults to os.Stdin.
func (b *ChatBuilder) WithInput(r io.Reader) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if r == nil {
		b.err = errors.New("input reader cannot be nil")
		return b
	}
	b.input = r
	return b
}

// WithOutputWriter sets the writer for blocking, interactive and line modes.
// Defaults to os.Stdout.
func (b *ChatBuilder) WithOutputWriter(w io.Writer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("output writer cannot be nil")
		return b
	}
	b.outputWriter = w
	return b
}

// WithContinuationPrompt replaces the "continue in chat mode?" question of interactive mode.
func (b *ChatBuilder) WithContinuationPrompt(ask func() (bool, error)) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ask == nil {
		b.err = errors.New("continuation prompt cannot be nil")
		return b
	}
	b.askContinue = ask
	return b
}

// WithBeforeChat runs f when interactive mode hands the terminal to the chat view,
// e.g. to move log output off the screen.
func (b *ChatBuilder) WithBeforeChat(f func()) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.beforeChat = f
	return b
}

// Build validates the builder configuration and wires the session to its event router.
func (b *ChatBuilder) Build() (*ChatSession, error) {
	// Check for accumulated errors during build steps
	if b.err != nil {
		return nil, b.err
	}

	// Final validation of required fields
	if b.backend == nil {
		return nil, errors.New("backend is required (use WithBackend)")
	}
	if b.mode == "" {
		return nil, errors.New("run mode is required (use WithMode)")
	}
	if (b.mode == RunModeBlocking || b.mode == RunModeInteractive) && strings.TrimSpace(b.query) == "" {
		return nil, errors.Errorf("a question is required for %s mode (use WithQuery)", b.mode)
	}

	router := b.router
	ownsRouter := false
	if router == nil {
		var err error
		router, err = events.NewRouter(b.redis)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create event router")
		}
		ownsRouter = true
	}

	sessionOptions := append([]session.Option{session.WithSink(router)}, b.sessionOptions...)

	cs := &ChatSession{
		ctx:            b.ctx,
		session:        session.New(b.backend, sessionOptions...),
		router:         router,
		ownsRouter:     ownsRouter,
		handlers:       b.handlers,
		uiOptions:      b.uiOptions,
		programOptions: b.programOptions,
		mode:           b.mode,
		title:          b.title,
		query:          b.query,
		input:          b.input,
		outputWriter:   b.outputWriter,
		askContinue:    b.askContinue,
		beforeChat:     b.beforeChat,
	}
	return cs, nil
}

// askOnStderr asks on stderr when it is a terminal and declines otherwise.
func askOnStderr() (bool, error) {
	// Use Stderr for prompt asking, as Stdout might be redirected.
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.Debug().Str("component", "chatrunner").Msg("Stderr is not a TTY, skipping chat continuation prompt")
		return false, nil
	}
	return askForChatContinuation(os.Stderr)
}

// askForChatContinuation prompts the user on the given writer (should be a TTY like os.Stderr)
// whether they want to continue in chat mode.
func askForChatContinuation(tty io.ReadWriter) (bool, error) {
	ui := &input.UI{
		Writer: tty,
		Reader: tty,
	}

	_, _ = fmt.Fprint(tty, "\n") // Add newline before prompt
	query := "Do you want to continue in chat mode? [Y/n]"
	answer, err := ui.Ask(query, &input.Options{
		Default:  "y", // Default to yes
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "": // Allow empty for default 'y'
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}

	_, _ = fmt.Fprint(tty, "\n") // Add newline after prompt

	return answer == "y" || answer == "Y" || answer == "", nil // Yes if 'y', 'Y', or empty (default)
}
