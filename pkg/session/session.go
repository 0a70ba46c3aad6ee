package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session holds the conversation with the helpdesk backend.
//
// A session is Idle or AwaitingReply. An accepted submission moves it to AwaitingReply,
// and the backend's answer (or failure) moves it back to Idle. At most one query is
// in flight; submissions made meanwhile are declined, never queued.
type Session struct {
	id      string
	backend helpdesk.Backend
	sink    EventSink
	now     func() time.Time

	mu           sync.Mutex
	messages     []Message
	draft        string
	awaiting     bool
	lastError    string
	connectivity Connectivity
	checkSeq     uint64

	initOnce sync.Once
	inflight sync.WaitGroup
}

type Option func(*Session)

func WithSink(sink EventSink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a session whose log already holds the greeting.
func New(backend helpdesk.Backend, options ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		backend:      backend,
		sink:         NullSink{},
		now:          time.Now,
		connectivity: ConnectivityChecking,
	}
	for _, opt := range options {
		opt(s)
	}
	s.messages = []Message{newMessage(RoleAssistant, Greeting, s.now())}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Initialize announces the greeting and runs the one startup health probe.
// It blocks for the duration of the probe; callers that must not wait run it in
// the background. Later calls do nothing.
func (s *Session) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		s.mu.Lock()
		greeting := s.messages[0]
		s.mu.Unlock()
		s.publish(ctx, Event{Type: EventMessageAppended, Message: &greeting})
		s.CheckConnectivity(ctx)
	})
}

// CheckConnectivity probes the backend and records online or offline. It never fails.
// When checks overlap only the most recently started one settles the state.
func (s *Session) CheckConnectivity(ctx context.Context) {
	s.mu.Lock()
	s.checkSeq++
	seq := s.checkSeq
	s.mu.Unlock()
	s.setConnectivity(ctx, seq, ConnectivityChecking)

	err := s.backend.Health(ctx)
	if err != nil {
		log.Debug().Err(err).Str("component", "session").Str("session_id", s.id).Msg("health probe failed")
		s.setConnectivity(ctx, seq, ConnectivityOffline)
		return
	}
	s.setConnectivity(ctx, seq, ConnectivityOnline)
}

func (s *Session) setConnectivity(ctx context.Context, seq uint64, c Connectivity) {
	s.mu.Lock()
	if seq != s.checkSeq {
		s.mu.Unlock()
		log.Debug().Str("component", "session").Str("session_id", s.id).Str("connectivity", string(c)).Msg("dropping superseded connectivity result")
		return
	}
	changed := s.connectivity != c
	s.connectivity = c
	s.mu.Unlock()

	if changed {
		s.publish(ctx, Event{Type: EventConnectivityChanged, Connectivity: c})
	}
}

// SetDraft records the not-yet-submitted input. Drafts may change while a reply is pending.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Snapshot copies the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SessionID:     s.id,
		Messages:      append([]Message(nil), s.messages...),
		DraftInput:    s.draft,
		AwaitingReply: s.awaiting,
		LastError:     s.lastError,
		Connectivity:  s.connectivity,
	}
}

// SubmitQuery begins a query and completes it in the background.
// It reports false when the submission was declined.
func (s *Session) SubmitQuery(ctx context.Context, text string) bool {
	q := s.Begin(ctx, text)
	if q == nil {
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		q.Run(ctx)
	}()
	return true
}

// Wait blocks until every query started with SubmitQuery has settled.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Begin performs the synchronous half of a submission: the user message is appended,
// the draft cleared and the session marked as awaiting a reply. It returns nil, and
// changes nothing, when text is blank or a reply is already pending.
func (s *Session) Begin(ctx context.Context, text string) *Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		log.Debug().Str("component", "session").Str("session_id", s.id).Msg("submission declined, reply pending")
		return nil
	}
	msg := newMessage(RoleUser, text, s.now())
	s.messages = append(s.messages, msg)
	s.draft = ""
	s.awaiting = true
	s.lastError = ""
	s.mu.Unlock()

	s.publish(ctx, Event{Type: EventMessageAppended, Message: &msg})
	s.publish(ctx, Event{Type: EventQueryStarted})

	return &Query{session: s, text: text, started: time.Now()}
}

func (s *Session) publish(ctx context.Context, ev Event) {
	ev.SessionID = s.id
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	if err := s.sink.PublishEvent(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("component", "session").
			Str("session_id", s.id).
			Str("event", string(ev.Type)).
			Msg("failed to publish session event")
	}
}

// Query is a submission waiting for the backend.
type Query struct {
	session *Session
	text    string
	started time.Time

	once  sync.Once
	reply Message
}

func (q *Query) Text() string {
	return q.text
}

// Run sends the query and settles the session. It returns the assistant message that
// was appended, which embeds the failure text when the query failed. Only the first
// call talks to the backend.
func (q *Query) Run(ctx context.Context) Message {
	q.once.Do(func() {
		q.reply = q.run(ctx)
	})
	return q.reply
}

func (q *Query) run(ctx context.Context) Message {
	s := q.session
	resp, err := s.backend.Chat(ctx, helpdesk.NewChatRequest(q.text))
	elapsed := time.Since(q.started)

	var reply Message
	var errMsg string
	if err != nil {
		errMsg = helpdesk.UserMessage(err)
		reply = newMessage(RoleAssistant, errorReply(errMsg), s.now())
		log.Warn().Err(err).
			Str("component", "session").
			Str("session_id", s.id).
			Str("outcome", helpdesk.Outcome(err)).
			Msg("helpdesk query failed")
	} else {
		reply = newMessage(RoleAssistant, resp.Response, s.now())
		if resp.ProcessingTime != nil {
			v := *resp.ProcessingTime
			reply.ProcessingSeconds = &v
		}
		reply.ContextSnippet = resp.ContextUsed
	}

	s.mu.Lock()
	s.messages = append(s.messages, reply)
	s.lastError = errMsg
	s.awaiting = false
	s.mu.Unlock()

	s.publish(ctx, Event{Type: EventMessageAppended, Message: &reply})
	s.publish(ctx, Event{
		Type:      EventQueryFinished,
		Outcome:   helpdesk.Outcome(err),
		Error:     errMsg,
		ElapsedMs: elapsed.Milliseconds(),
	})
	return reply
}
