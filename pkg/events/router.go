package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionTopic carries every session.Event.
const SessionTopic = "helpdesk.session"

// HandlerFunc consumes one decoded session event.
type HandlerFunc func(ctx context.Context, ev session.Event) error

// Router fans session events out to handlers over watermill. It is the session's EventSink.
type Router struct {
	Publisher message.Publisher

	router        *message.Router
	logger        watermill.LoggerAdapter
	subscriberFor func(handler string) (message.Subscriber, error)
	closers       []func() error

	handlers atomic.Int64
	pending  atomic.Int64
}

var _ session.EventSink = &Router{}

// NewRouter builds an in-memory router, or a Redis Streams backed one when s.Enabled is set.
func NewRouter(s redisstream.Settings) (*Router, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	logger := NewWatermillLogger(log.Logger)

	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 2 * time.Second}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watermill router")
	}
	ret := &Router{router: r, logger: logger}

	if !s.Enabled {
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		ret.Publisher = pubSub
		ret.subscriberFor = func(string) (message.Subscriber, error) { return pubSub, nil }
		ret.closers = append(ret.closers, pubSub.Close)
		return ret, nil
	}

	client := redisstream.NewClient(s)
	ret.closers = append(ret.closers, client.Close)
	pub, err := redisstream.BuildPublisher(client, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to create redis stream publisher")
	}
	ret.Publisher = pub
	ret.closers = append([]func() error{pub.Close}, ret.closers...)
	ret.subscriberFor = func(handler string) (message.Subscriber, error) {
		return buildRedisSubscriber(client, s, handler, logger)
	}
	return ret, nil
}

func buildRedisSubscriber(client *redis.Client, s redisstream.Settings, handler string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	group := s.GroupFor(handler)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisstream.EnsureGroupAtTail(ctx, client, SessionTopic, group); err != nil {
		return nil, errors.Wrapf(err, "failed to create consumer group %s", group)
	}
	return redisstream.BuildGroupSubscriber(client, group, s.Consumer, logger)
}

// PublishEvent encodes ev and publishes it on SessionTopic.
func (r *Router) PublishEvent(ctx context.Context, ev session.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to encode session event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(ev.Type))
	msg.Metadata.Set("session_id", ev.SessionID)
	if err := r.Publisher.Publish(SessionTopic, msg); err != nil {
		return err
	}
	r.pending.Add(r.handlers.Load())
	return nil
}

// AddHandler subscribes f to SessionTopic under name. Undecodable payloads are logged and dropped.
func (r *Router) AddHandler(name string, f HandlerFunc) error {
	sub, err := r.subscriberFor(name)
	if err != nil {
		return err
	}
	r.handlers.Add(1)
	r.router.AddNoPublisherHandler(name, SessionTopic, sub, func(msg *message.Message) error {
		defer r.pending.Add(-1)
		ev, err := DecodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("component", "events").Str("handler", name).Msg("failed to decode session event")
			return nil
		}
		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return f(ctx, ev)
	})
	return nil
}

// DecodeEvent parses a session event payload.
func DecodeEvent(msg *message.Message) (session.Event, error) {
	var ev session.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return session.Event{}, errors.Wrap(err, "invalid session event payload")
	}
	if ev.Type == "" {
		return session.Event{}, errors.New("session event has no type")
	}
	return ev, nil
}

func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// RunHandlers starts handlers added after Run.
func (r *Router) RunHandlers(ctx context.Context) error {
	return r.router.RunHandlers(ctx)
}

// Drain waits until the local handlers have consumed every event published so far,
// or ctx is done. Events published before the router was running are never delivered,
// so callers should bound ctx.
func (r *Router) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for r.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "%d session events still pending", r.pending.Load())
		case <-ticker.C:
		}
	}
	return nil
}

func (r *Router) Close() error {
	err := r.router.Close()
	for _, c := range r.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
