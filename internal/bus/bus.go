// Package bus is the typed asynchronous channel connecting the
// coordinator, the page agent and the panel. Components never call each
// other directly: every interaction is either a correlated
// request/response round trip or a fire-and-forget broadcast.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var ErrNoHandler = errors.New("no handler registered for topic")

// Envelope is one in-flight request. The receiving component answers by
// calling Respond exactly once.
type Envelope struct {
	ID      string
	Topic   string
	Payload any

	reply chan reply
}

type reply struct {
	payload any
	err     error
}

// Respond delivers the reply for this envelope. Calling it more than
// once is a programming error and panics on the full reply channel.
func (e Envelope) Respond(payload any, err error) {
	e.reply <- reply{payload: payload, err: err}
}

// Event is a fire-and-forget broadcast.
type Event struct {
	Topic   string
	Payload any
}

// Bus routes requests to per-component inboxes and fans broadcasts out
// to subscribers. Each component drains its inbox on its own event loop,
// so request handling stays single-threaded per component.
type Bus struct {
	mu      sync.RWMutex
	routes  map[string]chan<- Envelope
	subs    map[int]chan Event
	nextSub int
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		routes: make(map[string]chan<- Envelope),
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// HandleTopics binds topics to the owning component's inbox. Later
// bindings replace earlier ones, which keeps tests free to stub a topic.
func (b *Bus) HandleTopics(inbox chan<- Envelope, topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		b.routes[topic] = inbox
	}
}

// Request sends a payload to the topic owner and waits for the single
// correlated reply. Returns ErrNoHandler if nothing owns the topic.
func (b *Bus) Request(ctx context.Context, topic string, payload any) (any, error) {
	b.mu.RLock()
	inbox, ok := b.routes[topic]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, topic)
	}

	envelope := Envelope{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
		reply:   make(chan reply, 1),
	}

	select {
	case inbox <- envelope:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-envelope.reply:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers a broadcast consumer. Events arrive in publish
// order per subscriber. The returned cancel func must be called when the
// consumer goes away.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Broadcast fans an event out to every subscriber. A subscriber that has
// abandoned its channel loses events rather than blocking the publisher;
// the drop is logged.
func (b *Bus) Broadcast(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- Event{Topic: topic, Payload: payload}:
		default:
			b.logger.Warn("dropping broadcast for slow subscriber",
				"topic", topic, "subscriber", id)
		}
	}
}
