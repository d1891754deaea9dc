// Package event provides the notification bus for emigo sessions using
// watermill.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/emigo/internal/logging"
)

// EventType represents the type of event.
type EventType string

const (
	NeedWindow       EventType = "window.need"
	TranscriptAppend EventType = "transcript.append"
	SessionCreated   EventType = "session.created"
	TurnCompleted    EventType = "turn.completed"
)

// Topic is the watermill topic every event is mirrored to.
const Topic = "emigo.events"

// metadataType carries the event type on mirrored messages.
const metadataType = "type"

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus delivers events to in-process subscribers by direct call and
// mirrors each event as JSON onto a watermill gochannel topic for
// transport consumers (SSE, WebSocket).
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool

	queueLimit int
	log        zerolog.Logger
}

// DefaultQueueLimit bounds the events buffered for one transport consumer.
const DefaultQueueLimit = 4096

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithQueueLimit sets how many events a transport consumer may fall behind
// before its stream is closed.
func WithQueueLimit(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queueLimit = n
		}
	}
}

// NewBus creates a new event bus. Mirrored messages are delivered to each
// watermill subscriber one at a time, in publish order.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            100,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[EventType][]subscriberEntry),
		queueLimit:  DefaultQueueLimit,
		log:         logging.Component("event"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribeGlobal(id)
	}
}

// unsubscribe removes a subscriber for a specific event type.
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// unsubscribeGlobal removes a global subscriber.
func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// collect returns the subscribers for t, or false when the bus is closed.
func (b *Bus) collect(t EventType) ([]Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, false
	}
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs, true
}

// Publish sends an event to all subscribers asynchronously.
// Each subscriber is called in its own goroutine to prevent blocking.
func (b *Bus) Publish(event Event) {
	subs, ok := b.collect(event.Type)
	if !ok {
		return
	}
	for _, sub := range subs {
		go sub(event)
	}
	go b.mirror(event)
}

// PublishSync sends an event to all subscribers synchronously. Subscribers
// and the watermill mirror have received the event when it returns, so
// consecutive PublishSync calls are observed in order.
func (b *Bus) PublishSync(event Event) {
	subs, ok := b.collect(event.Type)
	if !ok {
		return
	}
	for _, sub := range subs {
		sub(event)
	}
	b.mirror(event)
}

// mirror publishes event on Topic. Failures only affect transport
// consumers and are dropped.
func (b *Bus) mirror(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataType, string(event.Type))
	_ = b.pubsub.Publish(Topic, msg)
}

// Messages subscribes to the mirrored event stream until ctx is done.
//
// Each subscription has its own queue: messages are acked as soon as they
// are queued, so a slow consumer never holds publishers. A consumer more
// than the queue limit behind has its channel closed. Messages arrive in
// publish order and need no Ack.
func (b *Bus) Messages(ctx context.Context) (<-chan *message.Message, error) {
	in, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}
	out := make(chan *message.Message)
	go b.pump(ctx, in, out)
	return out, nil
}

// pump acks messages from in and queues them for out.
func (b *Bus) pump(ctx context.Context, in <-chan *message.Message, out chan<- *message.Message) {
	var queue []*message.Message
	for {
		if in == nil && len(queue) == 0 {
			close(out)
			return
		}

		var (
			send chan<- *message.Message
			head *message.Message
		)
		if len(queue) > 0 {
			send = out
			head = queue[0]
		}

		select {
		case <-ctx.Done():
			close(out)
			return
		case msg, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			msg.Ack()
			if len(queue) >= b.queueLimit {
				b.log.Warn().Int("limit", b.queueLimit).Msg("event consumer too slow, closing stream")
				close(out)
				drain(ctx, in)
				return
			}
			queue = append(queue, msg)
		case send <- head:
			queue[0] = nil
			queue = queue[1:]
		}
	}
}

// drain acks and discards messages until the subscription ends.
func drain(ctx context.Context, in <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			msg.Ack()
		}
	}
}

// Envelope is a decoded mirrored event with its data left raw.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses a mirrored message.
func Decode(msg *message.Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return env, nil
}

// Close closes the bus and all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
