package session

import (
	"log/slog"
	"sync"

	"github.com/zhubert/eve/model"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 256

// Broadcaster fans events out to independent subscribers.
//
// Each subscriber has a bounded channel and a goroutine that invokes its
// callback in publish order. Publish never blocks: an event that does not fit
// in a subscriber's buffer is dropped for that subscriber.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan model.Event
	nextID uint64
	buffer int
	closed bool
	log    *slog.Logger
}

// NewBroadcaster returns a Broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int, log *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[uint64]chan model.Event),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers fn and returns a function that removes exactly this
// subscription. The returned function is safe to call more than once.
// Subscribing to a closed broadcaster registers nothing.
func (b *Broadcaster) Subscribe(fn func(model.Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan model.Event, b.buffer)
	b.subs[id] = ch

	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()

	return func() { b.remove(id) }
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish queues ev for every current subscriber.
func (b *Broadcaster) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("subscriber buffer full, dropping event",
				"subscriber", id,
				"eventType", ev.Type,
				"buffer", b.buffer)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes every subscriber. Queued events are still delivered; later
// Publish and Subscribe calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
