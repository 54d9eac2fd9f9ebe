package engine

import (
	"sync"

	"github.com/strandworks/strand/sdk"
)

// Broadcaster fans a run's event stream out to multiple consumers, typically
// an SSE subscriber plus the history recorder. Publish blocks when a
// subscriber's buffer is full so every consumer sees the complete stream.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	ch   chan sdk.Event
	done chan struct{}
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscription)}
}

// Subscribe registers a consumer. The returned cancel detaches it; pending
// sends to a cancelled consumer are abandoned rather than blocking the
// publisher.
func (b *Broadcaster) Subscribe(buffer int) (<-chan sdk.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{
		ch:   make(chan sdk.Event, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber.
func (b *Broadcaster) Publish(evt sdk.Event) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- evt:
		case <-sub.done:
		}
	}
}

// Close ends the stream; subscriber channels are closed after in-flight
// events drain.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}
