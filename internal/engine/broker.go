package engine

import "sync"

// subscriberBufferSize is the channel buffer for each state subscriber.
// Transitions are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// StateBroker fans engine state transitions out to subscribers.
// It is safe for concurrent use.
//
// Once closed, the broker stays closed so that late subscribers receive a
// closed channel instead of blocking forever.
type StateBroker struct {
	mu     sync.Mutex
	subs   map[int]chan State
	nextID int
	closed bool
}

// NewStateBroker creates a new state broker.
func NewStateBroker() *StateBroker {
	return &StateBroker{
		subs: make(map[int]chan State),
	}
}

// Subscribe returns a channel that receives state transitions and an
// unsubscribe function. If the broker is closed, the channel is already
// closed.
func (b *StateBroker) Subscribe() (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan State, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish sends s to every subscriber. Transitions are dropped for
// subscribers whose buffers are full.
func (b *StateBroker) Publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			// Never block the worker on a slow subscriber.
		}
	}
}

// Close closes every subscriber channel. Later Subscribe calls return a
// closed channel. Close is idempotent.
func (b *StateBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
