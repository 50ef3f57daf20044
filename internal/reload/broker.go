package reload

import (
	"sync"
	"time"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 8

// Event announces that a new snapshot was published.
type Event struct {
	Generation uint64
	At         time.Time
	Warnings   int
}

// Broker fans published events out to subscribers. Delivery never blocks
// the publisher: a subscriber whose buffer is full misses that event.
type Broker struct {
	subs   map[int]chan Event
	next   int
	buffer int
	mutex  sync.RWMutex
}

// NewBroker creates a broker whose subscribers buffer up to buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	return &Broker{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns an event channel and a function that unsubscribes and
// closes it. The function may be called more than once.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

// Publish delivers e to every subscriber with room and returns how many
// received it.
func (b *Broker) Publish(e Event) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}

	return delivered
}

// Len returns the number of active subscribers.
func (b *Broker) Len() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.subs)
}
