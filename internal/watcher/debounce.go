package watcher

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Debouncer groups rapid file changes together. Each event restarts the
// quiet window; when it expires the pending events are delivered as one
// batch, deduplicated by path.
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	done    chan struct{}
	stop    sync.Once
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 1),
		pending: make([]ChangeEvent, 0),
		done:    make(chan struct{}),
	}
}

// Add queues an event. It blocks only while the intake buffer is full.
func (d *Debouncer) Add(event ChangeEvent) {
	select {
	case d.events <- event:
	case <-d.done:
	}
}

// Output delivers debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.stop.Do(func() {
		close(d.done)
		d.mutex.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mutex.Unlock()
	})
}

// Run moves queued events into the pending window until ctx ends or Stop
// is called.
func (d *Debouncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Stop()

			return
		case <-d.done:
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()

		return
	}

	// Last event per path wins.
	eventMap := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}
	d.pending = d.pending[:0]
	d.mutex.Unlock()

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	case <-d.done:
	}
}
