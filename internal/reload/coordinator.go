// Package reload owns the current snapshot. A single goroutine consumes
// reload triggers, runs the pipeline, publishes the result with one atomic
// swap and notifies subscribers.
package reload

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/journal"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/pipeline"
	"github.com/conneroisu/quire/internal/snapshot"
	"github.com/conneroisu/quire/internal/watcher"
)

// State is the coordinator's position in its run cycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePublishing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePublishing:
		return "publishing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Trigger reasons recorded in the journal.
const (
	ReasonStartup  = "startup"
	ReasonWatch    = "watch"
	ReasonRescan   = "rescan"
	ReasonDegraded = "degraded"
	ReasonManual   = "manual"
)

// Runner builds a snapshot for the given generation.
type Runner interface {
	Run(ctx context.Context, generation uint64) (*snapshot.Snapshot, *pipeline.Report, error)
}

// Recorder stores reload history.
type Recorder interface {
	Record(ctx context.Context, r *journal.Record) error
}

// WatchSource is the part of the file watcher the coordinator observes.
type WatchSource interface {
	Degraded() <-chan struct{}
	Health() watcher.Health
}

// Options configures a Coordinator.
type Options struct {
	// RescanInterval forces a reload periodically; zero disables it while
	// the watcher is healthy.
	RescanInterval time.Duration
	// DegradedRescanInterval replaces RescanInterval once the watcher
	// stops delivering notifications.
	DegradedRescanInterval time.Duration
	Journal                Recorder
	Watch                  WatchSource
	Broker                 *Broker
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State        State
	Generation   uint64
	LastSuccess  time.Time
	LastFailure  time.Time
	LastError    string
	LastDuration time.Duration
	Runs         int
	Watch        watcher.Health
}

// Coordinator serializes reloads and publishes snapshots.
type Coordinator struct {
	runner  Runner
	opts    Options
	broker  *Broker
	logger  logging.Logger
	errs    *errors.ErrorHandler
	current atomic.Pointer[snapshot.Snapshot]
	state   atomic.Int32

	triggers chan string
	done     chan struct{}

	// generation is written only by the run loop.
	generation uint64

	status Status
	mutex  sync.RWMutex
}

// NewCoordinator creates a coordinator around runner.
func NewCoordinator(runner Runner, opts Options, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	broker := opts.Broker
	if broker == nil {
		broker = NewBroker(DefaultSubscriberBuffer)
	}

	logger = logger.WithComponent("reload")

	return &Coordinator{
		runner:   runner,
		opts:     opts,
		broker:   broker,
		logger:   logger,
		errs:     errors.NewErrorHandler(logger),
		triggers: make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// Start builds the first snapshot synchronously and then serves triggers
// until ctx ends. A failed first build is returned and nothing is started.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.run(ctx, ReasonStartup); err != nil {
		return err
	}

	go c.loop(ctx)

	return nil
}

// Trigger requests a reload. Requests that arrive while one is already
// queued are merged into it.
func (c *Coordinator) Trigger(reason string) bool {
	select {
	case c.triggers <- reason:
		return true
	default:
		return false
	}
}

// OnChange adapts Trigger to a watcher change handler.
func (c *Coordinator) OnChange(events []watcher.ChangeEvent) error {
	c.logger.Debug(context.Background(), "Content changed", "events", len(events))
	c.Trigger(ReasonWatch)

	return nil
}

// Current returns the published snapshot. It is nil only before Start
// succeeds.
func (c *Coordinator) Current() *snapshot.Snapshot {
	return c.current.Load()
}

// Broker returns the change notification broker.
func (c *Coordinator) Broker() *Broker {
	return c.broker
}

// Subscribe is shorthand for Broker().Subscribe().
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	return c.broker.Subscribe()
}

// Done is closed when the run loop exits.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Status returns a copy of the coordinator's status.
func (c *Coordinator) Status() Status {
	c.mutex.RLock()
	st := c.status
	c.mutex.RUnlock()

	st.State = c.State()
	if c.opts.Watch != nil {
		st.Watch = c.opts.Watch.Health()
	}

	return st
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)

	var degraded <-chan struct{}
	if c.opts.Watch != nil {
		degraded = c.opts.Watch.Degraded()
	}

	ticker := newTicker(c.opts.RescanInterval)
	defer func() { ticker.stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-c.triggers:
			_ = c.run(ctx, reason)
		case <-ticker.C():
			_ = c.run(ctx, ReasonRescan)
		case <-degraded:
			degraded = nil
			ticker.stop()
			ticker = newTicker(c.opts.DegradedRescanInterval)
			c.logger.Warn(ctx, errors.ErrWatchClosed, "File watching stopped; falling back to periodic rescans",
				"interval", c.opts.DegradedRescanInterval)
			_ = c.run(ctx, ReasonDegraded)
		}
	}
}

func (c *Coordinator) run(ctx context.Context, reason string) error {
	c.state.Store(int32(StateRunning))
	started := time.Now()
	next := c.generation + 1

	snap, report, err := c.runner.Run(ctx, next)
	duration := time.Since(started)

	if err != nil {
		c.state.Store(int32(StateFailed))
		c.errs.Handle(ctx, err)

		c.mutex.Lock()
		c.status.LastFailure = time.Now()
		c.status.LastError = err.Error()
		c.status.LastDuration = duration
		c.status.Runs++
		c.mutex.Unlock()
		c.state.Store(int32(StateIdle))

		c.record(ctx, &journal.Record{
			Generation: c.generation,
			Trigger:    reason,
			Outcome:    journal.OutcomeFailed,
			StartedAt:  started,
			Duration:   duration,
			Files:      reportFiles(report),
			Errors:     reportErrors(report),
			Error:      err.Error(),
		})

		return err
	}

	c.state.Store(int32(StatePublishing))
	c.current.Store(snap)
	c.generation = next

	stats := snap.Stats()

	c.mutex.Lock()
	c.status.Generation = next
	c.status.LastSuccess = time.Now()
	c.status.LastError = ""
	c.status.LastDuration = duration
	c.status.Runs++
	c.mutex.Unlock()

	delivered := c.broker.Publish(Event{Generation: next, At: snap.BuiltAt(), Warnings: stats.Warnings})

	if report != nil {
		for _, issue := range report.Issues.Issues() {
			c.errs.Handle(ctx, issue.Err)
		}
	}

	c.logger.Info(ctx, "Published snapshot",
		"generation", next,
		"reason", reason,
		"posts", stats.Posts,
		"pages", stats.Pages,
		"warnings", stats.Warnings,
		"subscribers", delivered,
		"duration", duration)
	c.state.Store(int32(StateIdle))

	c.record(ctx, &journal.Record{
		Generation: next,
		Trigger:    reason,
		Outcome:    journal.OutcomePublished,
		StartedAt:  started,
		Duration:   duration,
		Files:      reportFiles(report),
		Posts:      stats.Posts,
		Pages:      stats.Pages,
		Warnings:   stats.Warnings,
		Errors:     reportErrors(report),
	})

	return nil
}

func (c *Coordinator) record(ctx context.Context, r *journal.Record) {
	if c.opts.Journal == nil {
		return
	}
	if err := c.opts.Journal.Record(ctx, r); err != nil {
		c.logger.Warn(ctx, err, "Failed to record reload")
	}
}

func reportFiles(r *pipeline.Report) int {
	if r == nil {
		return 0
	}

	return r.Files
}

func reportErrors(r *pipeline.Report) int {
	if r == nil || r.Issues == nil {
		return 0
	}

	return len(r.Issues.Errors())
}

// ticker wraps time.Ticker so a zero interval yields a channel that never
// fires.
type ticker struct {
	t *time.Ticker
}

func newTicker(interval time.Duration) ticker {
	if interval <= 0 {
		return ticker{}
	}

	return ticker{t: time.NewTicker(interval)}
}

func (t ticker) C() <-chan time.Time {
	if t.t == nil {
		return nil
	}

	return t.t.C
}

func (t ticker) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
