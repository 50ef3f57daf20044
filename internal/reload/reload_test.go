package reload

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/journal"
	"github.com/conneroisu/quire/internal/pipeline"
	"github.com/conneroisu/quire/internal/snapshot"
	"github.com/conneroisu/quire/internal/watcher"
)

// fakeRunner assembles an empty snapshot per call. When gate is set each
// run after the first waits for a value on it.
type fakeRunner struct {
	calls   atomic.Int32
	fail    atomic.Bool
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, generation uint64) (*snapshot.Snapshot, *pipeline.Report, error) {
	n := f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil && n > 1 {
		<-f.gate
	}
	if f.fail.Load() {
		return nil, &pipeline.Report{Issues: errors.NewCollector()},
			errors.RootUnreadable("/content", stderrors.New("gone"))
	}

	snap, err := snapshot.Assemble(snapshot.Input{Documents: []content.Document{{
		Kind: content.KindPage,
		Page: &content.Page{Slug: "about", Path: "about.md"},
	}}}, generation)

	return snap, &pipeline.Report{Files: 1, Issues: errors.NewCollector()}, err
}

type memJournal struct {
	mu      sync.Mutex
	records []journal.Record
}

func (m *memJournal) Record(_ context.Context, r *journal.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *r)

	return nil
}

func (m *memJournal) all() []journal.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]journal.Record(nil), m.records...)
}

type fakeWatch struct {
	degraded chan struct{}
}

func (f *fakeWatch) Degraded() <-chan struct{} { return f.degraded }

func (f *fakeWatch) Health() watcher.Health {
	select {
	case <-f.degraded:
		return watcher.Health{Degraded: true}
	default:
		return watcher.Health{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestStartPublishesFirstSnapshot(t *testing.T) {
	j := &memJournal{}
	c := NewCoordinator(&fakeRunner{}, Options{Journal: j}, nil)
	assert.Nil(t, c.Current())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	snap := c.Current()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), snap.Generation())

	st := c.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, uint64(1), st.Generation)
	assert.False(t, st.LastSuccess.IsZero())

	records := j.all()
	require.Len(t, records, 1)
	assert.Equal(t, ReasonStartup, records[0].Trigger)
	assert.Equal(t, journal.OutcomePublished, records[0].Outcome)
	assert.Equal(t, 1, records[0].Pages)
}

func TestStartFailureIsReturned(t *testing.T) {
	r := &fakeRunner{}
	r.fail.Store(true)
	c := NewCoordinator(r, Options{}, nil)

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrRootUnreadable)
	assert.Nil(t, c.Current())
}

func TestTriggerPublishesAndNotifies(t *testing.T) {
	c := NewCoordinator(&fakeRunner{}, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	assert.True(t, c.Trigger(ReasonManual))

	select {
	case ev := <-events:
		assert.Equal(t, uint64(2), ev.Generation)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}
	assert.Equal(t, uint64(2), c.Current().Generation())
}

func TestTriggersCoalesceWhileRunning(t *testing.T) {
	r := &fakeRunner{gate: make(chan struct{}), started: make(chan struct{}, 16)}
	c := NewCoordinator(r, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	<-r.started

	c.Trigger(ReasonWatch)
	<-r.started
	assert.Equal(t, StateRunning, c.State())

	queued := 0
	for i := 0; i < 5; i++ {
		if c.Trigger(ReasonWatch) {
			queued++
		}
	}
	assert.Equal(t, 1, queued, "only one trigger fits in the pending slot")

	r.gate <- struct{}{}
	<-r.started
	r.gate <- struct{}{}

	waitFor(t, func() bool { return c.Current().Generation() == 3 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), r.calls.Load())
	assert.Equal(t, 3, c.Status().Runs)
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	r := &fakeRunner{}
	j := &memJournal{}
	c := NewCoordinator(r, Options{Journal: j}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	before := c.Current()

	r.fail.Store(true)
	c.Trigger(ReasonWatch)
	waitFor(t, func() bool { return len(j.all()) == 2 })

	assert.Same(t, before, c.Current())
	st := c.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, uint64(1), st.Generation)
	assert.NotEmpty(t, st.LastError)
	assert.False(t, st.LastFailure.IsZero())
	assert.Equal(t, journal.OutcomeFailed, j.all()[1].Outcome)

	r.fail.Store(false)
	c.Trigger(ReasonWatch)
	waitFor(t, func() bool { return c.Current().Generation() == 2 })
	assert.Empty(t, c.Status().LastError)
}

func TestRescanAndDegradation(t *testing.T) {
	t.Run("periodic rescan", func(t *testing.T) {
		r := &fakeRunner{}
		c := NewCoordinator(r, Options{RescanInterval: 20 * time.Millisecond}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, c.Start(ctx))

		waitFor(t, func() bool { return r.calls.Load() >= 3 })
	})

	t.Run("degraded watcher triggers a run and faster rescans", func(t *testing.T) {
		r := &fakeRunner{}
		w := &fakeWatch{degraded: make(chan struct{})}
		j := &memJournal{}
		c := NewCoordinator(r, Options{
			DegradedRescanInterval: 20 * time.Millisecond,
			Watch:                  w,
			Journal:                j,
		}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, c.Start(ctx))
		assert.False(t, c.Status().Watch.Degraded)

		close(w.degraded)
		waitFor(t, func() bool { return r.calls.Load() >= 4 })

		records := j.all()
		assert.Equal(t, ReasonDegraded, records[1].Trigger)
		assert.Equal(t, ReasonRescan, records[2].Trigger)
		assert.True(t, c.Status().Watch.Degraded)
	})
}

func TestLoopStopsWithContext(t *testing.T) {
	c := NewCoordinator(&fakeRunner{}, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestOnChangeTriggers(t *testing.T) {
	r := &fakeRunner{}
	c := NewCoordinator(r, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.OnChange([]watcher.ChangeEvent{{Path: "a.md"}}))
	waitFor(t, func() bool { return c.Current().Generation() == 2 })
}

func TestBroker(t *testing.T) {
	b := NewBroker(1)

	slow, cancelSlow := b.Subscribe()
	fast, cancelFast := b.Subscribe()
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, 2, b.Publish(Event{Generation: 1}))
	<-fast
	assert.Equal(t, 1, b.Publish(Event{Generation: 2}), "full subscriber is skipped")

	assert.Equal(t, uint64(1), (<-slow).Generation)
	assert.Equal(t, uint64(2), (<-fast).Generation)

	cancelSlow()
	cancelSlow()
	_, open := <-slow
	assert.False(t, open)
	assert.Equal(t, 1, b.Len())

	cancelFast()
	assert.Equal(t, 0, b.Publish(Event{Generation: 3}))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "publishing", StatePublishing.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
