package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pathnav/navigator/internal/dispatcher"
	"github.com/pathnav/navigator/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = time.Second / 60

// journal records handler and step calls from the scheduler goroutine.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) count(s string) int {
	n := 0
	for _, e := range j.snapshot() {
		if e == s {
			n++
		}
	}
	return n
}

type fixture struct {
	clock *clock.Mock
	sched *Scheduler
	log   *journal
	out   *bytes.Buffer
	errCh chan error
	stop  context.CancelFunc
}

func newFixture(t *testing.T, steps ...Step) *fixture {
	t.Helper()

	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)

	f := &fixture{clock: clock.NewMock(), log: &journal{}, out: &bytes.Buffer{}}
	d.Register("note", func(e dispatcher.Event) (any, error) {
		f.log.add(e.Args[0])
		return nil, nil
	}, dispatcher.Args(1, 1))

	if len(steps) == 0 {
		steps = []Step{{Name: "record", Run: func(context.Context) error {
			f.log.add("step")
			return nil
		}}}
	}

	f.sched, err = New(Config{
		Clock:      f.clock,
		Interval:   interval,
		Dispatcher: d,
		Logger:     slog.New(slog.NewTextHandler(f.out, nil)),
		Steps:      steps,
	})
	require.NoError(t, err)
	d.Register("halt", func(dispatcher.Event) (any, error) {
		f.sched.Halt()
		return nil, nil
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.stop = cancel
	f.errCh = make(chan error, 1)
	go func() { f.errCh <- f.sched.Run(ctx) }()
	t.Cleanup(cancel)
}

// tickUntil advances the mock clock one interval at a time until cond holds.
func (f *fixture) tickUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.clock.Add(interval)
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func (f *fixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
		return nil
	}
}

func TestNew_Validation(t *testing.T) {
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = New(Config{Interval: 0, Dispatcher: d})
	assert.Error(t, err)

	_, err = New(Config{Interval: interval})
	assert.Error(t, err)

	s, err := New(Config{Interval: interval, Dispatcher: d})
	require.NoError(t, err)
	assert.NotNil(t, s.clock, "defaults to the wall clock")
}

func TestRun_CommandsBeforeSteps(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.Submit("note;a"))
	require.NoError(t, f.sched.Submit("note;b"))
	assert.Equal(t, 2, f.sched.Pending())

	f.start(t)
	f.tickUntil(t, func() bool { return f.log.count("step") >= 1 })
	f.stop()
	require.ErrorIs(t, f.wait(t), context.Canceled)

	entries := f.log.snapshot()
	require.GreaterOrEqual(t, len(entries), 3)
	assert.Equal(t, []string{"a", "b", "step"}, entries[:3])
	assert.Zero(t, f.sched.Pending())
}

func TestRun_RejectedCommandDoesNotStopLoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.Submit("bogus;1"))
	require.NoError(t, f.sched.Submit("note"))
	require.NoError(t, f.sched.Submit("note;kept"))

	f.start(t)
	f.tickUntil(t, func() bool { return f.log.count("step") >= 2 })
	f.stop()
	f.wait(t)

	assert.Equal(t, 1, f.log.count("kept"))
	assert.Contains(t, f.out.String(), "command rejected")
}

func TestRun_HaltSkipsSteps(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.Submit("note;last"))
	require.NoError(t, f.sched.Submit("halt"))

	f.start(t)
	var err error
	stopped := false
	f.tickUntil(t, func() bool {
		select {
		case err = <-f.errCh:
			stopped = true
		default:
		}
		return stopped
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"last"}, f.log.snapshot(), "commands before halt still run, steps do not")
	assert.Zero(t, f.sched.Ticks())
	assert.ErrorIs(t, f.sched.Submit("note;late"), ErrNotRunning)
}

func TestRun_HaltFromOutside(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.tickUntil(t, func() bool { return f.log.count("step") >= 1 })

	f.sched.Halt()
	f.sched.Halt()
	require.NoError(t, f.wait(t))
}

func TestRun_FailingStepIsLogged(t *testing.T) {
	var calls journal
	f := newFixture(t,
		Step{Name: "navigator", Run: func(context.Context) error {
			calls.add("navigator")
			return errors.New("non-finite correction")
		}},
		Step{Name: "sim", Run: func(context.Context) error {
			calls.add("sim")
			return nil
		}},
	)

	f.start(t)
	f.tickUntil(t, func() bool { return calls.count("sim") >= 2 })
	f.stop()
	f.wait(t)

	assert.GreaterOrEqual(t, calls.count("navigator"), 2)
	assert.Contains(t, f.out.String(), "tick step failed")
	assert.Contains(t, f.out.String(), "step=navigator")
}

func TestRun_StepCancellationEndsRun(t *testing.T) {
	f := newFixture(t, Step{Name: "navigator", Run: func(context.Context) error {
		return context.Canceled
	}})

	f.start(t)
	var err error
	f.tickUntil(t, func() bool {
		select {
		case err = <-f.errCh:
			return true
		default:
			return false
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmit_EmptyLine(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.sched.Submit("   "), dispatcher.ErrEmptyCommand)
	assert.Zero(t, f.sched.Pending())
}

func TestSubmit_Timestamp(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, f.sched.Submit("note;a"))

	events := f.sched.inbox.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), events[0].Timestamp)
}

func TestFeed(t *testing.T) {
	f := newFixture(t)

	err := f.sched.Feed(context.Background(), strings.NewReader("note;a\n\n   \nrecord;A;B\nnote;b\n"))
	require.NoError(t, err)

	events := f.sched.inbox.Snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, "note;a", events[0].String())
	assert.Equal(t, "record;A;B", events[1].String())
	assert.Equal(t, "note;b", events[2].String())
}

func TestFeed_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.sched.Feed(ctx, strings.NewReader("note;a\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.sched.Pending())
}
