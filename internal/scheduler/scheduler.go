// Package scheduler drives the navigator at a fixed tick interval and feeds it the
// commands that arrived since the previous tick.
package scheduler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pathnav/navigator/internal/dispatcher"
	"github.com/pathnav/navigator/internal/queue"
)

// ErrNotRunning is returned by Submit after the scheduler has stopped.
var ErrNotRunning = errors.New("scheduler stopped")

// Step is one stage of the per-tick update. A failing step is logged and the
// remaining steps still run.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config holds the scheduler dependencies.
type Config struct {
	// Clock defaults to the wall clock.
	Clock      clock.Clock
	Interval   time.Duration
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
	Steps      []Step
}

// Scheduler owns the update goroutine. Submit may be called from any goroutine.
type Scheduler struct {
	clock      clock.Clock
	interval   time.Duration
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	steps      []Step

	inbox *queue.Queue[dispatcher.Event]

	haltOnce sync.Once
	halted   chan struct{}
	done     chan struct{}
	ticks    uint64
}

// New validates cfg and builds a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid tick interval %s", cfg.Interval)
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("scheduler needs a dispatcher")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		clock:      cfg.Clock,
		interval:   cfg.Interval,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		steps:      cfg.Steps,
		inbox:      queue.New[dispatcher.Event](),
		halted:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Submit parses line and queues it for the next tick.
func (s *Scheduler) Submit(line string) error {
	select {
	case <-s.done:
		return ErrNotRunning
	default:
	}
	e, err := dispatcher.ParseCommand(line, s.clock.Now())
	if err != nil {
		return err
	}
	s.inbox.Push(e)
	return nil
}

// Pending returns the number of queued commands.
func (s *Scheduler) Pending() int {
	return s.inbox.Len()
}

// Halt asks Run to return after the commands of the current tick. Safe to call
// from a command handler and more than once.
func (s *Scheduler) Halt() {
	s.haltOnce.Do(func() { close(s.halted) })
}

// Ticks returns the number of completed ticks. Only meaningful after Run returns.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks
}

// Run ticks until ctx is done or Halt is called. It returns nil on halt and the
// context error on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler canceled", "ticks", s.ticks)
			return ctx.Err()
		case <-s.halted:
			s.logger.Info("scheduler halted", "ticks", s.ticks)
			return nil
		case <-ticker.C:
		}

		s.drain()
		if s.isHalted() {
			s.logger.Info("scheduler halted", "ticks", s.ticks)
			return nil
		}

		for _, step := range s.steps {
			if err := step.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("tick step failed", "step", step.Name, "error", err)
			}
		}
		s.ticks++
	}
}

// drain dispatches every queued command in arrival order. Failed commands are
// logged and dropped.
func (s *Scheduler) drain() {
	for _, e := range s.inbox.Drain() {
		result, err := s.dispatcher.Dispatch(e)
		if err != nil {
			s.logger.Warn("command rejected", "command", e.String(), "error", err)
			continue
		}
		if result != nil {
			s.logger.Info("command result", "command", e.Command, "result", result)
		}
	}
}

func (s *Scheduler) isHalted() bool {
	select {
	case <-s.halted:
		return true
	default:
		return false
	}
}

// Feed submits every non-blank line read from r until EOF, ctx is done or the
// scheduler stops. Lines that fail to parse are logged and skipped.
func (s *Scheduler) Feed(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if err := s.Submit(line); err != nil {
			if errors.Is(err, ErrNotRunning) {
				return err
			}
			if !errors.Is(err, dispatcher.ErrEmptyCommand) {
				s.logger.Warn("command ignored", "line", line, "error", err)
			}
		}
	}
	return scanner.Err()
}
