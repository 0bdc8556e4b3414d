// Package dispatcher parses semicolon-delimited command lines and routes them to
// registered handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Separator splits a command line into its verb and arguments.
const Separator = ";"

var (
	// ErrUnknownCommand is returned when no handler is registered for the verb.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrEmptyCommand is returned for a blank command line.
	ErrEmptyCommand = errors.New("empty command")
	// ErrArgCount is returned when a command carries the wrong number of arguments.
	ErrArgCount = errors.New("wrong number of arguments")
)

// Event is one parsed command.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

func (e Event) String() string {
	return strings.Join(append([]string{e.Command}, e.Args...), Separator)
}

// ParseCommand splits line on Separator. The first token is the case-sensitive verb.
// Surrounding whitespace of the whole line is ignored; tokens are kept verbatim.
func ParseCommand(line string, at time.Time) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, ErrEmptyCommand
	}
	tokens := strings.Split(line, Separator)
	return Event{Command: tokens[0], Args: tokens[1:], Timestamp: at}, nil
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	minArgs int
	maxArgs int
	logged  bool
}

// Args rejects events with fewer than least or more than most arguments.
// A negative most means unbounded.
func Args(least, most int) Option {
	return func(c *config) {
		c.minArgs = least
		c.maxArgs = most
	}
}

// Logged adds debug logging to the handler and error logging on failure.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Dispatch is meant to be called
// from the single goroutine that owns the handlers' state.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	processed metric.Int64Counter
	failed    metric.Int64Counter
	latency   metric.Float64Histogram
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	m := meter()
	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.commands.processed",
		metric.WithDescription("Total commands handled successfully"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.commands.failed",
		metric.WithDescription("Total commands rejected or failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.latency, err = m.Float64Histogram(
		"dispatcher.commands.duration",
		metric.WithDescription("Command handling time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{maxArgs: -1}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := withArgs(cfg.minArgs, cfg.maxArgs, h)

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	cmdAttr := metric.WithAttributes(attribute.String("command", e.Command))

	h, ok := d.handlers[e.Command]
	if !ok {
		d.failed.Add(context.Background(), 1, cmdAttr)
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, e.Command)
	}

	start := time.Now()
	result, err := h(e)
	d.latency.Record(context.Background(), float64(time.Since(start).Microseconds())/1000, cmdAttr)
	if err != nil {
		d.failed.Add(context.Background(), 1, cmdAttr)
		return result, err
	}
	d.processed.Add(context.Background(), 1, cmdAttr)
	return result, nil
}

// DispatchLine parses line and dispatches it.
func (d *Dispatcher) DispatchLine(line string) (any, error) {
	e, err := ParseCommand(line, time.Now())
	if err != nil {
		return nil, err
	}
	return d.Dispatch(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

func withArgs(least, most int, h HandlerFunc) HandlerFunc {
	if least <= 0 && most < 0 {
		return h
	}
	return func(e Event) (any, error) {
		n := len(e.Args)
		if n < least || (most >= 0 && n > most) {
			return nil, fmt.Errorf("%w: %s takes %s, got %d", ErrArgCount, e.Command, arity(least, most), n)
		}
		return h(e)
	}
}

func arity(least, most int) string {
	switch {
	case most < 0:
		return fmt.Sprintf("at least %d", least)
	case least == most:
		return fmt.Sprintf("exactly %d", least)
	default:
		return fmt.Sprintf("%d to %d", least, most)
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("command failed", "command", command, "line", e.String(), "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
