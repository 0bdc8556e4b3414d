// Package tick converts between discrete scheduler ticks and elapsed seconds.
//
// The seconds-per-tick constant is process-wide: Initialize sets it once from the
// configured update rate and every Clock reads it.
package tick

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedRate is returned for an update rate with no seconds-per-tick mapping.
	ErrUnsupportedRate = errors.New("unsupported tick rate")
	// ErrAlreadyInitialized is returned when Initialize is called again with a different rate.
	ErrAlreadyInitialized = errors.New("tick rate already initialized")
	// ErrNotInitialized is the panic value for clock conversions before Initialize.
	ErrNotInitialized = errors.New("tick rate not initialized")
)

// Tick is a scheduler invocation count.
type Tick int64

// Rate is one of the discrete update rates the host scheduler supports.
type Rate int

const (
	RateFast Rate = iota + 1
	RateMedium
	RateSlow
)

func (r Rate) String() string {
	switch r {
	case RateFast:
		return "fast"
	case RateMedium:
		return "medium"
	case RateSlow:
		return "slow"
	default:
		return fmt.Sprintf("Rate(%d)", int(r))
	}
}

// SecondsPerTick returns the fixed duration of one tick at this rate.
func (r Rate) SecondsPerTick() (float64, error) {
	switch r {
	case RateFast:
		return 1.0 / 60, nil
	case RateMedium:
		return 1.0 / 6, nil
	case RateSlow:
		return 5.0 / 3, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedRate, r)
	}
}

// ParseRate converts a configured rate name into a Rate.
func ParseRate(value string) (Rate, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fast", "update1":
		return RateFast, nil
	case "medium", "update10":
		return RateMedium, nil
	case "slow", "update100":
		return RateSlow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedRate, value)
	}
}

var (
	mu             sync.RWMutex
	rate           Rate
	secondsPerTick float64
)

// Initialize sets the process-wide seconds-per-tick from rate.
// Calling it again with the same rate is a no-op.
func Initialize(r Rate) error {
	spt, err := r.SecondsPerTick()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if rate != 0 && rate != r {
		return fmt.Errorf("%w: have %s, got %s", ErrAlreadyInitialized, rate, r)
	}
	rate = r
	secondsPerTick = spt
	return nil
}

// SecondsPerTick returns the process-wide tick duration, or 0 before Initialize.
func SecondsPerTick() float64 {
	mu.RLock()
	defer mu.RUnlock()
	return secondsPerTick
}

// CurrentRate returns the initialized rate, or 0 before Initialize.
func CurrentRate() Rate {
	mu.RLock()
	defer mu.RUnlock()
	return rate
}

func mustSecondsPerTick() float64 {
	spt := SecondsPerTick()
	if spt == 0 {
		panic(ErrNotInitialized)
	}
	return spt
}

// Clock is a per-owner tick counter.
type Clock struct {
	runtime Tick
}

// Start resets the counter to zero.
func (c *Clock) Start() {
	c.runtime = 0
}

// Advance increments the counter, wrapping to zero at the maximum value.
func (c *Clock) Advance() {
	if c.runtime >= math.MaxInt64-1 {
		c.runtime = 0
		return
	}
	c.runtime++
}

// Now returns the current tick.
func (c *Clock) Now() Tick {
	return c.runtime
}

// SecondsSince returns the seconds elapsed from start to now. Negative when start is ahead.
func (c *Clock) SecondsSince(start Tick) float64 {
	return float64(c.runtime-start) * mustSecondsPerTick()
}

// TickAfter returns the tick reached seconds from now, rounding up.
func (c *Clock) TickAfter(seconds float64) Tick {
	ticks := math.Ceil(seconds / mustSecondsPerTick())
	return c.runtime + Tick(ticks)
}
