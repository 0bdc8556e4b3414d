// Package trajectory records a demonstrated trajectory as sparse tick-indexed samples
// and replays it as a reference state.
package trajectory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/pathnav/navigator/internal/tick"
	"github.com/pathnav/navigator/internal/vehicle"
)

var (
	// ErrNotPlaying is returned when the reference state is read outside playback.
	ErrNotPlaying = errors.New("path is not playing")
	// ErrNotRecorded is returned when playback is requested on a path with no recording.
	ErrNotRecorded = errors.New("path has no recording")
	// ErrUnknownMode is returned for a Mode value outside the enum.
	ErrUnknownMode = errors.New("unknown path mode")
)

// Mode is the lifecycle state of a Path.
type Mode int

const (
	Idle Mode = iota
	Recording
	Playing
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Path is the recorded trajectory of one directed edge.
type Path struct {
	telemetry vehicle.Telemetry
	clock     tick.Clock

	points              map[tick.Tick]Point
	lastMotionTick      tick.Tick
	lastOrientationTick tick.Tick

	mode     Mode
	valid    bool
	duration tick.Tick
}

// New creates an empty idle path sampling the given telemetry.
func New(telemetry vehicle.Telemetry) *Path {
	return &Path{
		telemetry: telemetry,
		points:    make(map[tick.Tick]Point),
	}
}

// Mode returns the current lifecycle state.
func (p *Path) Mode() Mode { return p.mode }

// Valid reports whether a recording spanning at least one tick has been completed.
func (p *Path) Valid() bool { return p.valid }

// Duration is the tick at which the recording stopped.
func (p *Path) Duration() tick.Tick { return p.duration }

// Len returns the number of stored points.
func (p *Path) Len() int { return len(p.points) }

// Now returns the path's own clock tick.
func (p *Path) Now() tick.Tick { return p.clock.Now() }

// SetMode moves the path to mode. Same-mode transitions are no-ops.
func (p *Path) SetMode(mode Mode) error {
	if mode == p.mode {
		return nil
	}

	switch mode {
	case Recording:
		p.startRecording()
	case Playing:
		if !p.valid {
			return ErrNotRecorded
		}
		p.lastMotionTick = 0
		p.lastOrientationTick = 0
		p.clock.Start()
	case Idle:
		if p.mode == Recording {
			p.stopRecording()
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	p.mode = mode
	return nil
}

func (p *Path) startRecording() {
	clear(p.points)
	p.valid = false
	p.duration = 0
	p.clock.Start()
	p.lastMotionTick = 0
	p.lastOrientationTick = 0
	p.points[0] = fullPoint(p.telemetry)
}

func (p *Path) stopRecording() {
	now := p.clock.Now()
	p.duration = now
	p.points[now] = fullPoint(p.telemetry)
	p.lastMotionTick = now
	p.lastOrientationTick = now
	p.valid = now > 0
}

// Update runs one tick of recording or playback and then advances the clock.
func (p *Path) Update() {
	switch p.mode {
	case Recording:
		p.recordTick()
	case Playing:
		p.playTick()
	}
	p.clock.Advance()
}

func (p *Path) recordTick() {
	now := p.clock.Now()
	var pt Point

	motion := sampleMotion(p.telemetry)
	if last := p.points[p.lastMotionTick].Motion; last == nil || motionChanged(last, motion) {
		pt.Motion = motion
		p.lastMotionTick = now
	}

	orientation := sampleOrientation(p.telemetry)
	if last := p.points[p.lastOrientationTick].Orientation; last == nil || orientationChanged(last, orientation) {
		pt.Orientation = orientation
		p.lastOrientationTick = now
	}

	if pt.Empty() {
		return
	}
	p.points[now] = p.points[now].merge(pt)
}

func (p *Path) playTick() {
	now := p.clock.Now()
	if now >= p.duration {
		p.mode = Idle
		return
	}
	pt, ok := p.points[now]
	if !ok {
		return
	}
	if pt.Motion != nil {
		p.lastMotionTick = now
	}
	if pt.Orientation != nil {
		p.lastOrientationTick = now
	}
}

// Position dead-reckons from the last motion sample.
func (p *Path) Position() (r3.Vector, error) {
	if p.mode != Playing {
		return r3.Vector{}, ErrNotPlaying
	}
	m := p.points[p.lastMotionTick].Motion
	return m.Position.Add(m.Velocity.Mul(p.clock.SecondsSince(p.lastMotionTick))), nil
}

// Velocity returns the velocity of the last motion sample.
func (p *Path) Velocity() (r3.Vector, error) {
	if p.mode != Playing {
		return r3.Vector{}, ErrNotPlaying
	}
	return p.points[p.lastMotionTick].Motion.Velocity, nil
}

// Forward returns the forward axis of the last orientation sample.
func (p *Path) Forward() (r3.Vector, error) {
	if p.mode != Playing {
		return r3.Vector{}, ErrNotPlaying
	}
	return p.points[p.lastOrientationTick].Orientation.Forward, nil
}

// Up returns the up axis of the last orientation sample.
func (p *Path) Up() (r3.Vector, error) {
	if p.mode != Playing {
		return r3.Vector{}, ErrNotPlaying
	}
	return p.points[p.lastOrientationTick].Orientation.Up, nil
}

// Reference returns the full reconstructed state for the current tick.
func (p *Path) Reference() (Reference, error) {
	pos, err := p.Position()
	if err != nil {
		return Reference{}, err
	}
	m := p.points[p.lastMotionTick].Motion
	o := p.points[p.lastOrientationTick].Orientation
	return Reference{
		Position: pos,
		Velocity: m.Velocity,
		Forward:  o.Forward,
		Up:       o.Up,
	}, nil
}

// Efficiency is the share of elapsed ticks that needed no stored point.
// It is 0 before any tick has elapsed.
func (p *Path) Efficiency() float64 {
	elapsed := p.duration
	if p.mode == Recording {
		elapsed = p.clock.Now()
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(int64(elapsed)-int64(len(p.points))) / float64(elapsed)
}

// Points returns the stored points ordered by tick.
func (p *Path) Points() []TimedPoint {
	out := make([]TimedPoint, 0, len(p.points))
	for t, pt := range p.points {
		out = append(out, TimedPoint{Tick: t, Point: pt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}
