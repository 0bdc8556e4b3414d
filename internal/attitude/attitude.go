// Package attitude steers a vehicle toward a desired forward and up orientation by
// driving every orientation actuator with three PID loops.
//
// Angle errors are the right-handed rotation from the desired orientation to the
// current one about the controller's local axes: X pitch (right), Y yaw (up) and
// Z roll (backward). The PID output is an angular velocity in the same axes.
package attitude

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/pathnav/navigator/internal/pid"
	"github.com/pathnav/navigator/internal/vecmath"
	"github.com/pathnav/navigator/internal/vehicle"
)

// SnapThreshold is the angle in radians below which an axis error is treated as zero.
const SnapThreshold = 0.001

// ErrNonFinite is returned when a control cycle produces a NaN or infinite value.
// No actuator is written during such a cycle.
var ErrNonFinite = errors.New("non-finite attitude correction")

// Config holds one PID configuration per axis.
type Config struct {
	Pitch pid.Config `json:"pitch" mapstructure:"pitch"`
	Yaw   pid.Config `json:"yaw" mapstructure:"yaw"`
	Roll  pid.Config `json:"roll" mapstructure:"roll"`
}

// DefaultConfig uses pid.DefaultConfig on every axis.
func DefaultConfig() Config {
	return Config{Pitch: pid.DefaultConfig(), Yaw: pid.DefaultConfig(), Roll: pid.DefaultConfig()}
}

// Controller is the attitude controller of one vehicle.
type Controller struct {
	pitch *pid.Controller
	yaw   *pid.Controller
	roll  *pid.Controller

	reference vehicle.Telemetry
	actuators []vehicle.OrientationActuator

	lastErrors r3.Vector
}

var _ vehicle.Attitude = (*Controller)(nil)

// New creates a controller using the provider's orientation actuators and its primary
// controller as the reference frame.
func New(cfg Config, provider vehicle.Provider) *Controller {
	return &Controller{
		pitch:     pid.New(cfg.Pitch),
		yaw:       pid.New(cfg.Yaw),
		roll:      pid.New(cfg.Roll),
		reference: provider.Primary(),
		actuators: provider.OrientationActuators(),
	}
}

// Reset releases every actuator, drops the ones no longer on the vehicle and clears
// the PID state.
func (c *Controller) Reset() {
	kept := c.actuators[:0]
	for _, a := range c.actuators {
		a.ReleaseOverride()
		if a.Valid() {
			kept = append(kept, a)
		}
	}
	clear(c.actuators[len(kept):])
	c.actuators = kept

	c.pitch.Reset()
	c.yaw.Reset()
	c.roll.Reset()
	c.lastErrors = r3.Vector{}
}

// Actuators returns the number of actuators currently driven.
func (c *Controller) Actuators() int {
	return len(c.actuators)
}

// LastErrors returns the snapped angle errors of the last successful FaceVectors call.
func (c *Controller) LastErrors() r3.Vector {
	return c.lastErrors
}

// Diagnostics returns the pitch, yaw and roll PID snapshots.
func (c *Controller) Diagnostics() [3]pid.Diagnostics {
	return [3]pid.Diagnostics{c.pitch.Diagnostics(), c.yaw.Diagnostics(), c.roll.Diagnostics()}
}

// FaceVectors runs one control cycle toward the desired world forward and up.
// A zero vector leaves its axes uncontrolled.
func (c *Controller) FaceVectors(forward, up r3.Vector) error {
	frame := c.reference.Frame()
	errs := AngleErrors(frame, forward, up)
	if !vecmath.IsFinite(errs) {
		return fmt.Errorf("%w: angle errors %v", ErrNonFinite, errs)
	}

	local := r3.Vector{
		X: c.pitch.Control(-errs.X),
		Y: c.yaw.Control(-errs.Y),
		Z: c.roll.Control(-errs.Z),
	}
	world := frame.Rotate(local)

	commands := make([]r3.Vector, len(c.actuators))
	for i, a := range c.actuators {
		v := a.Frame().InverseRotate(world)
		if !vecmath.IsFinite(v) {
			return fmt.Errorf("%w: actuator %s command %v", ErrNonFinite, a.Name(), v)
		}
		commands[i] = v
	}
	for i, a := range c.actuators {
		a.SetOverride(commands[i])
	}

	c.lastErrors = errs
	return nil
}

// AngleErrors returns the pitch, yaw and roll errors of frame relative to the desired
// forward and up, snapped to zero below SnapThreshold.
func AngleErrors(frame vecmath.Frame, desiredForward, desiredUp r3.Vector) r3.Vector {
	var e r3.Vector

	if !vecmath.IsZero(desiredForward) {
		azimuth, elevation := vecmath.AzimuthElevation(frame.InverseRotate(desiredForward))
		e.X = -elevation
		e.Y = azimuth
	}

	if !vecmath.IsZero(desiredUp) {
		e.Z = rollError(frame, desiredUp)
	}

	return r3.Vector{X: snap(e.X), Y: snap(e.Y), Z: snap(e.Z)}
}

func rollError(frame vecmath.Frame, desiredUp r3.Vector) float64 {
	projected := vecmath.Reject(desiredUp, frame.Forward())
	n := projected.Norm()
	if n == 0 {
		// desired up lies along the current forward axis
		return math.NaN()
	}
	projected = projected.Mul(1 / n)

	angle := math.Acos(vecmath.Clamp(projected.Dot(frame.Up()), -1, 1))
	if projected.Dot(frame.Right()) < 0 {
		angle = -angle
	}
	return angle
}

func snap(v float64) float64 {
	if math.Abs(v) < SnapThreshold {
		return 0
	}
	return v
}
