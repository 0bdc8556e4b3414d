package trajectory

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/pathnav/navigator/internal/tick"
	"github.com/pathnav/navigator/internal/vecmath"
	"github.com/pathnav/navigator/internal/vehicle"
)

// MotionSample is the position and velocity captured when velocity changes.
type MotionSample struct {
	Position r3.Vector `json:"position"`
	Velocity r3.Vector `json:"velocity"`
}

// OrientationSample is the forward and up axes captured when orientation changes.
type OrientationSample struct {
	Forward r3.Vector `json:"forward"`
	Up      r3.Vector `json:"up"`
}

// Point is what a path stores at one tick. At least one sub-sample is set.
type Point struct {
	Motion      *MotionSample      `json:"motion,omitempty"`
	Orientation *OrientationSample `json:"orientation,omitempty"`
}

// Full reports whether both sub-samples are set.
func (p Point) Full() bool {
	return p.Motion != nil && p.Orientation != nil
}

// Empty reports whether neither sub-sample is set.
func (p Point) Empty() bool {
	return p.Motion == nil && p.Orientation == nil
}

func (p Point) String() string {
	switch {
	case p.Full():
		return "motion+orientation"
	case p.Motion != nil:
		return "motion"
	case p.Orientation != nil:
		return "orientation"
	default:
		return "empty"
	}
}

// merge overlays the populated sub-samples of next onto p.
func (p Point) merge(next Point) Point {
	if next.Motion != nil {
		p.Motion = next.Motion
	}
	if next.Orientation != nil {
		p.Orientation = next.Orientation
	}
	return p
}

// TimedPoint is a Point together with its tick, as returned by Path.Points.
type TimedPoint struct {
	Tick tick.Tick `json:"tick"`
	Point
}

// Reference is the reconstructed state a playing path asks the vehicle to follow.
type Reference struct {
	Position r3.Vector
	Velocity r3.Vector
	Forward  r3.Vector
	Up       r3.Vector
}

func (r Reference) String() string {
	return fmt.Sprintf("pos=%v vel=%v fwd=%v up=%v", r.Position, r.Velocity, r.Forward, r.Up)
}

func sampleMotion(t vehicle.Telemetry) *MotionSample {
	return &MotionSample{Position: t.Position(), Velocity: t.Velocity()}
}

func sampleOrientation(t vehicle.Telemetry) *OrientationSample {
	f := t.Frame()
	return &OrientationSample{Forward: f.Forward(), Up: f.Up()}
}

func fullPoint(t vehicle.Telemetry) Point {
	return Point{Motion: sampleMotion(t), Orientation: sampleOrientation(t)}
}

func motionChanged(last *MotionSample, now *MotionSample) bool {
	return !vecmath.ApproxEqual(last.Velocity, now.Velocity, vecmath.SampleEpsilon)
}

func orientationChanged(last *OrientationSample, now *OrientationSample) bool {
	return !vecmath.ApproxEqual(last.Forward, now.Forward, vecmath.SampleEpsilon) ||
		!vecmath.ApproxEqual(last.Up, now.Up, vecmath.SampleEpsilon)
}
