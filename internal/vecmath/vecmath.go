// Package vecmath holds the vector and rotation helpers shared by the recorder and
// the attitude controller.
//
// Local frames follow the host convention: right is +X, up is +Y, forward is -Z.
package vecmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// SampleEpsilon is the per-component tolerance used to decide a sample changed.
const SampleEpsilon = 1e-5

var (
	// LocalRight is the right axis of any local frame.
	LocalRight = r3.Vector{X: 1}
	// LocalUp is the up axis of any local frame.
	LocalUp = r3.Vector{Y: 1}
	// LocalForward is the forward axis of any local frame.
	LocalForward = r3.Vector{Z: -1}
)

// ApproxEqual reports whether a and b differ by no more than eps on every component.
func ApproxEqual(a, b r3.Vector, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps &&
		math.Abs(a.Y-b.Y) <= eps &&
		math.Abs(a.Z-b.Z) <= eps
}

// IsFinite reports whether no component is NaN or infinite.
func IsFinite(v r3.Vector) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsZero reports whether v is exactly the zero vector.
func IsZero(v r3.Vector) bool {
	return v == r3.Vector{}
}

// Clamp keeps value inside [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// ScalarProjection projects value onto guide, which must be of length 1.
// A NaN projection is reported as 0.
func ScalarProjection(value, guide r3.Vector) float64 {
	p := value.Dot(guide)
	if math.IsNaN(p) {
		return 0
	}
	return p
}

// Reject returns the component of value orthogonal to the unit vector guide.
func Reject(value, guide r3.Vector) r3.Vector {
	return value.Sub(guide.Mul(ScalarProjection(value, guide)))
}

// AzimuthElevation decomposes a local-frame direction into an azimuth around the up
// axis (positive to the right of forward) and an elevation above the right/forward
// plane. The zero vector yields zero angles.
func AzimuthElevation(v r3.Vector) (azimuth, elevation float64) {
	if IsZero(v) {
		return 0, 0
	}
	horizontal := math.Hypot(v.X, v.Z)
	elevation = math.Atan2(v.Y, horizontal)
	if horizontal == 0 {
		return 0, elevation
	}
	azimuth = math.Atan2(v.X, -v.Z)
	return azimuth, elevation
}
