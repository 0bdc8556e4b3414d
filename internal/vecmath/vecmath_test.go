package vecmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func assertVec(t *testing.T, want, got r3.Vector) {
	t.Helper()
	assert.True(t, ApproxEqual(want, got, 1e-9), "want %v, got %v", want, got)
}

func TestApproxEqual(t *testing.T) {
	a := r3.Vector{X: 1, Y: 2, Z: 3}
	assert.True(t, ApproxEqual(a, r3.Vector{X: 1 + 5e-6, Y: 2, Z: 3}, SampleEpsilon))
	assert.False(t, ApproxEqual(a, r3.Vector{X: 1, Y: 2 + 2e-5, Z: 3}, SampleEpsilon))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(r3.Vector{X: 1}))
	assert.False(t, IsFinite(r3.Vector{Y: math.NaN()}))
	assert.False(t, IsFinite(r3.Vector{Z: math.Inf(-1)}))
}

func TestReject(t *testing.T) {
	got := Reject(r3.Vector{X: 1, Y: 2, Z: 3}, LocalUp)
	assertVec(t, r3.Vector{X: 1, Z: 3}, got)
}

func TestAzimuthElevation(t *testing.T) {
	tests := []struct {
		name     string
		in       r3.Vector
		az, elev float64
	}{
		{"ahead", LocalForward, 0, 0},
		{"right", LocalRight, math.Pi / 2, 0},
		{"left", LocalRight.Mul(-1), -math.Pi / 2, 0},
		{"straight up", LocalUp, 0, math.Pi / 2},
		{"ahead and up", r3.Vector{Y: 1, Z: -1}, 0, math.Pi / 4},
		{"zero", r3.Vector{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			az, elev := AzimuthElevation(tt.in)
			assert.InDelta(t, tt.az, az, 1e-12)
			assert.InDelta(t, tt.elev, elev, 1e-12)
		})
	}
}

func TestNewFrame_Axes(t *testing.T) {
	// Facing world +X with up +Z.
	f := NewFrame(r3.Vector{X: 1}, r3.Vector{Z: 1})
	assert.True(t, f.IsFinite())
	assertVec(t, r3.Vector{X: 1}, f.Forward())
	assertVec(t, r3.Vector{Z: 1}, f.Up())
	assertVec(t, r3.Vector{Y: -1}, f.Right())
}

func TestNewFrame_Identity(t *testing.T) {
	f := NewFrame(LocalForward, LocalUp)
	assertVec(t, LocalForward, f.Forward())
	assertVec(t, LocalUp, f.Up())
	assertVec(t, LocalRight, f.Right())
}

func TestNewFrame_Degenerate(t *testing.T) {
	assert.False(t, NewFrame(LocalUp, LocalUp).IsFinite())
	assert.False(t, NewFrame(r3.Vector{}, LocalUp).IsFinite())
}

func TestFrame_InverseRotate(t *testing.T) {
	f := NewFrame(r3.Vector{X: 1, Y: 1}, r3.Vector{Z: 1})
	v := r3.Vector{X: 0.3, Y: -2, Z: 5}
	assertVec(t, v, f.InverseRotate(f.Rotate(v)))
	assertVec(t, LocalForward, f.InverseRotate(f.Forward()))
}

func TestFrame_Compose(t *testing.T) {
	// Yaw a quarter turn to the left around local up.
	f := IdentityFrame.Compose(AxisAngle(LocalUp, math.Pi/2))
	assertVec(t, r3.Vector{X: -1}, f.Forward())
	assertVec(t, LocalUp, f.Up())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, -1.0, Clamp(-3, -1, 1))
	assert.Equal(t, 0.5, Clamp(0.5, -1, 1))
	assert.Equal(t, 1.0, Clamp(2, -1, 1))
}
