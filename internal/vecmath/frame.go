package vecmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Frame is an orientation in world space, stored as a unit quaternion that maps
// local-frame vectors to world vectors.
type Frame struct {
	q quat.Number
}

// IdentityFrame is a frame aligned with the world axes.
var IdentityFrame = Frame{q: quat.Number{Real: 1}}

// NewFrame builds a frame from world forward and up directions. The pair is
// orthonormalized around forward. Parallel or zero inputs produce a non-finite frame.
func NewFrame(forward, up r3.Vector) Frame {
	f := forward.Normalize()
	r := f.Cross(up).Normalize()
	u := r.Cross(f)
	if IsZero(r) {
		nan := math.NaN()
		return Frame{q: quat.Number{Real: nan, Imag: nan, Jmag: nan, Kmag: nan}}
	}
	return Frame{q: quatFromBasis(r, u, f.Mul(-1))}
}

// FrameFromQuaternion wraps q, normalizing it.
func FrameFromQuaternion(q quat.Number) Frame {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityFrame
	}
	return Frame{q: quat.Scale(1/n, q)}
}

// quatFromBasis converts the rotation matrix whose columns are the local X, Y and Z
// axes expressed in world space.
func quatFromBasis(x, y, z r3.Vector) quat.Number {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q quat.Number
	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{Real: 0.25 * s, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{Real: (m21 - m12) / s, Imag: 0.25 * s, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: 0.25 * s, Kmag: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: 0.25 * s}
	}
	return q
}

// Quaternion returns the local-to-world rotation.
func (f Frame) Quaternion() quat.Number {
	return f.q
}

// IsFinite reports whether the frame holds a usable rotation.
func (f Frame) IsFinite() bool {
	return isFinite(f.q.Real) && isFinite(f.q.Imag) && isFinite(f.q.Jmag) && isFinite(f.q.Kmag)
}

// Rotate maps a local-frame vector into world space.
func (f Frame) Rotate(v r3.Vector) r3.Vector {
	return rotate(f.q, v)
}

// InverseRotate maps a world vector into the local frame.
func (f Frame) InverseRotate(v r3.Vector) r3.Vector {
	return rotate(quat.Conj(f.q), v)
}

// Forward returns the frame's forward axis in world space.
func (f Frame) Forward() r3.Vector {
	return f.Rotate(LocalForward)
}

// Up returns the frame's up axis in world space.
func (f Frame) Up() r3.Vector {
	return f.Rotate(LocalUp)
}

// Right returns the frame's right axis in world space.
func (f Frame) Right() r3.Vector {
	return f.Rotate(LocalRight)
}

// Compose returns the frame obtained by applying the local rotation r after f.
func (f Frame) Compose(r quat.Number) Frame {
	return FrameFromQuaternion(quat.Mul(f.q, r))
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}

// AxisAngle returns the unit quaternion rotating by theta radians around axis.
func AxisAngle(axis r3.Vector, theta float64) quat.Number {
	n := axis.Norm()
	if n == 0 || theta == 0 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(theta/2) / n
	return quat.Number{Real: math.Cos(theta / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}
