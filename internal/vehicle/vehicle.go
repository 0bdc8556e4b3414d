// Package vehicle defines what the guidance core needs from the host vehicle:
// telemetry from the primary controller and the orientation and propulsion actuators.
package vehicle

import (
	"github.com/golang/geo/r3"

	"github.com/pathnav/navigator/internal/vecmath"
)

// Telemetry is the world-space state of the primary controller, pulled once per tick.
type Telemetry interface {
	Position() r3.Vector
	Velocity() r3.Vector
	// Frame is the controller orientation. Forward and Up are orthonormal.
	Frame() vecmath.Frame
}

// OrientationActuator is a gyroscope-like block accepting per-axis torque overrides
// in its own local frame (X pitch, Y yaw, Z roll).
type OrientationActuator interface {
	Name() string
	Frame() vecmath.Frame
	SetOverride(torque r3.Vector)
	ReleaseOverride()
	// Valid is false once the actuator has been removed from the vehicle.
	Valid() bool
}

// PropulsionActuator is a thruster pushing the vehicle along Direction.
type PropulsionActuator interface {
	Name() string
	// Direction is the world-space unit vector of the force the thruster applies.
	Direction() r3.Vector
	MaxThrust() float64
	SetThrust(fraction float64)
	Valid() bool
}

// Provider exposes the blocks of one vehicle.
type Provider interface {
	Primary() Telemetry
	OrientationActuators() []OrientationActuator
	PropulsionActuators() []PropulsionActuator
}

// Propulsion is the black-box velocity controller driven by the navigator.
type Propulsion interface {
	SetVelocity(v r3.Vector)
	Update()
	Reset()
}

// Attitude is the orientation controller driven by the navigator.
type Attitude interface {
	FaceVectors(forward, up r3.Vector) error
	Reset()
}

// Forward returns the telemetry forward direction.
func Forward(t Telemetry) r3.Vector {
	return t.Frame().Forward()
}

// Up returns the telemetry up direction.
func Up(t Telemetry) r3.Vector {
	return t.Frame().Up()
}
