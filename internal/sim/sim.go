// Package sim is a kinematic vehicle used by the host binary and by tests. It
// implements the vehicle interfaces with point-mass translation and gyro-rate rotation.
package sim

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/pathnav/navigator/internal/vecmath"
	"github.com/pathnav/navigator/internal/vehicle"
)

// Config describes the simulated vehicle.
type Config struct {
	Name string `mapstructure:"vehicleName"`
	// Mass in kg.
	Mass float64 `mapstructure:"mass"`
	// Gyros is the number of orientation actuators, all aligned with the hull.
	Gyros int `mapstructure:"gyros"`
	// MaxThrust is the force in newtons of each of the six axis thrusters.
	MaxThrust float64 `mapstructure:"maxThrust"`
	// MaxRate caps each gyro axis in rad/s.
	MaxRate float64 `mapstructure:"maxRate"`
	// RotationLag is the time constant in seconds with which the hull spin follows
	// the gyro command. Zero makes it follow instantly.
	RotationLag float64 `mapstructure:"rotationLag"`
}

// DefaultConfig is a small drone.
func DefaultConfig() Config {
	return Config{Name: "drone", Mass: 1000, Gyros: 1, MaxThrust: 20000, MaxRate: 3.14, RotationLag: 0.5}
}

// Vehicle is the simulated hull. It is not safe for concurrent use.
type Vehicle struct {
	name     string
	mass     float64
	lag      float64
	position r3.Vector
	velocity r3.Vector
	frame    vecmath.Frame
	// spin is the world-space angular velocity in rad/s.
	spin r3.Vector

	gyros     []*Gyro
	thrusters []*Thruster
}

var (
	_ vehicle.Provider  = (*Vehicle)(nil)
	_ vehicle.Telemetry = (*Vehicle)(nil)
)

// thrusterAxes are the hull-local directions of the six axis thrusters.
var thrusterAxes = []struct {
	name string
	dir  r3.Vector
}{
	{"forward", vecmath.LocalForward},
	{"backward", vecmath.LocalForward.Mul(-1)},
	{"up", vecmath.LocalUp},
	{"down", vecmath.LocalUp.Mul(-1)},
	{"right", vecmath.LocalRight},
	{"left", vecmath.LocalRight.Mul(-1)},
}

// New builds a vehicle at the origin facing world -Z with up +Y.
func New(cfg Config) *Vehicle {
	if cfg.Mass <= 0 {
		cfg.Mass = 1
	}
	v := &Vehicle{
		name:  cfg.Name,
		mass:  cfg.Mass,
		lag:   cfg.RotationLag,
		frame: vecmath.IdentityFrame,
	}
	for i := 0; i < cfg.Gyros; i++ {
		v.gyros = append(v.gyros, &Gyro{
			name:    fmt.Sprintf("%s-gyro-%d", cfg.Name, i),
			hull:    v,
			local:   quat.Number{Real: 1},
			maxRate: cfg.MaxRate,
		})
	}
	for _, axis := range thrusterAxes {
		v.thrusters = append(v.thrusters, &Thruster{
			name:  fmt.Sprintf("%s-thruster-%s", cfg.Name, axis.name),
			hull:  v,
			local: axis.dir,
			max:   cfg.MaxThrust,
		})
	}
	return v
}

// Name returns the configured vehicle name.
func (v *Vehicle) Name() string { return v.name }

// Primary returns the vehicle itself as the telemetry source.
func (v *Vehicle) Primary() vehicle.Telemetry { return v }

// OrientationActuators returns the gyros.
func (v *Vehicle) OrientationActuators() []vehicle.OrientationActuator {
	out := make([]vehicle.OrientationActuator, 0, len(v.gyros))
	for _, g := range v.gyros {
		out = append(out, g)
	}
	return out
}

// PropulsionActuators returns the thrusters.
func (v *Vehicle) PropulsionActuators() []vehicle.PropulsionActuator {
	out := make([]vehicle.PropulsionActuator, 0, len(v.thrusters))
	for _, t := range v.thrusters {
		out = append(out, t)
	}
	return out
}

func (v *Vehicle) Position() r3.Vector    { return v.position }
func (v *Vehicle) Velocity() r3.Vector    { return v.velocity }
func (v *Vehicle) Frame() vecmath.Frame   { return v.frame }
func (v *Vehicle) Gyros() []*Gyro         { return v.gyros }
func (v *Vehicle) Thrusters() []*Thruster { return v.thrusters }

// SetPosition teleports the vehicle.
func (v *Vehicle) SetPosition(p r3.Vector) { v.position = p }

// SetVelocity overrides the current linear velocity.
func (v *Vehicle) SetVelocity(vel r3.Vector) { v.velocity = vel }

// SetFrame overrides the current orientation.
func (v *Vehicle) SetFrame(f vecmath.Frame) { v.frame = f }

// AddGyro mounts an extra gyro rotated by local relative to the hull.
func (v *Vehicle) AddGyro(name string, local quat.Number, maxRate float64) *Gyro {
	g := &Gyro{name: name, hull: v, local: local, maxRate: maxRate}
	v.gyros = append(v.gyros, g)
	return g
}

// Step integrates dt seconds. Position moves with the velocity held at the start of
// the step, then thrust accelerates the hull and the spin relaxes toward the mean
// gyro command. Without any override the hull spins down.
func (v *Vehicle) Step(dt float64) {
	v.position = v.position.Add(v.velocity.Mul(dt))

	var force r3.Vector
	for _, t := range v.thrusters {
		if t.removed {
			continue
		}
		force = force.Add(t.Direction().Mul(t.fraction * t.max))
	}
	v.velocity = v.velocity.Add(force.Mul(dt / v.mass))

	var target r3.Vector
	active := 0
	for _, g := range v.gyros {
		if g.removed || !g.override {
			continue
		}
		target = target.Add(g.Frame().Rotate(g.rate))
		active++
	}
	if active > 0 {
		target = target.Mul(1 / float64(active))
	}

	alpha := 1.0
	if v.lag > 0 {
		alpha = math.Min(1, dt/v.lag)
	}
	v.spin = v.spin.Add(target.Sub(v.spin).Mul(alpha))
	if angle := v.spin.Norm() * dt; angle > 0 {
		v.frame = vecmath.FrameFromQuaternion(quat.Mul(vecmath.AxisAngle(v.spin, angle), v.frame.Quaternion()))
	}
}

// Gyro is a simulated orientation actuator. Its override is an angular velocity in
// its own frame.
type Gyro struct {
	name     string
	hull     *Vehicle
	local    quat.Number
	maxRate  float64
	rate     r3.Vector
	override bool
	removed  bool
}

func (g *Gyro) Name() string { return g.name }

func (g *Gyro) Frame() vecmath.Frame {
	return g.hull.frame.Compose(g.local)
}

func (g *Gyro) SetOverride(torque r3.Vector) {
	if g.maxRate > 0 {
		torque = r3.Vector{
			X: vecmath.Clamp(torque.X, -g.maxRate, g.maxRate),
			Y: vecmath.Clamp(torque.Y, -g.maxRate, g.maxRate),
			Z: vecmath.Clamp(torque.Z, -g.maxRate, g.maxRate),
		}
	}
	g.rate = torque
	g.override = true
}

func (g *Gyro) ReleaseOverride() {
	g.rate = r3.Vector{}
	g.override = false
}

func (g *Gyro) Valid() bool { return !g.removed }

// Overriding reports whether the gyro currently holds an override.
func (g *Gyro) Overriding() bool { return g.override }

// Rate returns the last commanded override.
func (g *Gyro) Rate() r3.Vector { return g.rate }

// Remove detaches the gyro from the hull.
func (g *Gyro) Remove() { g.removed = true }

// Thruster is a simulated propulsion actuator.
type Thruster struct {
	name     string
	hull     *Vehicle
	local    r3.Vector
	max      float64
	fraction float64
	removed  bool
}

func (t *Thruster) Name() string { return t.name }

func (t *Thruster) Direction() r3.Vector {
	return t.hull.frame.Rotate(t.local)
}

func (t *Thruster) MaxThrust() float64 { return t.max }

func (t *Thruster) SetThrust(fraction float64) {
	t.fraction = vecmath.Clamp(fraction, 0, 1)
}

func (t *Thruster) Valid() bool { return !t.removed }

// Fraction returns the last commanded thrust fraction.
func (t *Thruster) Fraction() float64 { return t.fraction }

// Remove detaches the thruster from the hull.
func (t *Thruster) Remove() { t.removed = true }
