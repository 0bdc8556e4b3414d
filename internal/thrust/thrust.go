// Package thrust is the propulsion controller: it tracks a desired world velocity by
// distributing a proportional force demand over the vehicle's thrusters.
package thrust

import (
	"github.com/golang/geo/r3"

	"github.com/pathnav/navigator/internal/vehicle"
)

// Config tunes the velocity loop.
type Config struct {
	// Kp is the force in newtons requested per m/s of velocity error.
	Kp float64 `json:"kp" mapstructure:"kp"`
	// MaxForce caps the magnitude of the total force demand. Zero means no cap.
	MaxForce float64 `json:"maxForce" mapstructure:"maxForce"`
}

// DefaultConfig suits the simulated drone.
func DefaultConfig() Config {
	return Config{Kp: 5000, MaxForce: 40000}
}

// Controller drives every propulsion actuator of one vehicle.
type Controller struct {
	cfg       Config
	telemetry vehicle.Telemetry
	thrusters []vehicle.PropulsionActuator

	desired r3.Vector
	demand  r3.Vector
}

var _ vehicle.Propulsion = (*Controller)(nil)

// New creates a controller for the provider's thrusters.
func New(cfg Config, provider vehicle.Provider) *Controller {
	return &Controller{
		cfg:       cfg,
		telemetry: provider.Primary(),
		thrusters: provider.PropulsionActuators(),
	}
}

// SetVelocity sets the world velocity to track from the next Update on.
func (c *Controller) SetVelocity(v r3.Vector) {
	c.desired = v
}

// Desired returns the velocity being tracked.
func (c *Controller) Desired() r3.Vector {
	return c.desired
}

// Demand returns the force requested by the last Update.
func (c *Controller) Demand() r3.Vector {
	return c.demand
}

// Update commands every thruster for one tick. A thruster fires only when the force
// demand has a positive component along its direction.
func (c *Controller) Update() {
	force := c.desired.Sub(c.telemetry.Velocity()).Mul(c.cfg.Kp)
	if n := force.Norm(); c.cfg.MaxForce > 0 && n > c.cfg.MaxForce {
		force = force.Mul(c.cfg.MaxForce / n)
	}
	c.demand = force

	for _, t := range c.thrusters {
		if !t.Valid() || t.MaxThrust() <= 0 {
			continue
		}
		along := force.Dot(t.Direction())
		if along <= 0 {
			t.SetThrust(0)
			continue
		}
		t.SetThrust(min(along/t.MaxThrust(), 1))
	}
}

// Reset stops every thruster, forgets the target and drops removed thrusters.
func (c *Controller) Reset() {
	c.desired = r3.Vector{}
	c.demand = r3.Vector{}

	kept := c.thrusters[:0]
	for _, t := range c.thrusters {
		if !t.Valid() {
			continue
		}
		t.SetThrust(0)
		kept = append(kept, t)
	}
	clear(c.thrusters[len(kept):])
	c.thrusters = kept
}
