// Package pid implements a fixed-timestep PID controller.
package pid

import "github.com/pathnav/navigator/internal/vecmath"

// Config holds the gains, output clamp and timestep of one controller.
type Config struct {
	Kp  float64 `json:"kp" mapstructure:"kp"`
	Ki  float64 `json:"ki" mapstructure:"ki"`
	Kd  float64 `json:"kd" mapstructure:"kd"`
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
	// IntegralLimit clamps the accumulator to ±IntegralLimit. Zero leaves it unbounded.
	IntegralLimit float64 `json:"integralLimit" mapstructure:"integralLimit"`
	// Timestep in seconds between calls to Control.
	Timestep float64 `json:"timestep" mapstructure:"timestep"`
}

// DefaultConfig returns the attitude gains tuned for a 60 Hz loop.
func DefaultConfig() Config {
	return Config{Kp: 18, Ki: 0, Kd: 3, Min: -1000, Max: 1000, Timestep: 1.0 / 60}
}

// Diagnostics is a snapshot of the last Control call.
type Diagnostics struct {
	Error    float64
	Integral float64
	P        float64
	I        float64
	D        float64
	Output   float64
}

// Controller is a single-axis PID loop.
type Controller struct {
	cfg Config

	integral  float64
	prevError float64
	last      Diagnostics
}

// New creates a controller with zeroed state.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Control feeds one error sample and returns the clamped output.
func (c *Controller) Control(err float64) float64 {
	c.integral += err * c.cfg.Timestep
	if lim := c.cfg.IntegralLimit; lim > 0 {
		c.integral = vecmath.Clamp(c.integral, -lim, lim)
	}

	var derivative float64
	if c.cfg.Timestep > 0 {
		derivative = (err - c.prevError) / c.cfg.Timestep
	}
	c.prevError = err

	p := c.cfg.Kp * err
	i := c.cfg.Ki * c.integral
	d := c.cfg.Kd * derivative
	out := vecmath.Clamp(p+i+d, c.cfg.Min, c.cfg.Max)

	c.last = Diagnostics{Error: err, Integral: c.integral, P: p, I: i, D: d, Output: out}
	return out
}

// Reset zeroes the integral and the previous error.
func (c *Controller) Reset() {
	c.integral = 0
	c.prevError = 0
	c.last = Diagnostics{}
}

// Diagnostics returns the terms computed by the last Control call.
func (c *Controller) Diagnostics() Diagnostics {
	return c.last
}
