package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pathnav/navigator/internal/dispatcher"
	"github.com/pathnav/navigator/internal/sim"
	"github.com/pathnav/navigator/internal/vehicle"
)

// pilot flies the simulated vehicle by hand while no route is active, which is how
// edges get recorded in the simulator.
type pilot struct {
	vehicle    *sim.Vehicle
	propulsion vehicle.Propulsion
	attitude   vehicle.Attitude
	// flying reports whether the navigator owns the controllers.
	flying func() bool

	velocity r3.Vector
	engaged  bool
}

func (p *pilot) register(d *dispatcher.Dispatcher) {
	d.Register("pilot", func(e dispatcher.Event) (any, error) {
		v, err := parseVector(e.Args)
		if err != nil {
			return nil, err
		}
		p.velocity = v
		p.engaged = true
		return fmt.Sprintf("piloting at %v", v), nil
	}, dispatcher.Args(3, 3), dispatcher.Logged())

	d.Register("hover", func(dispatcher.Event) (any, error) {
		p.velocity = r3.Vector{}
		p.engaged = true
		return "hovering", nil
	}, dispatcher.Logged())

	d.Register("release", func(dispatcher.Event) (any, error) {
		p.disengage()
		return "released", nil
	}, dispatcher.Logged())

	d.Register("teleport", func(e dispatcher.Event) (any, error) {
		pos, err := parseVector(e.Args)
		if err != nil {
			return nil, err
		}
		p.vehicle.SetPosition(pos)
		p.vehicle.SetVelocity(r3.Vector{})
		return fmt.Sprintf("teleported to %v", pos), nil
	}, dispatcher.Args(3, 3), dispatcher.Logged())

	d.Register("where", func(dispatcher.Event) (any, error) {
		return map[string]r3.Vector{
			"position": p.vehicle.Position(),
			"velocity": p.vehicle.Velocity(),
			"forward":  vehicle.Forward(p.vehicle),
		}, nil
	})
}

func (p *pilot) disengage() {
	if !p.engaged {
		return
	}
	p.engaged = false
	p.velocity = r3.Vector{}
	p.propulsion.Reset()
	p.attitude.Reset()
}

// step holds the commanded velocity and turns the nose into the horizontal part of it.
// A route taking over disengages the pilot.
func (p *pilot) step(context.Context) error {
	if !p.engaged {
		return nil
	}
	if p.flying() {
		p.engaged = false
		p.velocity = r3.Vector{}
		return nil
	}

	p.propulsion.SetVelocity(p.velocity)
	p.propulsion.Update()

	heading := r3.Vector{X: p.velocity.X, Z: p.velocity.Z}
	if heading.Norm() < 1e-6 {
		return nil
	}
	return p.attitude.FaceVectors(heading.Normalize(), r3.Vector{Y: 1})
}

func parseVector(args []string) (r3.Vector, error) {
	var xyz [3]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return r3.Vector{}, fmt.Errorf("bad component %q: %w", a, err)
		}
		xyz[i] = f
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
