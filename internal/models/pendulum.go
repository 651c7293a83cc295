package models

import (
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// Model is a System whose state and control rows carry names, so a phase
// layout can be derived from it.
type Model interface {
	dynamo.System
	StateNames() []string
	ControlNames() []string
}

type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    DefaultMass,
		Length:  DefaultLength,
		Damping: 0.1,
		Gravity: DefaultGravity,
	}
}

func (p *Pendulum) StateDim() int {
	return 2
}

func (p *Pendulum) ControlDim() int {
	return 1
}

func (p *Pendulum) StateNames() []string   { return []string{"theta", "omega"} }
func (p *Pendulum) ControlNames() []string { return []string{"tau"} }

// Derive uses the mass from params[0] when the program declares one.
func (p *Pendulum) Derive(t float64, x dynamo.State, u dynamo.Control, params, s []float64) dynamo.State {
	theta := x[0]
	omega := x[1]

	mass := p.Mass
	if len(params) > 0 && params[0] > 0 {
		mass = params[0]
	}

	torque := 0.0
	if len(u) > 0 {
		torque = u[0]
	}
	if len(s) > 0 {
		torque += s[0]
	}
	alpha := (-p.Damping*omega - mass*p.Gravity*p.Length*math.Sin(theta) + torque) / (mass * p.Length * p.Length)

	return dynamo.State{omega, alpha}
}

func (p *Pendulum) Energy(x dynamo.State) float64 {
	theta, omega := x[0], x[1]
	ke := 0.5 * p.Mass * p.Length * p.Length * omega * omega
	pe := p.Mass * p.Gravity * p.Length * (1 - math.Cos(theta))
	return ke + pe
}
