package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(t float64, x dynamo.State, u dynamo.Control, p, st []float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) StateDim() int   { return 2 }
func (s *simpleDynamics) ControlDim() int { return 0 }

// forced integrates xdot = u, so x(t) follows the integral of the control.
type forced struct{}

func (f *forced) Derive(t float64, x dynamo.State, u dynamo.Control, p, st []float64) dynamo.State {
	return dynamo.State{u[0]}
}

func (f *forced) StateDim() int   { return 1 }
func (f *forced) ControlDim() int { return 1 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x0 := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	x := x0
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, dynamo.Inputs{}, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestRK4LinearControl(t *testing.T) {
	// u ramps from 0 to 2 over [0,1]: x(1) = integral of 2t = 1, exact for RK4
	in := dynamo.Inputs{U0: dynamo.Control{0}, U1: dynamo.Control{2}, T0: 0, Span: 1}
	x := NewRK4().Step(&forced{}, dynamo.State{0}, in, 0, 1)
	if math.Abs(x[0]-1) > 1e-12 {
		t.Errorf("expected 1, got %f", x[0])
	}

	held := dynamo.Inputs{U0: dynamo.Control{2}}
	x = NewRK4().Step(&forced{}, dynamo.State{0}, held, 0, 1)
	if math.Abs(x[0]-2) > 1e-12 {
		t.Errorf("expected 2, got %f", x[0])
	}
}

func TestEulerStep(t *testing.T) {
	x := NewEuler().Step(&simpleDynamics{}, dynamo.State{1, 0}, dynamo.Inputs{}, 0, 0.1)
	if x[0] != 1 || math.Abs(x[1]+0.1) > 1e-15 {
		t.Errorf("unexpected euler step %v", x)
	}
}

func TestSymplecticEnergy(t *testing.T) {
	for name, integ := range map[string]dynamo.Integrator{"verlet": NewVerlet(), "leapfrog": NewLeapfrog()} {
		t.Run(name, func(t *testing.T) {
			dyn := &simpleDynamics{}
			x := dynamo.State{1, 0}
			for i := 0; i < 10000; i++ {
				x = integ.Step(dyn, x, dynamo.Inputs{}, float64(i)*0.01, 0.01)
			}
			e := 0.5 * (x[0]*x[0] + x[1]*x[1])
			if math.Abs(e-0.5) > 1e-3 {
				t.Errorf("energy drifted to %f", e)
			}
		})
	}
}
