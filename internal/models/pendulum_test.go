package models

import (
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dynamo"
)

func TestPendulumEquilibrium(t *testing.T) {
	p := NewPendulum()
	p.Damping = 0

	x := dynamo.State{0, 0}
	u := dynamo.Control{0}

	dx := p.Derive(0, x, u, nil, nil)

	if math.Abs(dx[0]) > 1e-10 {
		t.Errorf("expected zero velocity at equilibrium, got %f", dx[0])
	}

	if math.Abs(dx[1]) > 1e-10 {
		t.Errorf("expected zero acceleration at equilibrium, got %f", dx[1])
	}
}

func TestPendulumDimensions(t *testing.T) {
	p := NewPendulum()

	if p.StateDim() != 2 {
		t.Errorf("expected state dim 2, got %d", p.StateDim())
	}

	if p.ControlDim() != 1 {
		t.Errorf("expected control dim 1, got %d", p.ControlDim())
	}
}

func TestPendulumGravity(t *testing.T) {
	p := NewPendulum()
	p.Damping = 0

	x := dynamo.State{math.Pi / 2, 0}
	u := dynamo.Control{0}

	dx := p.Derive(0, x, u, nil, nil)

	expectedAccel := -p.Gravity / p.Length

	if math.Abs(dx[1]-expectedAccel) > 1e-6 {
		t.Errorf("expected acceleration %f, got %f", expectedAccel, dx[1])
	}
}

func TestPendulumMassParameter(t *testing.T) {
	p := NewPendulum()
	p.Damping = 0

	x := dynamo.State{0, 0}
	u := dynamo.Control{2}

	light := p.Derive(0, x, u, nil, nil)
	heavy := p.Derive(0, x, u, []float64{2}, nil)

	if math.Abs(light[1]-2*heavy[1]) > 1e-12 {
		t.Errorf("doubling the mass should halve the acceleration: %f vs %f", light[1], heavy[1])
	}
}

func TestPendulumStochasticTorque(t *testing.T) {
	p := NewPendulum()
	x := dynamo.State{0, 0}

	a := p.Derive(0, x, dynamo.Control{1}, nil, []float64{0.5})
	b := p.Derive(0, x, dynamo.Control{1.5}, nil, nil)

	if math.Abs(a[1]-b[1]) > 1e-12 {
		t.Errorf("stochastic torque should add to the control: %f vs %f", a[1], b[1])
	}
}

func TestModelNames(t *testing.T) {
	tests := []struct {
		name  string
		model Model
	}{
		{"pendulum", NewPendulum()},
		{"double_pendulum", NewDoublePendulum()},
		{"spring_mass", NewSpringMassChain(2)},
		{"cartpole", NewCartPole()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.model.StateNames()); got != tt.model.StateDim() {
				t.Errorf("%d state names for %d states", got, tt.model.StateDim())
			}
			if got := len(tt.model.ControlNames()); got != tt.model.ControlDim() {
				t.Errorf("%d control names for %d controls", got, tt.model.ControlDim())
			}
		})
	}
}

func TestPendulumEnergy(t *testing.T) {
	p := NewPendulum()

	theta := math.Pi / 4
	expected := p.Mass * p.Gravity * p.Length * (1 - math.Cos(theta))
	if e := p.Energy(dynamo.State{theta, 0}); math.Abs(e-expected) > 1e-9 {
		t.Errorf("expected energy %f, got %f", expected, e)
	}
}
