package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

// System is the continuous right-hand side dx/dt = f(t, x, u, p, s) of a phase.
// p holds the unscaled program parameters and s the stochastic variables of the
// current node; both may be empty.
type System interface {
	Derive(t float64, x State, u Control, p, s []float64) State
	StateDim() int
	ControlDim() int
}

// SystemFunc adapts a plain function to the System interface.
type SystemFunc struct {
	F  func(t float64, x State, u Control, p, s []float64) State
	NX int
	NU int
}

func (f SystemFunc) Derive(t float64, x State, u Control, p, s []float64) State {
	return f.F(t, x, u, p, s)
}
func (f SystemFunc) StateDim() int   { return f.NX }
func (f SystemFunc) ControlDim() int { return f.NU }

type Hamiltonian interface {
	Energy(x State) float64
}

// Inputs carries everything but the state that a step needs over one interval.
// When U1 is set the control varies linearly from U0 at T0 to U1 at T0+Span.
type Inputs struct {
	U0, U1 Control
	T0     float64
	Span   float64
	P      []float64
	S      []float64
}

// ControlAt returns the control applied at absolute time t.
func (in Inputs) ControlAt(t float64) Control {
	if in.U1 == nil || in.Span == 0 {
		return in.U0
	}
	alpha := (t - in.T0) / in.Span
	alpha = math.Max(0, math.Min(1, alpha))
	u := make(Control, len(in.U0))
	for i := range u {
		u[i] = in.U0[i] + alpha*(in.U1[i]-in.U0[i])
	}
	return u
}

// Derive evaluates dyn at time t with the inputs resolved for that time.
func (in Inputs) Derive(dyn System, t float64, x State) State {
	return dyn.Derive(t, x, in.ControlAt(t), in.P, in.S)
}

type Integrator interface {
	Step(dyn System, x State, in Inputs, t, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, in Inputs, t, dt, tol float64) (State, float64, error)
}

type Config struct {
	Tolerance     float64
	MaxDt         float64
	MinDt         float64
	Adaptive      bool
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Tolerance:     1e-6,
		MaxDt:         0.01,
		MinDt:         1e-8,
		Adaptive:      false,
		ValidateState: true,
	}
}
