package integrators

import "github.com/san-kum/dynopt/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, in dynamo.Inputs, t, dt float64) dynamo.State {
	dx := in.Derive(dyn, t, x)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
