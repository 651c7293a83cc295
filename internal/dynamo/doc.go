// Package dynamo provides the numeric primitives shared by the optimal-control
// packages.
//
//   - [State], [Control]: plain vectors
//   - [System]: continuous dynamics dx/dt = f(t, x, u, p, s)
//   - [Integrator]: one step of a general-purpose ODE stepper
//   - [Trajectory]: named matrices, one column per time sample
//
// Every error returned by the module wraps one of the sentinel values in
// errors.go and may carry phase context through [PhaseError].
package dynamo
