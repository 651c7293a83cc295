package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for problem bookkeeping and solution post-processing.
var (
	// ErrInvalidState indicates a state vector with invalid values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrStepRejected indicates an adaptive step whose error estimate exceeded the tolerance.
	ErrStepRejected = errors.New("dynamo: adaptive step rejected")

	// ErrDimensionMismatch indicates a vector or array whose length disagrees with the layout.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between data and layout")

	// ErrInvalidSolutionState indicates a lifecycle transition that is not allowed
	// from the current solution state (integrate twice, integrate after merge...).
	ErrInvalidSolutionState = errors.New("dynamo: transition not allowed from current solution state")

	// ErrInvalidArgument indicates an incompatible option combination.
	ErrInvalidArgument = errors.New("dynamo: invalid argument")

	// ErrUnsupportedIntegrator indicates a discretization the chosen integrator cannot reproduce.
	ErrUnsupportedIntegrator = errors.New("dynamo: integrator does not support this ode scheme")

	// ErrPhaseTransitionDimension indicates a transition residual whose size differs from the state size.
	ErrPhaseTransitionDimension = errors.New("dynamo: phase transition output does not match state dimension")

	// ErrIncoherentPhaseDimensions indicates phases whose variables cannot be merged.
	ErrIncoherentPhaseDimensions = errors.New("dynamo: program dimension must be coherent across phases to merge them")

	// ErrThreadingNotSupported indicates a post-processing request on a multi-threaded program.
	ErrThreadingNotSupported = errors.New("dynamo: not supported when the program uses more than one thread")

	// ErrMissingData indicates data that a previous transition removed from the solution.
	ErrMissingData = errors.New("dynamo: data not available in this solution")
)

// PhaseError wraps an error with the phase and operation it was detected in.
type PhaseError struct {
	Phase   int
	Op      string
	Wrapped error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s (phase %d): %v", e.Op, e.Phase, e.Wrapped)
}

func (e *PhaseError) Unwrap() error {
	return e.Wrapped
}

// InPhase wraps err with phase context. It returns nil for a nil err.
func InPhase(phase int, op string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Op: op, Wrapped: err}
}
