package ocp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// IntervalInput is what a native interval function needs to advance the
// state over one shooting interval.
type IntervalInput struct {
	Node int
	T0   float64
	Dt   float64
	X0   dynamo.State
	// U0 is the control at the start of the interval, U1 at its end. U1 is nil
	// unless the control is linear.
	U0, U1 dynamo.Control
	P      []float64
	S      []float64
}

// IntervalFunc integrates one shooting interval and returns every sub-step
// state, x0 included, as columns of an nx-row matrix.
type IntervalFunc func(in IntervalInput) (*mat.Dense, error)

// Phase describes one phase of the program. It is not modified after the
// program is built.
type Phase struct {
	Name         string
	Shooting     int
	Duration     float64
	FreeDuration bool
	Scheme       OdeScheme
	Control      ControlType
	Layout       Layout

	// Dynamics is the continuous right-hand side, used by general-purpose
	// integrators and by the default native step.
	Dynamics dynamo.System
	// Intervals holds the solver's own step, either one per interval or a
	// single one shared by all intervals.
	Intervals []IntervalFunc

	Objectives  []Penalty
	Constraints []Penalty
}

func (p *Phase) StateDim() int      { return p.Layout.States.Dim() }
func (p *Phase) ControlDim() int    { return p.Layout.Controls.Dim() }
func (p *Phase) StochasticDim() int { return p.Layout.Stochastic.Dim() }

// StateColumns is the number of state columns the phase owns in the
// decision vector.
func (p *Phase) StateColumns() int {
	return p.Shooting*p.Scheme.NodeColumns() + 1
}

func (p *Phase) ControlColumns() int {
	if p.Control.HasLastNode() {
		return p.Shooting + 1
	}
	return p.Shooting
}

func (p *Phase) StochasticColumns() int {
	return p.Shooting + 1
}

// Columns dispatches on the variable group.
func (p *Phase) Columns(g Group) int {
	switch g {
	case States:
		return p.StateColumns()
	case Controls:
		return p.ControlColumns()
	case Stochastic:
		return p.StochasticColumns()
	}
	return 1
}

// IntervalDt is the length of one shooting interval.
func (p *Phase) IntervalDt(duration float64) float64 {
	return duration / float64(p.Shooting)
}

// Interval returns the native step of interval i, if any.
func (p *Phase) Interval(i int) (IntervalFunc, bool) {
	switch len(p.Intervals) {
	case 0:
		return nil, false
	case 1:
		return p.Intervals[0], true
	}
	if i < 0 || i >= len(p.Intervals) {
		return nil, false
	}
	return p.Intervals[i], true
}

func (p *Phase) Validate() error {
	if p.Shooting < 1 {
		return fmt.Errorf("%w: shooting count must be at least 1, got %d", dynamo.ErrInvalidArgument, p.Shooting)
	}
	if p.Duration < 0 {
		return fmt.Errorf("%w: negative phase duration %g", dynamo.ErrInvalidArgument, p.Duration)
	}
	if err := p.Scheme.Validate(); err != nil {
		return err
	}
	if p.Layout.States.Dim() == 0 {
		return fmt.Errorf("%w: phase declares no state", dynamo.ErrInvalidArgument)
	}
	for _, g := range []Group{States, Controls, Stochastic} {
		if err := p.Layout.Group(g).Validate(); err != nil {
			return fmt.Errorf("%s: %w", g, err)
		}
	}
	if n := len(p.Intervals); n > 1 && n != p.Shooting {
		return fmt.Errorf("%w: %d interval functions for %d intervals", dynamo.ErrDimensionMismatch, n, p.Shooting)
	}
	if p.Dynamics != nil && p.Dynamics.StateDim() != p.StateDim() {
		return fmt.Errorf("%w: dynamics has %d states, layout %d",
			dynamo.ErrDimensionMismatch, p.Dynamics.StateDim(), p.StateDim())
	}
	for _, pen := range p.Objectives {
		if err := pen.Validate(p); err != nil {
			return err
		}
	}
	for _, pen := range p.Constraints {
		if err := pen.Validate(p); err != nil {
			return err
		}
	}
	return nil
}
