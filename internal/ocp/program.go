package ocp

import (
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// TimeParameter is the parameter that stores free phase durations, one row
// per free phase in phase order.
const TimeParameter = "time"

// TransitionInput is evaluated at the boundary between phase Phase and
// Phase+1.
type TransitionInput struct {
	Phase          int
	T              float64
	Pre, Post      dynamo.State
	PreControl     dynamo.Control
	PostControl    dynamo.Control
	P              []float64
	PreStochastic  []float64
	PostStochastic []float64
}

// Transition links two consecutive phases. Func returns the state jump
// applied to the previous end state; a nil Func means continuity.
type Transition struct {
	Name string
	Func func(in TransitionInput) []float64
}

// Residual evaluates the transition, treating a missing function as zero.
func (t Transition) Residual(in TransitionInput) []float64 {
	if t.Func == nil {
		return make([]float64, len(in.Pre))
	}
	return t.Func(in)
}

// Program is the full multi-phase problem.
type Program struct {
	Phases      []*Phase
	Parameters  *VariableList
	Transitions []Transition
	Objectives  []Penalty
	Constraints []Penalty
	Threads     int

	timeRows map[int]int
}

type Option func(*Program)

func WithParameters(params *VariableList) Option {
	return func(p *Program) {
		p.Parameters = params
	}
}

func WithTransitions(ts ...Transition) Option {
	return func(p *Program) {
		p.Transitions = append(p.Transitions, ts...)
	}
}

func WithObjectives(ps ...Penalty) Option {
	return func(p *Program) {
		p.Objectives = append(p.Objectives, ps...)
	}
}

func WithConstraints(ps ...Penalty) Option {
	return func(p *Program) {
		p.Constraints = append(p.Constraints, ps...)
	}
}

func WithThreads(n int) Option {
	return func(p *Program) {
		p.Threads = n
	}
}

// NewProgram validates the phases and appends the time parameter when a
// phase has a free duration.
func NewProgram(phases []*Phase, opts ...Option) (*Program, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: program has no phase", dynamo.ErrInvalidArgument)
	}
	p := &Program{Phases: phases, Threads: 1, timeRows: make(map[int]int)}
	for _, opt := range opts {
		opt(p)
	}
	if p.Threads < 1 {
		return nil, fmt.Errorf("%w: threads must be at least 1", dynamo.ErrInvalidArgument)
	}

	for i, ph := range phases {
		if err := ph.Validate(); err != nil {
			return nil, dynamo.InPhase(i, "build program", err)
		}
	}

	if len(p.Transitions) == 0 {
		p.Transitions = make([]Transition, len(phases)-1)
	}
	if len(p.Transitions) != len(phases)-1 {
		return nil, fmt.Errorf("%w: %d transitions for %d phases",
			dynamo.ErrDimensionMismatch, len(p.Transitions), len(phases))
	}

	params := NewVariableList()
	if p.Parameters != nil {
		for _, v := range p.Parameters.Variables() {
			if v.Name == TimeParameter {
				return nil, fmt.Errorf("%w: parameter name %q is reserved", dynamo.ErrInvalidArgument, TimeParameter)
			}
			if err := params.Add(v.Name, v.Size(), v.Scaling...); err != nil {
				return nil, err
			}
		}
	}
	free := 0
	for i, ph := range phases {
		if ph.FreeDuration {
			p.timeRows[i] = free
			free++
		}
	}
	if free > 0 {
		if err := params.Add(TimeParameter, free); err != nil {
			return nil, err
		}
	}
	p.Parameters = params

	for _, pen := range append(append([]Penalty{}, p.Objectives...), p.Constraints...) {
		var ph *Phase
		if pen.Phase >= 0 && pen.Phase < len(phases) {
			ph = phases[pen.Phase]
		}
		if err := pen.Validate(ph); err != nil {
			return nil, err
		}
		if pen.Kind == TransitionTerm && (pen.Phase < 0 || pen.Phase >= len(phases)-1) {
			return nil, fmt.Errorf("%w: transition penalty %q after phase %d", dynamo.ErrInvalidArgument, pen.Name, pen.Phase)
		}
	}
	return p, nil
}

func (p *Program) PhaseCount() int {
	return len(p.Phases)
}

// TimeRow returns the row of the time parameter holding the duration of
// phase i, if that duration is free.
func (p *Program) TimeRow(i int) (int, bool) {
	row, ok := p.timeRows[i]
	return row, ok
}

// HasStochastic reports whether any phase declares stochastic variables.
func (p *Program) HasStochastic() bool {
	for _, ph := range p.Phases {
		if ph.StochasticDim() > 0 {
			return true
		}
	}
	return false
}
