package ocp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// PenaltyKind decides which columns a penalty reads and how its dt defaults.
type PenaltyKind int

const (
	LagrangeTerm PenaltyKind = iota
	MayerTerm
	ConstraintTerm
	MultinodeTerm
	TransitionTerm
	ParameterTerm
)

func (k PenaltyKind) String() string {
	switch k {
	case LagrangeTerm:
		return "lagrange"
	case MayerTerm:
		return "mayer"
	case ConstraintTerm:
		return "constraint"
	case MultinodeTerm:
		return "multinode"
	case TransitionTerm:
		return "transition"
	case ParameterTerm:
		return "parameter"
	default:
		return fmt.Sprintf("penalty(%d)", int(k))
	}
}

// IntegrationRule is the quadrature used for Lagrange terms.
type IntegrationRule int

const (
	RuleRectangle IntegrationRule = iota
	RuleApproximateTrapezoidal
	RuleTrapezoidal
)

func (r IntegrationRule) String() string {
	switch r {
	case RuleRectangle:
		return "rectangle"
	case RuleApproximateTrapezoidal:
		return "approximate_trapezoidal"
	case RuleTrapezoidal:
		return "trapezoidal"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

func (r IntegrationRule) IsTrapezoidal() bool {
	return r == RuleApproximateTrapezoidal || r == RuleTrapezoidal
}

// NodeRef names a node of a given phase.
type NodeRef struct {
	Phase int
	Node  int
}

// PenaltyInput is the slice of a solution one penalty evaluation sees. X and U
// hold one column per node read; multinode inputs stack the linked nodes
// vertically. U is nil when no control is defined at the node.
type PenaltyInput struct {
	Node   int
	Time   float64
	X      *mat.Dense
	U      *mat.Dense
	P      []float64
	S      []float64
	Weight float64
	Target [][]float64
	Dt     float64
}

type PenaltyFunc func(in PenaltyInput) []float64

// Penalty is one objective or constraint term. Func returns the unweighted
// value; WeightedFunc, when nil, defaults to a weighted squared deviation from
// Target scaled by Dt for objectives and to Func for constraints.
type Penalty struct {
	Name  string
	Kind  PenaltyKind
	Phase int
	Nodes []int
	// Links lists, per evaluation, the nodes a multinode term reads.
	Links [][]NodeRef

	Weight float64
	// Target holds one column per entry of Nodes, plus one for trapezoidal rules.
	Target [][]float64
	Dt     float64
	Rule   IntegrationRule

	Derivative         bool
	ExplicitDerivative bool
	Integrate          bool

	Func         PenaltyFunc
	WeightedFunc PenaltyFunc
}

// NeedsNextColumn reports whether the weighted evaluation also reads node+1.
func (p Penalty) NeedsNextColumn() bool {
	return p.Derivative || (p.Kind == LagrangeTerm && p.Rule.IsTrapezoidal())
}

func (p Penalty) Validate(ph *Phase) error {
	if p.Func == nil {
		return fmt.Errorf("%w: penalty %q has no function", dynamo.ErrInvalidArgument, p.Name)
	}
	switch p.Kind {
	case MultinodeTerm:
		if len(p.Links) == 0 {
			return fmt.Errorf("%w: multinode penalty %q links no node", dynamo.ErrInvalidArgument, p.Name)
		}
		return nil
	case TransitionTerm, ParameterTerm:
		return nil
	}
	if ph == nil {
		return fmt.Errorf("%w: penalty %q needs a phase", dynamo.ErrInvalidArgument, p.Name)
	}
	for _, n := range p.Nodes {
		if n < 0 || n > ph.Shooting {
			return fmt.Errorf("%w: penalty %q node %d outside [0,%d]", dynamo.ErrInvalidArgument, p.Name, n, ph.Shooting)
		}
		if (p.NeedsNextColumn() || p.ExplicitDerivative) && n == ph.Shooting {
			return fmt.Errorf("%w: penalty %q reads node %d+1", dynamo.ErrInvalidArgument, p.Name, n)
		}
	}
	return nil
}

// DefaultWeighted is the weighted form used when a penalty has no WeightedFunc.
func DefaultWeighted(p Penalty, constraint bool) PenaltyFunc {
	return func(in PenaltyInput) []float64 {
		if constraint {
			return p.Func(in)
		}
		if p.Kind == LagrangeTerm && p.Rule.IsTrapezoidal() && in.X != nil {
			_, c := in.X.Dims()
			if c >= 2 {
				first, second := splitColumns(in)
				v0 := squaredDeviation(p.Func(first), targetColumn(in.Target, 0))
				v1 := squaredDeviation(p.Func(second), targetColumn(in.Target, 1))
				out := make([]float64, len(v0))
				for i := range out {
					out[i] = in.Weight * (v0[i] + v1[i]) / 2 * in.Dt
				}
				return out
			}
		}
		v := squaredDeviation(p.Func(in), targetColumn(in.Target, 0))
		for i := range v {
			v[i] *= in.Weight * in.Dt
		}
		return v
	}
}

func squaredDeviation(v, target []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if i < len(target) {
			x -= target[i]
		}
		out[i] = x * x
	}
	return out
}

func targetColumn(target [][]float64, i int) []float64 {
	if i < len(target) {
		return target[i]
	}
	return nil
}

func splitColumns(in PenaltyInput) (PenaltyInput, PenaltyInput) {
	first, second := in, in
	first.X = column(in.X, 0)
	second.X = column(in.X, 1)
	if in.U != nil {
		_, c := in.U.Dims()
		first.U = column(in.U, 0)
		if c >= 2 {
			second.U = column(in.U, 1)
		} else {
			second.U = first.U
		}
	}
	return first, second
}

func column(m *mat.Dense, j int) *mat.Dense {
	r, _ := m.Dims()
	return mat.DenseCopyOf(m.Slice(0, r, j, j+1))
}
