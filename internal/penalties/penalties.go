// Package penalties builds common objective and constraint terms on top of
// ocp.Penalty.
package penalties

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

// Options are shared by every builder. A nil Nodes slice means every node
// the term can read.
type Options struct {
	Name   string
	Phase  int
	Nodes  []int
	Weight float64
	Target [][]float64
	Rule   ocp.IntegrationRule
}

// AllNodes lists 0..ns, or 0..ns-1 when the term reads the next column.
func AllNodes(ph *ocp.Phase, next bool) []int {
	n := ph.Shooting + 1
	if next {
		n--
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (o Options) penalty(kind ocp.PenaltyKind, name string, fn ocp.PenaltyFunc) ocp.Penalty {
	if o.Name != "" {
		name = o.Name
	}
	return ocp.Penalty{
		Name:   name,
		Kind:   kind,
		Phase:  o.Phase,
		Nodes:  o.Nodes,
		Weight: o.Weight,
		Target: o.Target,
		Rule:   o.Rule,
		Func:   fn,
	}
}

func (o Options) withNodes(ph *ocp.Phase, next bool) Options {
	if o.Nodes == nil {
		o.Nodes = AllNodes(ph, next)
	}
	return o
}

func rows(list *ocp.VariableList, key string) (ocp.Variable, error) {
	v, ok := list.Get(key)
	if !ok {
		return ocp.Variable{}, fmt.Errorf("%w: unknown variable %q", dynamo.ErrInvalidArgument, key)
	}
	return v, nil
}

// firstColumn returns the rows [from, to) of the first column of m.
func firstColumn(m *mat.Dense, from, to int) []float64 {
	if m == nil {
		out := make([]float64, to-from)
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	col := mat.Col(nil, 0, m)
	return append([]float64(nil), col[from:to]...)
}

// MinimizeControls integrates the squared control key over the phase.
func MinimizeControls(ph *ocp.Phase, key string, o Options) (ocp.Penalty, error) {
	v, err := rows(ph.Layout.Controls, key)
	if err != nil {
		return ocp.Penalty{}, err
	}
	o = o.withNodes(ph, true)
	return o.penalty(ocp.LagrangeTerm, "minimize_controls_"+key, func(in ocp.PenaltyInput) []float64 {
		return firstColumn(in.U, v.Start, v.End)
	}), nil
}

// MinimizeStates integrates the squared state key over the phase.
func MinimizeStates(ph *ocp.Phase, key string, o Options) (ocp.Penalty, error) {
	v, err := rows(ph.Layout.States, key)
	if err != nil {
		return ocp.Penalty{}, err
	}
	o = o.withNodes(ph, o.Rule.IsTrapezoidal())
	return o.penalty(ocp.LagrangeTerm, "minimize_states_"+key, func(in ocp.PenaltyInput) []float64 {
		return firstColumn(in.X, v.Start, v.End)
	}), nil
}

// TrackState penalizes the distance of state key to Target at the given
// nodes, by default the last one.
func TrackState(ph *ocp.Phase, key string, o Options) (ocp.Penalty, error) {
	v, err := rows(ph.Layout.States, key)
	if err != nil {
		return ocp.Penalty{}, err
	}
	if o.Nodes == nil {
		o.Nodes = []int{ph.Shooting}
	}
	if len(o.Target) != 0 && len(o.Target) != len(o.Nodes) {
		return ocp.Penalty{}, fmt.Errorf("%w: %d targets for %d nodes", dynamo.ErrDimensionMismatch, len(o.Target), len(o.Nodes))
	}
	return o.penalty(ocp.MayerTerm, "track_state_"+key, func(in ocp.PenaltyInput) []float64 {
		return firstColumn(in.X, v.Start, v.End)
	}), nil
}

// Energy is a Mayer term on the mechanical energy of the state.
func Energy(ph *ocp.Phase, h dynamo.Hamiltonian, o Options) ocp.Penalty {
	if o.Nodes == nil {
		o.Nodes = []int{ph.Shooting}
	}
	return o.penalty(ocp.MayerTerm, "energy", func(in ocp.PenaltyInput) []float64 {
		return []float64{h.Energy(mat.Col(nil, 0, in.X))}
	})
}

// StateBounds is a constraint that is positive by how much any row of state
// key exceeds limit in absolute value.
func StateBounds(ph *ocp.Phase, key string, limit float64, o Options) (ocp.Penalty, error) {
	v, err := rows(ph.Layout.States, key)
	if err != nil {
		return ocp.Penalty{}, err
	}
	if limit < 0 {
		return ocp.Penalty{}, fmt.Errorf("%w: negative bound %g", dynamo.ErrInvalidArgument, limit)
	}
	o = o.withNodes(ph, false)
	return o.penalty(ocp.ConstraintTerm, "state_bounds_"+key, func(in ocp.PenaltyInput) []float64 {
		out := firstColumn(in.X, v.Start, v.End)
		for i, x := range out {
			out[i] = math.Max(math.Abs(x)-limit, 0)
		}
		return out
	}), nil
}

// Continuity is the state jump between phase and phase+1.
func Continuity(phase int) ocp.Penalty {
	return Options{Phase: phase}.penalty(ocp.TransitionTerm, "continuity", halfDifference)
}

// Periodic ties the first node of the first phase to the last node of the
// last phase.
func Periodic(phases []*ocp.Phase) ocp.Penalty {
	last := len(phases) - 1
	return ocp.Penalty{
		Name:  "periodic",
		Kind:  ocp.MultinodeTerm,
		Phase: -1,
		Links: [][]ocp.NodeRef{{{Phase: 0, Node: 0}, {Phase: last, Node: phases[last].Shooting}}},
		Func:  halfDifference,
	}
}

// halfDifference splits a vertically stacked input in two and returns the
// second half minus the first.
func halfDifference(in ocp.PenaltyInput) []float64 {
	x := mat.Col(nil, 0, in.X)
	n := len(x) / 2
	out := make([]float64, n)
	for i := range out {
		out[i] = x[n+i] - x[i]
	}
	return out
}
