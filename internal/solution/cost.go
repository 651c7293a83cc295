package solution

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/codec"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

// CostType selects the terms a cost report covers.
type CostType int

const (
	CostObjectives CostType = iota
	CostConstraints
	CostAll
)

func (c CostType) String() string {
	switch c {
	case CostObjectives:
		return "objectives"
	case CostConstraints:
		return "constraints"
	case CostAll:
		return "all"
	default:
		return fmt.Sprintf("cost(%d)", int(c))
	}
}

func ParseCostType(s string) (CostType, error) {
	for c := CostObjectives; c <= CostAll; c++ {
		if s == c.String() {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown cost type %q", dynamo.ErrInvalidArgument, s)
}

// CostTerm is the evaluated total of one penalty. Phase is -1 for
// program-level terms.
type CostTerm struct {
	Name       string  `json:"name"`
	Phase      int     `json:"phase"`
	Kind       string  `json:"kind"`
	Constraint bool    `json:"constraint"`
	Value      float64 `json:"value"`
	Weighted   float64 `json:"weighted"`
}

// Cost returns the weighted objective. The solver's cost is preferred when
// the solution was built from a solver result.
func (s *Solution) Cost() (float64, error) {
	if s.meta.HasCost {
		return s.meta.Cost, nil
	}
	terms, err := s.DetailedCost()
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, t := range terms {
		total += t.Weighted
	}
	return total, nil
}

// DetailedCost evaluates every objective of the program.
func (s *Solution) DetailedCost() ([]CostTerm, error) {
	return s.Terms(CostObjectives)
}

// Terms evaluates the objectives, the constraints, or both, phase terms first.
func (s *Solution) Terms(ct CostType) ([]CostTerm, error) {
	if s.prog.Threads > 1 {
		return nil, fmt.Errorf("%w: cost evaluation with %d threads", dynamo.ErrThreadingNotSupported, s.prog.Threads)
	}

	var terms []CostTerm
	add := func(phase int, pens []ocp.Penalty, constraint bool) error {
		for _, pen := range pens {
			if phase >= 0 {
				pen.Phase = phase
			}
			val, weighted, err := s.PenaltyCost(pen, constraint)
			if err != nil {
				return err
			}
			terms = append(terms, CostTerm{
				Name:       pen.Name,
				Phase:      phase,
				Kind:       pen.Kind.String(),
				Constraint: constraint,
				Value:      val,
				Weighted:   weighted,
			})
		}
		return nil
	}

	for p, ph := range s.prog.Phases {
		if ct != CostConstraints {
			if err := add(p, ph.Objectives, false); err != nil {
				return nil, dynamo.InPhase(p, "cost", err)
			}
		}
		if ct != CostObjectives {
			if err := add(p, ph.Constraints, true); err != nil {
				return nil, dynamo.InPhase(p, "cost", err)
			}
		}
	}
	if ct != CostConstraints {
		if err := add(-1, s.prog.Objectives, false); err != nil {
			return nil, err
		}
	}
	if ct != CostObjectives {
		if err := add(-1, s.prog.Constraints, true); err != nil {
			return nil, err
		}
	}
	return terms, nil
}

// PenaltyCost returns the NaN-ignoring sums of the unweighted and weighted
// values of pen over all of its nodes.
func (s *Solution) PenaltyCost(pen ocp.Penalty, constraint bool) (float64, float64, error) {
	if s.prog.Threads > 1 {
		return 0, 0, fmt.Errorf("%w: cost evaluation with %d threads", dynamo.ErrThreadingNotSupported, s.prog.Threads)
	}
	if pen.Func == nil {
		return 0, 0, fmt.Errorf("%w: penalty %q has no function", dynamo.ErrInvalidArgument, pen.Name)
	}
	weightedFn := pen.WeightedFunc
	if weightedFn == nil {
		weightedFn = ocp.DefaultWeighted(pen, constraint)
	}
	if pen.Weight == 0 {
		pen.Weight = 1
	}

	ev := s.evaluator()
	var inputs []penaltyCall
	var err error
	switch pen.Kind {
	case ocp.ParameterTerm:
		inputs = []penaltyCall{ev.parameterCall(pen)}
	case ocp.TransitionTerm:
		inputs, err = ev.transitionCalls(pen)
	case ocp.MultinodeTerm:
		inputs, err = ev.multinodeCalls(pen)
	default:
		inputs, err = ev.nodeCalls(pen)
	}
	if err != nil {
		return 0, 0, err
	}

	val, weighted := 0.0, 0.0
	for _, call := range inputs {
		val += nansum(pen.Func(call.plain))
		weighted += nansum(weightedFn(call.weighted))
	}
	return val, weighted, nil
}

type penaltyCall struct {
	plain    ocp.PenaltyInput
	weighted ocp.PenaltyInput
}

// evaluator reads penalty inputs from the decoded nodes in physical units.
type evaluator struct {
	prog       *ocp.Program
	states     []*mat.Dense
	controls   []*mat.Dense
	stochastic []*mat.Dense
	params     []float64
	durations  []float64
	starts     []float64
}

func (s *Solution) evaluator() *evaluator {
	ev := &evaluator{
		prog:      s.prog,
		params:    codec.ParameterValues(s.prog.Parameters, s.nodes.params),
		durations: s.nodes.durations,
		starts:    codec.PhaseStarts(s.nodes.durations),
	}
	completed := completeControls(s.prog, s.nodes.controls.Unscaled)
	for p := range s.prog.Phases {
		ev.states = append(ev.states, s.nodes.states.Unscaled[p].Stacked())
		ev.controls = append(ev.controls, completed[p].Stacked())
		ev.stochastic = append(ev.stochastic, s.nodes.stochastic.Unscaled[p].Stacked())
	}
	return ev
}

func (ev *evaluator) phase(p int) (*ocp.Phase, error) {
	if p < 0 || p >= len(ev.prog.Phases) {
		return nil, fmt.Errorf("%w: phase %d out of range", dynamo.ErrInvalidArgument, p)
	}
	return ev.prog.Phases[p], nil
}

func (ev *evaluator) nodeCalls(pen ocp.Penalty) ([]penaltyCall, error) {
	ph, err := ev.phase(pen.Phase)
	if err != nil {
		return nil, err
	}
	nc := ph.Scheme.NodeColumns()
	dt := pen.Dt
	if dt == 0 {
		dt = 1
		if pen.Kind == ocp.LagrangeTerm {
			dt = ph.IntervalDt(ev.durations[pen.Phase])
		}
	}

	calls := make([]penaltyCall, 0, len(pen.Nodes))
	for k, idx := range pen.Nodes {
		if idx < 0 || idx > ph.Shooting || ((pen.NeedsNextColumn() || pen.ExplicitDerivative) && idx == ph.Shooting) {
			return nil, fmt.Errorf("%w: penalty %q reads node %d of a %d-interval phase",
				dynamo.ErrInvalidArgument, pen.Name, idx, ph.Shooting)
		}

		var xCols []int
		switch {
		case ph.Scheme.IsCollocation() && pen.Integrate && idx < ph.Shooting:
			for j := idx * nc; j < (idx+1)*nc; j++ {
				xCols = append(xCols, j)
			}
		default:
			xCols = []int{idx * nc}
		}
		uCols := []int{idx}
		if pen.ExplicitDerivative {
			xCols = append(xCols, (idx+1)*nc)
			if !(idx == ph.Shooting-1 && ph.Control == ocp.Constant) {
				uCols = append(uCols, idx+1)
			}
		}

		base := ocp.PenaltyInput{
			Node:   idx,
			Time:   ev.starts[pen.Phase] + float64(idx)*ph.IntervalDt(ev.durations[pen.Phase]),
			P:      ev.params,
			S:      column(ev.stochastic[pen.Phase], idx),
			Weight: pen.Weight,
			Target: targetAt(pen.Target, k, 1),
			Dt:     dt,
		}
		plain := base
		plain.X = selectColumns(ev.states[pen.Phase], xCols)
		plain.U = definedColumns(ev.controls[pen.Phase], uCols)

		weighted := plain
		if pen.NeedsNextColumn() {
			weighted.X = selectColumns(ev.states[pen.Phase], append(append([]int(nil), xCols...), (idx+1)*nc))
			wu := append([]int(nil), uCols...)
			if pen.Rule == ocp.RuleTrapezoidal || ph.Control == ocp.LinearContinuous {
				wu = append(wu, idx+1)
			}
			weighted.U = definedColumns(ev.controls[pen.Phase], wu)
			weighted.Target = targetAt(pen.Target, k, 2)
		}
		calls = append(calls, penaltyCall{plain: plain, weighted: weighted})
	}
	return calls, nil
}

func (ev *evaluator) transitionCalls(pen ocp.Penalty) ([]penaltyCall, error) {
	if pen.Phase < 0 || pen.Phase >= len(ev.prog.Phases)-1 {
		return nil, fmt.Errorf("%w: transition penalty %q after phase %d", dynamo.ErrInvalidArgument, pen.Name, pen.Phase)
	}
	pre := ev.prog.Phases[pen.Phase]
	links := []ocp.NodeRef{{Phase: pen.Phase, Node: pre.Shooting}, {Phase: pen.Phase + 1, Node: 0}}
	in, err := ev.linked(pen, links, 0)
	if err != nil {
		return nil, err
	}
	in.Time = ev.starts[pen.Phase] + ev.durations[pen.Phase]
	return []penaltyCall{{plain: in, weighted: in}}, nil
}

func (ev *evaluator) multinodeCalls(pen ocp.Penalty) ([]penaltyCall, error) {
	calls := make([]penaltyCall, 0, len(pen.Links))
	for k, links := range pen.Links {
		in, err := ev.linked(pen, links, k)
		if err != nil {
			return nil, err
		}
		calls = append(calls, penaltyCall{plain: in, weighted: in})
	}
	return calls, nil
}

// linked stacks the columns of several (phase, node) pairs vertically.
func (ev *evaluator) linked(pen ocp.Penalty, links []ocp.NodeRef, k int) (ocp.PenaltyInput, error) {
	var xs, us, ss []float64
	for _, ref := range links {
		ph, err := ev.phase(ref.Phase)
		if err != nil {
			return ocp.PenaltyInput{}, err
		}
		if ref.Node < 0 || ref.Node > ph.Shooting {
			return ocp.PenaltyInput{}, fmt.Errorf("%w: penalty %q links node %d of phase %d",
				dynamo.ErrInvalidArgument, pen.Name, ref.Node, ref.Phase)
		}
		xs = append(xs, mat.Col(nil, ref.Node*ph.Scheme.NodeColumns(), ev.states[ref.Phase])...)
		u := column(ev.controls[ref.Phase], ref.Node)
		if ref.Node == ph.Shooting && !ph.Control.HasLastNode() && ph.Shooting > 0 {
			u = column(ev.controls[ref.Phase], ref.Node-1)
		}
		if !hasNaN(u) {
			us = append(us, u...)
		}
		ss = append(ss, column(ev.stochastic[ref.Phase], ref.Node)...)
	}

	in := ocp.PenaltyInput{
		Node:   k,
		X:      dynamo.ColumnVector(xs),
		P:      ev.params,
		S:      ss,
		Weight: pen.Weight,
		Target: targetAt(pen.Target, k, 1),
		Dt:     1,
	}
	if pen.Dt != 0 {
		in.Dt = pen.Dt
	}
	if len(us) > 0 {
		in.U = dynamo.ColumnVector(us)
	}
	return in, nil
}

func (ev *evaluator) parameterCall(pen ocp.Penalty) penaltyCall {
	in := ocp.PenaltyInput{
		P:      ev.params,
		Weight: pen.Weight,
		Target: targetAt(pen.Target, 0, 1),
		Dt:     1,
	}
	if pen.Dt != 0 {
		in.Dt = pen.Dt
	}
	return penaltyCall{plain: in, weighted: in}
}

func targetAt(target [][]float64, k, n int) [][]float64 {
	if k >= len(target) {
		return nil
	}
	end := k + n
	if end > len(target) {
		end = len(target)
	}
	return target[k:end]
}

// definedColumns selects the columns of m that hold no NaN. It returns nil
// when no column is defined.
func definedColumns(m *mat.Dense, cols []int) *mat.Dense {
	if m == nil {
		return nil
	}
	_, c := m.Dims()
	var keep []int
	for _, j := range cols {
		if j < c && !hasNaN(mat.Col(nil, j, m)) {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	return selectColumns(m, keep)
}

func column(m *mat.Dense, j int) []float64 {
	if m == nil {
		return nil
	}
	if _, c := m.Dims(); j >= c {
		return nil
	}
	return mat.Col(nil, j, m)
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

func nansum(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		if !math.IsNaN(x) {
			sum += x
		}
	}
	return sum
}
