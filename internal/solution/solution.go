// Package solution decodes the decision vector returned by a solver and
// post-processes it: re-integration, phase merging, resampling and cost
// evaluation.
//
// A Solution is immutable. Integrate, MergePhases and Interpolate each build
// a new Solution and may only be called on a fresh one.
package solution

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/codec"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
	"github.com/san-kum/dynopt/internal/timegrid"
)

// Values holds the scaled and unscaled versions of per-phase trajectories.
type Values struct {
	Scaled   []*dynamo.Trajectory
	Unscaled []*dynamo.Trajectory
}

func (v Values) clone() Values {
	out := Values{
		Scaled:   make([]*dynamo.Trajectory, len(v.Scaled)),
		Unscaled: make([]*dynamo.Trajectory, len(v.Unscaled)),
	}
	for i := range v.Scaled {
		out.Scaled[i] = v.Scaled[i].Clone()
	}
	for i := range v.Unscaled {
		out.Unscaled[i] = v.Unscaled[i].Clone()
	}
	return out
}

// segment records which phase of the program a run of columns comes from,
// and how many columns each of its intervals owns.
type segment struct {
	Phase   int
	Columns int
	Stride  int
}

// nodes is the decoded decision data, kept through every transition so that
// costs can always be evaluated.
type nodes struct {
	states     Values
	controls   Values
	stochastic Values
	params     *dynamo.Trajectory
	paramsRaw  *dynamo.Trajectory
	durations  []float64
}

type Solution struct {
	prog   *ocp.Program
	logger *zap.Logger

	vector     []float64
	states     Values
	controls   *Values
	stochastic *Values
	ensemble   [][]*dynamo.Trajectory

	phaseTime []float64
	times     [][]float64
	shooting  []int
	segments  [][]segment

	nodes *nodes
	meta  Metadata

	integrated   bool
	interpolated bool
	merged       bool
}

type Option func(*Solution)

// WithLogger sets the logger used for transition diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Solution) {
		if l != nil {
			s.logger = l
		}
	}
}

// FromVector decodes a decision vector of prog.
func FromVector(prog *ocp.Program, v []float64, opts ...Option) (*Solution, error) {
	d, err := codec.Decode(prog, v)
	if err != nil {
		return nil, err
	}

	params := codec.Unscale(prog.Parameters, d.Parameters)
	durations, err := codec.Durations(prog, params)
	if err != nil {
		return nil, err
	}

	n := &nodes{
		states:     unscaleValues(prog, ocp.States, d.States),
		controls:   unscaleValues(prog, ocp.Controls, d.Controls),
		stochastic: unscaleValues(prog, ocp.Stochastic, d.Stochastic),
		params:     params,
		paramsRaw:  d.Parameters,
		durations:  durations,
	}

	s := &Solution{
		prog:      prog,
		logger:    zap.NewNop(),
		vector:    append([]float64(nil), v...),
		states:    n.states.clone(),
		phaseTime: append([]float64{0}, durations...),
		nodes:     n,
	}
	controls := n.controls.clone()
	stochastic := n.stochastic.clone()
	s.controls = &controls
	s.stochastic = &stochastic

	starts := codec.PhaseStarts(durations)
	for i, ph := range prog.Phases {
		s.times = append(s.times, timegrid.NodeTimes(ph, starts[i], durations[i]))
		s.shooting = append(s.shooting, ph.Shooting)
		s.segments = append(s.segments, []segment{{Phase: i, Columns: ph.StateColumns(), Stride: ph.Scheme.NodeColumns()}})
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("decoded solution",
		zap.Int("phases", len(prog.Phases)),
		zap.Int("vector_len", len(v)),
		zap.Float64s("phase_time", s.phaseTime))
	return s, nil
}

// FromResult decodes the vector of a solver result and keeps its metadata.
func FromResult(prog *ocp.Program, res SolverResult, opts ...Option) (*Solution, error) {
	s, err := FromVector(prog, res.X, opts...)
	if err != nil {
		return nil, err
	}
	s.meta = res.metadata()
	return s, nil
}

func unscaleValues(prog *ocp.Program, g ocp.Group, scaled []*dynamo.Trajectory) Values {
	return Values{Scaled: scaled, Unscaled: codec.UnscaleAll(prog, g, scaled)}
}

// derive copies the receiver for a transition. Trajectories are shared and
// must be replaced, not modified, by the caller.
func (s *Solution) derive() *Solution {
	out := *s
	out.phaseTime = append([]float64(nil), s.phaseTime...)
	out.shooting = append([]int(nil), s.shooting...)
	return &out
}

func (s *Solution) fresh(op string) error {
	if s.integrated || s.interpolated || s.merged {
		return fmt.Errorf("%s: %w (integrated=%t interpolated=%t merged=%t)",
			op, dynamo.ErrInvalidSolutionState, s.integrated, s.interpolated, s.merged)
	}
	return nil
}

func (s *Solution) Program() *ocp.Program { return s.prog }

// Vector returns the decision vector, available until the first transition.
func (s *Solution) Vector() ([]float64, error) {
	if s.vector == nil {
		return nil, fmt.Errorf("%w: decision vector dropped after integration or interpolation", dynamo.ErrMissingData)
	}
	return append([]float64(nil), s.vector...), nil
}

// States returns the unscaled state trajectories, one per phase.
func (s *Solution) States() []*dynamo.Trajectory { return s.states.Unscaled }

func (s *Solution) StatesScaled() []*dynamo.Trajectory { return s.states.Scaled }

// Controls returns the unscaled control trajectories, removed by Interpolate.
func (s *Solution) Controls() ([]*dynamo.Trajectory, error) {
	if s.controls == nil {
		return nil, fmt.Errorf("%w: controls are not kept by interpolation", dynamo.ErrMissingData)
	}
	return s.controls.Unscaled, nil
}

func (s *Solution) ControlsScaled() ([]*dynamo.Trajectory, error) {
	if s.controls == nil {
		return nil, fmt.Errorf("%w: controls are not kept by interpolation", dynamo.ErrMissingData)
	}
	return s.controls.Scaled, nil
}

func (s *Solution) Stochastic() ([]*dynamo.Trajectory, error) {
	if s.stochastic == nil {
		return nil, fmt.Errorf("%w: stochastic variables are not kept by interpolation", dynamo.ErrMissingData)
	}
	return s.stochastic.Unscaled, nil
}

// Parameters returns the unscaled parameters as single-column matrices.
func (s *Solution) Parameters() *dynamo.Trajectory { return s.nodes.params }

func (s *Solution) ParametersScaled() *dynamo.Trajectory { return s.nodes.paramsRaw }

// PhaseTime returns [0, T1, T2, ...], or [0, total] once merged.
func (s *Solution) PhaseTime() []float64 { return append([]float64(nil), s.phaseTime...) }

// Time returns the absolute sample times of the state trajectories.
func (s *Solution) Time() [][]float64 { return s.times }

func (s *Solution) Shooting() []int { return append([]int(nil), s.shooting...) }

func (s *Solution) PhaseCount() int { return len(s.states.Unscaled) }

func (s *Solution) Metadata() Metadata { return s.meta }

func (s *Solution) IsIntegrated() bool   { return s.integrated }
func (s *Solution) IsInterpolated() bool { return s.interpolated }
func (s *Solution) IsMerged() bool       { return s.merged }

// Ensemble returns, per noise draw, the unscaled states of every phase. It is
// nil unless the solution comes from NoisyIntegrate.
func (s *Solution) Ensemble() [][]*dynamo.Trajectory { return s.ensemble }

// StatesNoIntermediate drops the interior collocation points, keeping one
// column per shooting node.
func (s *Solution) StatesNoIntermediate() []*dynamo.Trajectory {
	return s.noIntermediate(s.states.Unscaled)
}

func (s *Solution) StatesScaledNoIntermediate() []*dynamo.Trajectory {
	return s.noIntermediate(s.states.Scaled)
}

// TimeNoIntermediate is the time vector matching StatesNoIntermediate.
func (s *Solution) TimeNoIntermediate() [][]float64 {
	out := make([][]float64, len(s.times))
	for p, ts := range s.times {
		idx := s.keptColumns(p)
		out[p] = make([]float64, len(idx))
		for k, j := range idx {
			out[p][k] = ts[j]
		}
	}
	return out
}

func (s *Solution) noIntermediate(trs []*dynamo.Trajectory) []*dynamo.Trajectory {
	out := make([]*dynamo.Trajectory, len(trs))
	for p, tr := range trs {
		idx := s.keptColumns(p)
		out[p] = tr.Map(func(_ string, m *mat.Dense) *mat.Dense {
			return selectColumns(m, idx)
		})
	}
	return out
}

// keptColumns lists the state columns of phase p that are shooting nodes.
func (s *Solution) keptColumns(p int) []int {
	var idx []int
	off := 0
	for _, seg := range s.segments[p] {
		collocation := s.prog.Phases[seg.Phase].Scheme.IsCollocation()
		for j := 0; j < seg.Columns; j++ {
			if !collocation || seg.Stride <= 1 || j%seg.Stride == 0 {
				idx = append(idx, off+j)
			}
		}
		off += seg.Columns
	}
	return idx
}

func selectColumns(m *mat.Dense, idx []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for k, j := range idx {
		for i := 0; i < r; i++ {
			out.Set(i, k, m.At(i, j))
		}
	}
	return out
}

// completeControls pads controls without a last-node value with a NaN column
// so every phase has ns+1 control columns.
func completeControls(prog *ocp.Program, controls []*dynamo.Trajectory) []*dynamo.Trajectory {
	out := make([]*dynamo.Trajectory, len(controls))
	for p, tr := range controls {
		ph := prog.Phases[p]
		if ph.Control.HasLastNode() {
			out[p] = tr
			continue
		}
		out[p] = tr.Map(func(_ string, m *mat.Dense) *mat.Dense {
			r, _ := m.Dims()
			pad := mat.NewDense(r, 1, nil)
			for i := 0; i < r; i++ {
				pad.Set(i, 0, math.NaN())
			}
			return dynamo.HStack(m, pad)
		})
	}
	return out
}
