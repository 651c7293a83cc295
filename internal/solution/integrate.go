package solution

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/codec"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/ocp"
	"github.com/san-kum/dynopt/internal/timegrid"
)

// IntegratorKind selects who advances the state over an interval: the
// program's own discretization or a general-purpose stepper.
type IntegratorKind int

const (
	IntegratorOCP IntegratorKind = iota
	IntegratorRK45
	IntegratorRK4
	IntegratorEuler
	IntegratorVerlet
	IntegratorLeapfrog
)

func (k IntegratorKind) String() string {
	switch k {
	case IntegratorOCP:
		return "ocp"
	case IntegratorRK45:
		return "rk45"
	case IntegratorRK4:
		return "rk4"
	case IntegratorEuler:
		return "euler"
	case IntegratorVerlet:
		return "verlet"
	case IntegratorLeapfrog:
		return "leapfrog"
	default:
		return fmt.Sprintf("integrator(%d)", int(k))
	}
}

func ParseIntegratorKind(s string) (IntegratorKind, error) {
	for k := IntegratorOCP; k <= IntegratorLeapfrog; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	if s == "" {
		return IntegratorOCP, nil
	}
	return 0, fmt.Errorf("%w: unknown integrator %q", dynamo.ErrInvalidArgument, s)
}

type IntegrateOptions struct {
	Shooting               timegrid.Shooting
	KeepIntermediatePoints bool
	MergePhases            bool
	Integrator             IntegratorKind
	// MaxStep bounds the general-purpose steps; zero means a tenth of the
	// interval.
	MaxStep   float64
	Tolerance float64
}

func DefaultIntegrateOptions() IntegrateOptions {
	return IntegrateOptions{
		Shooting:   timegrid.Single,
		Integrator: IntegratorOCP,
		Tolerance:  1e-6,
	}
}

// nodeInputs are the unscaled node values an integration starts from.
type nodeInputs struct {
	states     []*mat.Dense
	controls   []*mat.Dense
	stochastic []*mat.Dense
	params     []float64
	durations  []float64
}

func (s *Solution) nodeInputs() nodeInputs {
	in := nodeInputs{
		params:    codec.ParameterValues(s.prog.Parameters, s.nodes.params),
		durations: s.nodes.durations,
	}
	for p := range s.prog.Phases {
		in.states = append(in.states, s.nodes.states.Unscaled[p].Stacked())
		in.controls = append(in.controls, s.nodes.controls.Unscaled[p].Stacked())
		in.stochastic = append(in.stochastic, s.nodes.stochastic.Unscaled[p].Stacked())
	}
	return in
}

type simulated struct {
	states  []*mat.Dense
	times   [][]float64
	strides []int
}

// Integrate re-simulates every phase from the decoded nodes and returns a
// new, integrated solution.
func (s *Solution) Integrate(ctx context.Context, opts IntegrateOptions) (*Solution, error) {
	if err := s.checkIntegrate(opts); err != nil {
		return nil, err
	}

	sim, err := s.simulate(ctx, opts, s.nodeInputs())
	if err != nil {
		return nil, err
	}

	out := s.withSimulated(sim, opts)
	if opts.MergePhases {
		out = out.merge(opts.Shooting == timegrid.Single, true)
	}

	s.logger.Debug("integrated solution",
		zap.Stringer("shooting", opts.Shooting),
		zap.Stringer("integrator", opts.Integrator),
		zap.Bool("keep_intermediate_points", opts.KeepIntermediatePoints),
		zap.Bool("merged", opts.MergePhases),
		zap.Ints("columns", columnCounts(out.states.Unscaled)))
	return out, nil
}

func (s *Solution) withSimulated(sim simulated, opts IntegrateOptions) *Solution {
	out := s.derive()
	out.vector = nil
	out.integrated = true
	out.times = sim.times
	out.states = Values{}
	out.segments = make([][]segment, len(sim.states))
	for p, m := range sim.states {
		layout := s.prog.Phases[p].Layout.States
		unscaled := splitRows(layout, m)
		out.states.Unscaled = append(out.states.Unscaled, unscaled)
		out.states.Scaled = append(out.states.Scaled, codec.Scale(layout, unscaled))
		_, c := m.Dims()
		out.segments[p] = []segment{{Phase: p, Columns: c, Stride: sim.strides[p]}}
	}
	return out
}

func (s *Solution) checkIntegrate(opts IntegrateOptions) error {
	if err := s.fresh("integrate"); err != nil {
		return err
	}
	if opts.Shooting == timegrid.Multiple && !opts.KeepIntermediatePoints {
		return fmt.Errorf("%w: multiple shooting needs keep_intermediate_points", dynamo.ErrInvalidArgument)
	}
	if opts.Integrator < IntegratorOCP || opts.Integrator > IntegratorLeapfrog {
		return fmt.Errorf("%w: unknown integrator %d", dynamo.ErrInvalidArgument, int(opts.Integrator))
	}
	if opts.Integrator == IntegratorRK45 && opts.Tolerance <= 0 {
		return fmt.Errorf("%w: rk45 needs a positive tolerance", dynamo.ErrInvalidArgument)
	}
	for p, ph := range s.prog.Phases {
		if opts.Integrator == IntegratorOCP {
			if ph.Scheme.Kind != ocp.DirectMultipleShooting {
				return dynamo.InPhase(p, "integrate", fmt.Errorf("%w: %s needs a general-purpose integrator",
					dynamo.ErrUnsupportedIntegrator, ph.Scheme.Kind))
			}
			if len(ph.Intervals) == 0 && ph.Dynamics == nil {
				return dynamo.InPhase(p, "integrate", fmt.Errorf("%w: phase has neither interval functions nor dynamics",
					dynamo.ErrInvalidArgument))
			}
			continue
		}
		if ph.Dynamics == nil {
			return dynamo.InPhase(p, "integrate", fmt.Errorf("%w: %s needs phase dynamics",
				dynamo.ErrInvalidArgument, opts.Integrator))
		}
	}
	if opts.MergePhases {
		return s.checkCoherent()
	}
	return nil
}

func (s *Solution) simulate(ctx context.Context, opts IntegrateOptions, in nodeInputs) (simulated, error) {
	var out simulated
	starts := codec.PhaseStarts(in.durations)
	continuous := opts.Shooting != timegrid.Multiple

	var prevEnd dynamo.State
	for p, ph := range s.prog.Phases {
		start, duration := starts[p], in.durations[p]
		dt := ph.IntervalDt(duration)
		grid := timegrid.Phase(ph, start, duration, timegrid.Options{
			Shooting:               opts.Shooting,
			KeepIntermediatePoints: opts.KeepIntermediatePoints,
		})
		xNodes := in.states[p]
		nc := ph.Scheme.NodeColumns()

		var x0 dynamo.State
		switch {
		case opts.Shooting == timegrid.Single && p > 0:
			var err error
			if x0, err = s.transitionStart(p, prevEnd, in); err != nil {
				return out, err
			}
		case opts.Shooting != timegrid.Multiple:
			x0 = mat.Col(nil, 0, xNodes)
		}

		step, err := s.stepper(ph, p, opts)
		if err != nil {
			return out, err
		}

		parts := make([]*mat.Dense, 0, ph.Shooting+1)
		for i := 0; i < ph.Shooting; i++ {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			default:
			}

			if opts.Shooting == timegrid.Multiple {
				x0 = mat.Col(nil, i*nc, xNodes)
			}
			sample := append([]float64(nil), grid[i]...)
			if continuous {
				sample = append(sample, start+float64(i+1)*dt)
			}

			inputs := intervalInputs(ph, in, p, i, start+float64(i)*dt, dt)
			xs, err := step(ctx, i, x0, inputs, sample)
			if err != nil {
				return out, dynamo.InPhase(p, fmt.Sprintf("integrate interval %d", i), err)
			}

			_, c := xs.Dims()
			if continuous {
				x0 = mat.Col(nil, c-1, xs)
				xs = mat.DenseCopyOf(xs.Slice(0, len(x0), 0, c-1))
			}
			parts = append(parts, xs)
		}

		r, c := xNodes.Dims()
		if continuous {
			parts = append(parts, dynamo.ColumnVector(x0))
		} else {
			parts = append(parts, mat.DenseCopyOf(xNodes.Slice(0, r, c-1, c)))
		}
		states := dynamo.HStack(parts...)
		prevEnd = mat.Col(nil, lastColumn(states), states)

		times := timegrid.Flatten(grid)
		if _, n := states.Dims(); n != len(times) {
			return out, dynamo.InPhase(p, "integrate", fmt.Errorf("%w: %d samples for %d times",
				dynamo.ErrDimensionMismatch, n, len(times)))
		}

		stride := 1
		if ph.Scheme.IsCollocation() && opts.KeepIntermediatePoints {
			stride = len(timegrid.StepTimes(ph.Scheme, true, continuous))
		}
		out.states = append(out.states, states)
		out.times = append(out.times, times)
		out.strides = append(out.strides, stride)
	}
	return out, nil
}

// transitionStart applies the transition between phase p-1 and p to the
// previous end state.
func (s *Solution) transitionStart(p int, prevEnd dynamo.State, in nodeInputs) (dynamo.State, error) {
	prev, ph := s.prog.Phases[p-1], s.prog.Phases[p]
	if prev.StateDim() != ph.StateDim() {
		return nil, dynamo.InPhase(p, "phase transition", fmt.Errorf("%w: %d states after %d",
			dynamo.ErrPhaseTransitionDimension, ph.StateDim(), prev.StateDim()))
	}

	var u dynamo.Control
	if uPrev := in.controls[p-1]; uPrev != nil {
		u = mat.Col(nil, lastColumn(uPrev), uPrev)
	}
	var sv []float64
	if sPrev := in.stochastic[p-1]; sPrev != nil {
		sv = mat.Col(nil, lastColumn(sPrev), sPrev)
	}
	starts := codec.PhaseStarts(in.durations)

	residual := s.prog.Transitions[p-1].Residual(ocp.TransitionInput{
		Phase:          p - 1,
		T:              starts[p],
		Pre:            prevEnd,
		Post:           prevEnd,
		PreControl:     u,
		PostControl:    u,
		P:              in.params,
		PreStochastic:  sv,
		PostStochastic: sv,
	})
	if len(residual) != len(prevEnd) {
		return nil, dynamo.InPhase(p, "phase transition", fmt.Errorf("%w: residual has %d rows, state %d",
			dynamo.ErrPhaseTransitionDimension, len(residual), len(prevEnd)))
	}
	return prevEnd.Add(residual), nil
}

func intervalInputs(ph *ocp.Phase, in nodeInputs, p, i int, t0, dt float64) dynamo.Inputs {
	inputs := dynamo.Inputs{T0: t0, Span: dt, P: in.params}
	if u := in.controls[p]; u != nil && ph.Control != ocp.None {
		inputs.U0 = mat.Col(nil, i, u)
		if ph.Control == ocp.LinearContinuous {
			inputs.U1 = mat.Col(nil, i+1, u)
		}
	}
	if sv := in.stochastic[p]; sv != nil {
		inputs.S = mat.Col(nil, i, sv)
	}
	return inputs
}

type stepFunc func(ctx context.Context, node int, x0 dynamo.State, in dynamo.Inputs, sample []float64) (*mat.Dense, error)

func (s *Solution) stepper(ph *ocp.Phase, p int, opts IntegrateOptions) (stepFunc, error) {
	if opts.Integrator == IntegratorOCP {
		return nativeStepper(ph, opts.KeepIntermediatePoints), nil
	}

	integ, err := integrators.New(opts.Integrator.String())
	if err != nil {
		return nil, err
	}
	cfg := dynamo.DefaultConfig()
	cfg.Adaptive = opts.Integrator == IntegratorRK45
	if opts.Tolerance > 0 {
		cfg.Tolerance = opts.Tolerance
	}

	return func(ctx context.Context, node int, x0 dynamo.State, in dynamo.Inputs, sample []float64) (*mat.Dense, error) {
		c := cfg
		c.MaxDt = opts.MaxStep
		if c.MaxDt <= 0 {
			c.MaxDt = in.Span / 10
		}
		if c.MaxDt <= 0 {
			c.MaxDt = dynamo.DefaultConfig().MaxDt
		}
		return integrators.Solve(ctx, integ, ph.Dynamics, x0, in, sample, c)
	}, nil
}

// nativeStepper reproduces the program's own discretization: the phase's
// interval functions, or RK4 with the scheme's sub-steps on its dynamics.
func nativeStepper(ph *ocp.Phase, keep bool) stepFunc {
	steps := ph.Scheme.SubSteps()
	return func(_ context.Context, node int, x0 dynamo.State, in dynamo.Inputs, sample []float64) (*mat.Dense, error) {
		var xs *mat.Dense
		if fn, ok := ph.Interval(node); ok {
			var err error
			xs, err = fn(ocp.IntervalInput{
				Node: node, T0: in.T0, Dt: in.Span,
				X0: x0, U0: in.U0, U1: in.U1, P: in.P, S: in.S,
			})
			if err != nil {
				return nil, err
			}
		} else {
			xs = rk4Interval(ph.Dynamics, x0, in, steps)
		}

		r, c := xs.Dims()
		if r != len(x0) || c != steps+1 {
			return nil, fmt.Errorf("%w: interval function returned %dx%d, expected %dx%d",
				dynamo.ErrDimensionMismatch, r, c, len(x0), steps+1)
		}
		if keep {
			return xs, nil
		}
		return selectColumns(xs, []int{0, c - 1}), nil
	}
}

func rk4Interval(dyn dynamo.System, x0 dynamo.State, in dynamo.Inputs, steps int) *mat.Dense {
	out := mat.NewDense(len(x0), steps+1, nil)
	out.SetCol(0, x0)
	h := in.Span / float64(steps)
	integ := integrators.NewRK4()
	x := x0
	for k := 0; k < steps; k++ {
		x = integ.Step(dyn, x, in, in.T0+float64(k)*h, h)
		out.SetCol(k+1, x)
	}
	return out
}

// splitRows cuts a stacked matrix back into the variables of list.
func splitRows(list *ocp.VariableList, m *mat.Dense) *dynamo.Trajectory {
	tr := dynamo.NewTrajectory()
	_, c := m.Dims()
	for _, v := range list.Variables() {
		tr.Set(v.Name, mat.DenseCopyOf(m.Slice(v.Start, v.End, 0, c)))
	}
	return tr
}

func lastColumn(m *mat.Dense) int {
	_, c := m.Dims()
	return c - 1
}

func columnCounts(trs []*dynamo.Trajectory) []int {
	out := make([]int, len(trs))
	for i, tr := range trs {
		out[i] = tr.Columns()
	}
	return out
}
