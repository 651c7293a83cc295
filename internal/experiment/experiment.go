// Package experiment assembles a program from a problem file and runs the
// post-processing pipeline on it.
package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/ocp"
	"github.com/san-kum/dynopt/internal/solution"
	"github.com/san-kum/dynopt/internal/timegrid"
)

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *zap.Logger
	model    models.Model
	prog     *ocp.Program
}

type Option func(*Experiment)

func WithLogger(l *zap.Logger) Option {
	return func(e *Experiment) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) {
		if r != nil {
			e.registry = r
		}
	}
}

// Result holds every stage of a run. Interpolated is nil unless the problem
// file asks for resampling.
type Result struct {
	Initial      *solution.Solution
	Integrated   *solution.Solution
	Interpolated *solution.Solution
	Terms        []solution.CostTerm
	Cost         float64
	Elapsed      time.Duration
}

// New builds the program described by cfg.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	e := &Experiment{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	model, err := e.registry.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	e.model = model

	if e.prog, err = e.buildProgram(); err != nil {
		return nil, err
	}
	e.logger.Debug("program built",
		zap.String("model", cfg.Model),
		zap.Int("phases", len(e.prog.Phases)),
		zap.Int("parameters", e.prog.Parameters.Dim()))
	return e, nil
}

func (e *Experiment) Program() *ocp.Program { return e.prog }

func (e *Experiment) Model() models.Model { return e.model }

func (e *Experiment) buildProgram() (*ocp.Program, error) {
	phases := make([]*ocp.Phase, len(e.cfg.Phases))
	for i, pc := range e.cfg.Phases {
		ph, err := e.buildPhase(pc)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i, err)
		}
		phases[i] = ph
	}

	var objectives, constraints []ocp.Penalty
	for _, set := range []struct {
		entries    []config.PenaltyConfig
		constraint bool
	}{{e.cfg.Objectives, false}, {e.cfg.Constraints, true}} {
		for _, pc := range set.entries {
			build, err := e.registry.GetPenalty(pc.Type)
			if err != nil {
				return nil, err
			}
			pen, err := build(phases, e.model, pc)
			if err != nil {
				return nil, fmt.Errorf("penalty %s: %w", pc.Type, err)
			}

			switch pen.Kind {
			case ocp.TransitionTerm, ocp.MultinodeTerm, ocp.ParameterTerm:
				if set.constraint {
					constraints = append(constraints, pen)
				} else {
					objectives = append(objectives, pen)
				}
			default:
				ph := phases[pc.Phase]
				if set.constraint {
					ph.Constraints = append(ph.Constraints, pen)
				} else {
					ph.Objectives = append(ph.Objectives, pen)
				}
			}
		}
	}

	params := ocp.NewVariableList()
	for _, v := range e.cfg.Parameters {
		if err := params.Add(v.Name, v.Size, v.Scaling...); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", v.Name, err)
		}
	}

	threads := e.cfg.Threads
	if threads == 0 {
		threads = 1
	}
	return ocp.NewProgram(phases,
		ocp.WithParameters(params),
		ocp.WithObjectives(objectives...),
		ocp.WithConstraints(constraints...),
		ocp.WithThreads(threads))
}

func (e *Experiment) buildPhase(pc config.PhaseConfig) (*ocp.Phase, error) {
	kind, err := ocp.ParseSchemeKind(pc.Scheme.Kind)
	if err != nil {
		return nil, err
	}
	scheme := ocp.OdeScheme{
		Kind:              kind,
		Steps:             pc.Scheme.Steps,
		Degree:            pc.Scheme.Degree,
		IncludeStartPoint: pc.Scheme.IncludeStartPoint,
	}
	if kind == ocp.DirectMultipleShooting && scheme.Steps == 0 {
		scheme.Steps = config.DefaultSteps
	}
	control, err := ocp.ParseControlType(pc.ControlType)
	if err != nil {
		return nil, err
	}

	states := ocp.NewVariableList()
	for _, name := range e.model.StateNames() {
		if err := states.Add(name, 1, pc.StateScaling[name]...); err != nil {
			return nil, err
		}
	}
	for name := range pc.StateScaling {
		if _, ok := states.Get(name); !ok {
			return nil, fmt.Errorf("state_scaling: unknown state %q", name)
		}
	}
	controls := ocp.NewVariableList()
	if control != ocp.None {
		for _, name := range e.model.ControlNames() {
			if err := controls.Add(name, 1); err != nil {
				return nil, err
			}
		}
	}
	stochastic := ocp.NewVariableList()
	for _, v := range pc.Stochastic {
		if err := stochastic.Add(v.Name, v.Size, v.Scaling...); err != nil {
			return nil, err
		}
	}

	return &ocp.Phase{
		Shooting:     pc.Shooting,
		Duration:     pc.Duration,
		FreeDuration: pc.FreeDuration,
		Scheme:       scheme,
		Control:      control,
		Layout:       ocp.Layout{States: states, Controls: controls, Stochastic: stochastic},
		Dynamics:     e.model,
	}, nil
}

// Initial decodes the configured vector, or expands the initial guess when
// no vector is given.
func (e *Experiment) Initial() (*solution.Solution, error) {
	if len(e.cfg.Vector) > 0 {
		return solution.FromVector(e.prog, e.cfg.Vector, solution.WithLogger(e.logger))
	}
	guess, err := e.initialGuess()
	if err != nil {
		return nil, err
	}
	return solution.FromInitialGuess(e.prog, guess, solution.WithLogger(e.logger))
}

func (e *Experiment) initialGuess() (solution.InitialGuess, error) {
	gc := e.cfg.Guess
	out := solution.InitialGuess{Parameters: gc.Parameters}
	var err error
	if out.States, err = guesses(gc.States, len(e.prog.Phases)); err != nil {
		return out, fmt.Errorf("states: %w", err)
	}
	if out.Controls, err = guesses(gc.Controls, len(e.prog.Phases)); err != nil {
		return out, fmt.Errorf("controls: %w", err)
	}
	if out.Stochastic, err = guesses(gc.Stochastic, len(e.prog.Phases)); err != nil {
		return out, fmt.Errorf("stochastic: %w", err)
	}
	return out, nil
}

// guesses pads missing trailing phases with empty maps.
func guesses(entries []map[string]config.GuessEntry, phases int) ([]map[string]solution.Guess, error) {
	if entries == nil {
		return nil, nil
	}
	if len(entries) > phases {
		return nil, fmt.Errorf("%d phase guesses for %d phases", len(entries), phases)
	}
	out := make([]map[string]solution.Guess, phases)
	for p := range out {
		out[p] = map[string]solution.Guess{}
		if p >= len(entries) {
			continue
		}
		for name, entry := range entries[p] {
			g, err := guess(entry)
			if err != nil {
				return nil, fmt.Errorf("phase %d %s: %w", p, name, err)
			}
			out[p][name] = g
		}
	}
	return out, nil
}

func guess(entry config.GuessEntry) (solution.Guess, error) {
	kind, err := solution.ParseGuessKind(entry.Type)
	if err != nil {
		return solution.Guess{}, err
	}
	if len(entry.Values) == 0 || len(entry.Values[0]) == 0 {
		return solution.Guess{}, fmt.Errorf("empty values")
	}
	cols := len(entry.Values[0])
	m := mat.NewDense(len(entry.Values), cols, nil)
	for i, row := range entry.Values {
		if len(row) != cols {
			return solution.Guess{}, fmt.Errorf("row %d has %d values, row 0 has %d", i, len(row), cols)
		}
		m.SetRow(i, row)
	}
	return solution.Guess{Kind: kind, Values: m}, nil
}

// IntegrateOptions converts the integrate section of the problem file.
func (e *Experiment) IntegrateOptions() (solution.IntegrateOptions, error) {
	ic := e.cfg.Integrate
	opts := solution.DefaultIntegrateOptions()
	var err error
	if opts.Shooting, err = timegrid.ParseShooting(ic.Shooting); err != nil {
		return opts, err
	}
	if opts.Integrator, err = solution.ParseIntegratorKind(ic.Integrator); err != nil {
		return opts, err
	}
	opts.KeepIntermediatePoints = ic.KeepIntermediatePoints
	opts.MergePhases = ic.MergePhases
	opts.MaxStep = ic.MaxStep
	if ic.Tolerance > 0 {
		opts.Tolerance = ic.Tolerance
	}
	return opts, nil
}

// Run decodes the initial point, evaluates its cost, integrates it and
// optionally resamples it.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	var err error
	if res.Initial, err = e.Initial(); err != nil {
		return nil, err
	}
	if res.Terms, err = res.Initial.Terms(solution.CostAll); err != nil {
		return nil, err
	}
	if res.Cost, err = res.Initial.Cost(); err != nil {
		return nil, err
	}

	opts, err := e.IntegrateOptions()
	if err != nil {
		return nil, err
	}
	if n := e.cfg.Noise; n.Draws > 0 {
		res.Integrated, err = res.Initial.NoisyIntegrate(ctx, opts, solution.NoiseOptions{
			Draws:        n.Draws,
			MotorSigma:   n.MotorSigma,
			InitialSigma: n.InitialSigma,
			Seed:         n.Seed,
			Workers:      n.Workers,
		})
	} else {
		res.Integrated, err = res.Initial.Integrate(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	ic := e.cfg.Interpolate
	switch {
	case len(ic.PhaseFrames) > 0:
		res.Interpolated, err = res.Initial.Interpolate(solution.PhaseFrames(ic.PhaseFrames...))
	case ic.Frames > 0:
		res.Interpolated, err = res.Initial.Interpolate(solution.AllFrames(ic.Frames))
	}
	if err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	e.logger.Info("run complete",
		zap.String("model", e.cfg.Model),
		zap.Float64("cost", res.Cost),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}
