package solution

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/timegrid"
)

// NoiseOptions configures NoisyIntegrate. Each draw perturbs the decoded
// controls by MotorSigma and the starting states by InitialSigma. Workers
// bounds how many draws integrate at once; below 2 they run in sequence.
type NoiseOptions struct {
	Draws        int
	MotorSigma   float64
	InitialSigma float64
	Seed         uint64
	Workers      int
}

// NoisyIntegrate runs Integrate once per noise draw. The returned solution
// holds the ensemble mean as its states; Ensemble exposes every draw.
func (s *Solution) NoisyIntegrate(ctx context.Context, opts IntegrateOptions, noise NoiseOptions) (*Solution, error) {
	if err := s.checkIntegrate(opts); err != nil {
		return nil, err
	}
	if noise.Draws < 1 {
		return nil, fmt.Errorf("%w: noisy integration needs at least one draw", dynamo.ErrInvalidArgument)
	}
	if noise.MotorSigma < 0 || noise.InitialSigma < 0 {
		return nil, fmt.Errorf("%w: noise standard deviations must be non-negative", dynamo.ErrInvalidArgument)
	}

	draws, err := s.runDraws(ctx, opts, noise)
	if err != nil {
		return nil, err
	}

	out := s.withSimulated(meanOf(draws), opts)
	out.ensemble = make([][]*dynamo.Trajectory, noise.Draws)
	for d, sim := range draws {
		for p, m := range sim.states {
			out.ensemble[d] = append(out.ensemble[d], splitRows(s.prog.Phases[p].Layout.States, m))
		}
	}
	if opts.MergePhases {
		out = out.merge(opts.Shooting == timegrid.Single, true)
	}

	s.logger.Debug("noisy integration",
		zap.Int("draws", noise.Draws),
		zap.Float64("motor_sigma", noise.MotorSigma),
		zap.Float64("initial_sigma", noise.InitialSigma),
		zap.Int("workers", noise.Workers))
	return out, nil
}

// runDraws integrates every draw. Draw d always uses the stream (Seed, d),
// so the result does not depend on Workers.
func (s *Solution) runDraws(ctx context.Context, opts IntegrateOptions, noise NoiseOptions) ([]simulated, error) {
	base := s.nodeInputs()
	draws := make([]simulated, noise.Draws)
	errs := make([]error, noise.Draws)

	run := func(d int) {
		rng := rand.New(rand.NewPCG(noise.Seed, uint64(d)))
		draws[d], errs[d] = s.simulate(ctx, opts, perturb(base, rng, noise, opts.Shooting))
	}

	if noise.Workers < 2 {
		for d := range draws {
			run(d)
			if errs[d] != nil {
				return nil, fmt.Errorf("noise draw %d: %w", d, errs[d])
			}
		}
		return draws, nil
	}

	sem := make(chan struct{}, noise.Workers)
	var wg sync.WaitGroup
	for d := range draws {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			run(idx)
		}(d)
	}
	wg.Wait()

	for d, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("noise draw %d: %w", d, err)
		}
	}
	return draws, nil
}

// perturb draws noisy starting states and controls. Under single shooting
// only the first state column is perturbed; under multiple shooting every
// column but the trailing node is.
func perturb(base nodeInputs, rng *rand.Rand, noise NoiseOptions, shooting timegrid.Shooting) nodeInputs {
	out := base
	out.states = make([]*mat.Dense, len(base.states))
	out.controls = make([]*mat.Dense, len(base.controls))

	for p, x := range base.states {
		x = mat.DenseCopyOf(x)
		if noise.InitialSigma > 0 {
			r, c := x.Dims()
			cols := []int{0}
			if shooting == timegrid.Multiple {
				// the trailing node is copied, not integrated
				cols = make([]int, max(c-1, 1))
				for j := range cols {
					cols[j] = j
				}
			}
			for _, j := range cols {
				for i := 0; i < r; i++ {
					x.Set(i, j, x.At(i, j)+noise.InitialSigma*rng.NormFloat64())
				}
			}
		}
		out.states[p] = x
	}

	for p, u := range base.controls {
		if u == nil {
			continue
		}
		u = mat.DenseCopyOf(u)
		if noise.MotorSigma > 0 {
			u.Apply(func(_, _ int, v float64) float64 {
				return v + noise.MotorSigma*rng.NormFloat64()
			}, u)
		}
		out.controls[p] = u
	}
	return out
}

// meanOf averages the draws entry by entry.
func meanOf(draws []simulated) simulated {
	first := draws[0]
	out := simulated{times: first.times, strides: first.strides}
	values := make([]float64, len(draws))
	for p, m := range first.states {
		r, c := m.Dims()
		mean := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				for d := range draws {
					values[d] = draws[d].states[p].At(i, j)
				}
				mean.Set(i, j, stat.Mean(values, nil))
			}
		}
		out.states = append(out.states, mean)
	}
	return out
}
