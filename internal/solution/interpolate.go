package solution

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/codec"
	"github.com/san-kum/dynopt/internal/dynamo"
)

// Frames is the requested sample count of an interpolation: either one count
// for the merged solution or one count per phase.
type Frames struct {
	all      int
	perPhase []int
}

// AllFrames merges the phases and resamples the result to n frames.
func AllFrames(n int) Frames { return Frames{all: n} }

// PhaseFrames resamples phase i to n[i] frames.
func PhaseFrames(n ...int) Frames { return Frames{perPhase: append([]int(nil), n...)} }

func (f Frames) merged() bool { return f.perPhase == nil }

// Interpolate resamples the states on uniform time grids with a piecewise
// linear fit. Controls and stochastic variables are not carried over.
func (s *Solution) Interpolate(frames Frames) (*Solution, error) {
	if err := s.fresh("interpolate"); err != nil {
		return nil, err
	}

	src := s
	counts := frames.perPhase
	if frames.merged() {
		if frames.all < 1 {
			return nil, fmt.Errorf("%w: frame count must be positive, got %d", dynamo.ErrInvalidArgument, frames.all)
		}
		if err := s.checkCoherent(); err != nil {
			return nil, err
		}
		src = s.merge(true, false)
		counts = []int{frames.all}
	} else {
		if len(counts) != len(s.times) {
			return nil, fmt.Errorf("%w: %d frame counts for %d phases", dynamo.ErrInvalidArgument, len(counts), len(s.times))
		}
		for p, n := range counts {
			if n < 1 {
				return nil, dynamo.InPhase(p, "interpolate", fmt.Errorf("%w: frame count must be positive, got %d",
					dynamo.ErrInvalidArgument, n))
			}
		}
	}

	out := src.derive()
	out.vector = nil
	out.interpolated = true
	out.controls = nil
	out.stochastic = nil
	out.states = Values{}
	out.times = make([][]float64, len(counts))
	out.segments = make([][]segment, len(counts))

	for p, n := range counts {
		ts := src.times[p]
		grid := uniformGrid(ts[0], ts[len(ts)-1], n)
		scaled, err := resample(src.states.Scaled[p], ts, grid)
		if err != nil {
			return nil, dynamo.InPhase(p, "interpolate", err)
		}
		layout := s.prog.Phases[src.segments[p][0].Phase].Layout.States
		out.states.Scaled = append(out.states.Scaled, scaled)
		out.states.Unscaled = append(out.states.Unscaled, codec.Unscale(layout, scaled))
		out.times[p] = grid
		out.segments[p] = []segment{{Phase: src.segments[p][0].Phase, Columns: n, Stride: 1}}
	}

	s.logger.Debug("interpolated solution",
		zap.Bool("merged", frames.merged()),
		zap.Ints("frames", counts))
	return out, nil
}

func uniformGrid(t0, t1 float64, n int) []float64 {
	if n == 1 {
		return []float64{t0}
	}
	return floats.Span(make([]float64, n), t0, t1)
}

// resample evaluates every row of tr, sampled at ts, on grid.
func resample(tr *dynamo.Trajectory, ts, grid []float64) (*dynamo.Trajectory, error) {
	keep := uniqueIndex(ts)
	xs := make([]float64, len(keep))
	for k, j := range keep {
		xs[k] = ts[j]
	}

	out := dynamo.NewTrajectory()
	for _, name := range tr.Names() {
		m, _ := tr.Get(name)
		r, c := m.Dims()
		if c != len(ts) {
			return nil, fmt.Errorf("%w: %q has %d samples for %d times", dynamo.ErrDimensionMismatch, name, c, len(ts))
		}
		res := mat.NewDense(r, len(grid), nil)
		for i := 0; i < r; i++ {
			ys := make([]float64, len(keep))
			for k, j := range keep {
				ys[k] = m.At(i, j)
			}
			if len(xs) == 1 {
				for g := range grid {
					res.Set(i, g, ys[0])
				}
				continue
			}
			var pl interp.PiecewiseLinear
			if err := pl.Fit(xs, ys); err != nil {
				return nil, fmt.Errorf("fit %q: %w", name, err)
			}
			for g, t := range grid {
				res.Set(i, g, pl.Predict(t))
			}
		}
		out.Set(name, res)
	}
	return out, nil
}

// uniqueIndex returns, in increasing time order, the first index of every
// distinct time in ts.
func uniqueIndex(ts []float64) []int {
	idx := make([]int, 0, len(ts))
	for j, t := range ts {
		if len(idx) > 0 && t <= ts[idx[len(idx)-1]] {
			continue
		}
		idx = append(idx, j)
	}
	return idx
}
