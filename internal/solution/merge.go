package solution

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
	"github.com/san-kum/dynopt/internal/timegrid"
)

// MergePhases collapses every phase into one. Adjacent phases share their
// boundary sample, so each phase but the last loses its trailing column.
func (s *Solution) MergePhases() (*Solution, error) {
	if err := s.fresh("merge phases"); err != nil {
		return nil, err
	}
	if err := s.checkCoherent(); err != nil {
		return nil, err
	}
	out := s.merge(true, true)
	s.logger.Debug("merged phases",
		zap.Int("phases", len(s.prog.Phases)),
		zap.Int("shooting", out.shooting[0]),
		zap.Int("columns", out.states.Unscaled[0].Columns()))
	return out, nil
}

func (s *Solution) checkCoherent() error {
	first := s.prog.Phases[0].Layout
	for p, ph := range s.prog.Phases[1:] {
		for _, g := range []ocp.Group{ocp.States, ocp.Controls, ocp.Stochastic} {
			if !first.Group(g).SameShape(ph.Layout.Group(g)) {
				return dynamo.InPhase(p+1, "merge phases", fmt.Errorf("%w: %s differ from phase 0",
					dynamo.ErrIncoherentPhaseDimensions, g))
			}
		}
	}
	return nil
}

// merge assumes coherent phases. With continuous unset every column is kept.
func (s *Solution) merge(continuous, withControls bool) *Solution {
	out := s.derive()
	out.merged = true

	last := len(s.times) - 1
	stateTakes := make([]int, len(s.times))
	var segments []segment
	for p, ts := range s.times {
		stateTakes[p] = len(ts)
		segs := append([]segment(nil), s.segments[p]...)
		if continuous && p < last {
			stateTakes[p]--
			segs[len(segs)-1].Columns--
		}
		segments = append(segments, segs...)
	}

	out.states = mergeValues(s.states, stateTakes)
	if s.ensemble != nil {
		out.ensemble = make([][]*dynamo.Trajectory, len(s.ensemble))
		for d, draw := range s.ensemble {
			out.ensemble[d] = []*dynamo.Trajectory{concatPhases(draw, stateTakes)}
		}
	}
	out.times = [][]float64{timegrid.Concatenate(s.times, continuous)}
	out.segments = [][]segment{segments}

	if withControls && s.controls != nil {
		controls := mergeValues(*s.controls, s.nodeTakes())
		out.controls = &controls
	} else {
		out.controls = nil
	}
	if s.stochastic != nil {
		stochastic := mergeValues(*s.stochastic, s.nodeTakes())
		out.stochastic = &stochastic
	}

	total, shooting := 0.0, 0
	for _, d := range s.phaseTime[1:] {
		total += d
	}
	for _, n := range s.shooting {
		shooting += n
	}
	out.phaseTime = []float64{0, total}
	out.shooting = []int{shooting}
	return out
}

// nodeTakes is the number of node-based columns each phase contributes: ns
// for every phase but the last, which keeps all of its columns.
func (s *Solution) nodeTakes() []int {
	takes := make([]int, len(s.shooting))
	for p, ns := range s.shooting {
		takes[p] = ns
	}
	takes[len(takes)-1] = -1
	return takes
}

func mergeValues(v Values, takes []int) Values {
	return Values{
		Scaled:   []*dynamo.Trajectory{concatPhases(v.Scaled, takes)},
		Unscaled: []*dynamo.Trajectory{concatPhases(v.Unscaled, takes)},
	}
}

// concatPhases joins phases column-wise, taking the leading takes[p] columns
// of phase p; a negative count takes every column.
func concatPhases(trs []*dynamo.Trajectory, takes []int) *dynamo.Trajectory {
	out := dynamo.NewTrajectory()
	if len(trs) == 0 {
		return out
	}
	for _, name := range trs[0].Names() {
		parts := make([]*mat.Dense, 0, len(trs))
		for p, tr := range trs {
			m, ok := tr.Get(name)
			if !ok {
				continue
			}
			r, c := m.Dims()
			n := takes[p]
			if n < 0 || n > c {
				n = c
			}
			if n == 0 {
				continue
			}
			parts = append(parts, mat.DenseCopyOf(m.Slice(0, r, 0, n)))
		}
		out.Set(name, dynamo.HStack(parts...))
	}
	return out
}
