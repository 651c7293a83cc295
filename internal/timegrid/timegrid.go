// Package timegrid computes the absolute sample times of phase trajectories.
package timegrid

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

// Shooting is the policy used to chain intervals and phases.
type Shooting int

const (
	// Single integrates continuously through every interval and phase.
	Single Shooting = iota
	// SingleDiscontinuousPhase restarts each phase from its own first node.
	SingleDiscontinuousPhase
	// Multiple restarts every interval from its own node.
	Multiple
)

func (s Shooting) String() string {
	switch s {
	case Single:
		return "single"
	case SingleDiscontinuousPhase:
		return "single_discontinuous_phase"
	case Multiple:
		return "multiple"
	default:
		return fmt.Sprintf("shooting(%d)", int(s))
	}
}

func ParseShooting(s string) (Shooting, error) {
	switch s {
	case "single", "":
		return Single, nil
	case "single_discontinuous_phase", "discontinuous":
		return SingleDiscontinuousPhase, nil
	case "multiple":
		return Multiple, nil
	}
	return 0, fmt.Errorf("%w: unknown shooting policy %q", dynamo.ErrInvalidArgument, s)
}

type Options struct {
	Shooting               Shooting
	KeepIntermediatePoints bool
}

// StepTimes returns the normalized offsets in [0,1] sampled inside one
// interval. With continuous set the end offset is dropped because the next
// interval starts there.
func StepTimes(scheme ocp.OdeScheme, keep, continuous bool) []float64 {
	var offsets []float64
	switch {
	case !keep:
		offsets = []float64{0, 1}
	case scheme.IsCollocation():
		pts := scheme.CollocationPoints()
		if scheme.IncludeStartPoint {
			offsets = append(offsets, 0)
		}
		offsets = append(offsets, pts...)
		offsets = append(offsets, 1)
	default:
		offsets = floats.Span(make([]float64, scheme.SubSteps()+1), 0, 1)
	}
	if continuous {
		offsets = offsets[:len(offsets)-1]
	}
	return offsets
}

// Phase returns the absolute sample times of a phase as one slice per
// interval followed by a single-sample slice holding the final time.
func Phase(ph *ocp.Phase, start, duration float64, opts Options) [][]float64 {
	continuous := opts.Shooting != Multiple
	offsets := StepTimes(ph.Scheme, opts.KeepIntermediatePoints, continuous)
	dt := ph.IntervalDt(duration)

	out := make([][]float64, 0, ph.Shooting+1)
	for i := 0; i < ph.Shooting; i++ {
		interval := make([]float64, len(offsets))
		for k, o := range offsets {
			interval[k] = start + float64(i)*dt + o*dt
		}
		out = append(out, interval)
	}
	return append(out, []float64{start + float64(ph.Shooting)*dt})
}

// Flatten joins the per-interval slices of a phase grid.
func Flatten(grid [][]float64) []float64 {
	n := 0
	for _, g := range grid {
		n += len(g)
	}
	out := make([]float64, 0, n)
	for _, g := range grid {
		out = append(out, g...)
	}
	return out
}

// NodeTimes returns the times of the decision-vector state columns.
func NodeTimes(ph *ocp.Phase, start, duration float64) []float64 {
	pts := ph.Scheme.CollocationPoints()
	dt := ph.IntervalDt(duration)
	out := make([]float64, 0, ph.StateColumns())
	for i := 0; i < ph.Shooting; i++ {
		for _, o := range pts {
			out = append(out, start+float64(i)*dt+o*dt)
		}
	}
	return append(out, start+float64(ph.Shooting)*dt)
}

// Concatenate joins phase time vectors. When continuous, every phase but the
// last loses its final sample since the next phase starts there.
func Concatenate(phases [][]float64, continuous bool) []float64 {
	var out []float64
	for i, p := range phases {
		if continuous && i < len(phases)-1 && len(p) > 0 {
			p = p[:len(p)-1]
		}
		out = append(out, p...)
	}
	return out
}
