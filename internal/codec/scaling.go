package codec

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

// Unscale multiplies every row of tr by the scaling of its variable.
// Entries not declared in list are copied unchanged.
func Unscale(list *ocp.VariableList, tr *dynamo.Trajectory) *dynamo.Trajectory {
	return applyScaling(list, tr, func(v, s float64) float64 { return v * s })
}

// Scale divides by the scaling; it is the inverse of Unscale.
func Scale(list *ocp.VariableList, tr *dynamo.Trajectory) *dynamo.Trajectory {
	return applyScaling(list, tr, func(v, s float64) float64 { return v / s })
}

func applyScaling(list *ocp.VariableList, tr *dynamo.Trajectory, op func(v, s float64) float64) *dynamo.Trajectory {
	return tr.Map(func(name string, m *mat.Dense) *mat.Dense {
		out := mat.DenseCopyOf(m)
		variable, ok := list.Get(name)
		if !ok {
			return out
		}
		out.Apply(func(i, _ int, v float64) float64 {
			return op(v, variable.Scaling[i])
		}, out)
		return out
	})
}

// UnscaleAll applies Unscale phase by phase for one group.
func UnscaleAll(prog *ocp.Program, g ocp.Group, scaled []*dynamo.Trajectory) []*dynamo.Trajectory {
	out := make([]*dynamo.Trajectory, len(scaled))
	for i, tr := range scaled {
		out[i] = Unscale(prog.Phases[i].Layout.Group(g), tr)
	}
	return out
}

// ParameterValues flattens single-column parameter matrices in declaration
// order.
func ParameterValues(list *ocp.VariableList, params *dynamo.Trajectory) []float64 {
	out := make([]float64, 0, list.Dim())
	for _, variable := range list.Variables() {
		m, ok := params.Get(variable.Name)
		if !ok {
			continue
		}
		out = append(out, mat.Col(nil, 0, m)...)
	}
	return out
}

// Durations returns the length of every phase, reading free durations from
// the unscaled time parameter.
func Durations(prog *ocp.Program, unscaledParams *dynamo.Trajectory) ([]float64, error) {
	out := make([]float64, len(prog.Phases))
	var tm *mat.Dense
	for i, ph := range prog.Phases {
		row, free := prog.TimeRow(i)
		if !free {
			out[i] = ph.Duration
			continue
		}
		if tm == nil {
			var ok bool
			if tm, ok = unscaledParams.Get(ocp.TimeParameter); !ok {
				return nil, fmt.Errorf("%w: free duration of phase %d needs the %q parameter",
					dynamo.ErrMissingData, i, ocp.TimeParameter)
			}
		}
		out[i] = tm.At(row, 0)
	}
	return out, nil
}

// PhaseTime returns [0, T1, T2, ...] where Ti is the duration of phase i.
func PhaseTime(prog *ocp.Program, unscaledParams *dynamo.Trajectory) ([]float64, error) {
	d, err := Durations(prog, unscaledParams)
	if err != nil {
		return nil, err
	}
	return append([]float64{0}, d...), nil
}

// PhaseStarts returns the absolute start time of every phase.
func PhaseStarts(durations []float64) []float64 {
	out := make([]float64, len(durations))
	acc := 0.0
	for i, d := range durations {
		out[i] = acc
		acc += d
	}
	return out
}
