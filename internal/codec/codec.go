// Package codec maps the flat decision vector of a program to per-phase
// named trajectories and back.
//
// The vector is laid out as the states of every phase, then the controls of
// every phase, then the parameters, then the stochastic variables of every
// phase. Inside a phase block values are node-major: for each column, the
// rows of each variable in declaration order.
package codec

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

// Decoded is the structured, scaled view of a decision vector. Parameters
// are stored as single-column matrices.
type Decoded struct {
	States     []*dynamo.Trajectory
	Controls   []*dynamo.Trajectory
	Stochastic []*dynamo.Trajectory
	Parameters *dynamo.Trajectory
}

// Groups returns the per-phase trajectories of a group.
func (d *Decoded) Groups(g ocp.Group) []*dynamo.Trajectory {
	switch g {
	case ocp.States:
		return d.States
	case ocp.Controls:
		return d.Controls
	case ocp.Stochastic:
		return d.Stochastic
	}
	return nil
}

var phaseGroups = []ocp.Group{ocp.States, ocp.Controls}

// Len is the decision vector length the program expects.
func Len(prog *ocp.Program) int {
	n := prog.Parameters.Dim()
	for _, ph := range prog.Phases {
		for _, g := range []ocp.Group{ocp.States, ocp.Controls, ocp.Stochastic} {
			n += ph.Layout.Group(g).Dim() * ph.Columns(g)
		}
	}
	return n
}

// Decode slices v into per-phase trajectories.
func Decode(prog *ocp.Program, v []float64) (*Decoded, error) {
	if want := Len(prog); len(v) != want {
		return nil, fmt.Errorf("%w: decision vector has %d values, layout needs %d",
			dynamo.ErrDimensionMismatch, len(v), want)
	}

	d := &Decoded{}
	off := 0
	for _, g := range phaseGroups {
		for _, ph := range prog.Phases {
			tr, n := decodeBlock(ph.Layout.Group(g), ph.Columns(g), v[off:])
			off += n
			appendGroup(d, g, tr)
		}
	}

	d.Parameters, _ = decodeBlock(prog.Parameters, 1, v[off:])
	off += prog.Parameters.Dim()

	for _, ph := range prog.Phases {
		tr, n := decodeBlock(ph.Layout.Stochastic, ph.StochasticColumns(), v[off:])
		off += n
		d.Stochastic = append(d.Stochastic, tr)
	}
	return d, nil
}

func appendGroup(d *Decoded, g ocp.Group, tr *dynamo.Trajectory) {
	switch g {
	case ocp.States:
		d.States = append(d.States, tr)
	case ocp.Controls:
		d.Controls = append(d.Controls, tr)
	}
}

func decodeBlock(list *ocp.VariableList, cols int, v []float64) (*dynamo.Trajectory, int) {
	tr := dynamo.NewTrajectory()
	dim := list.Dim()
	if dim == 0 {
		return tr, 0
	}
	for _, variable := range list.Variables() {
		m := mat.NewDense(variable.Size(), cols, nil)
		for j := 0; j < cols; j++ {
			for r := 0; r < variable.Size(); r++ {
				m.Set(r, j, v[j*dim+variable.Start+r])
			}
		}
		tr.Set(variable.Name, m)
	}
	return tr, dim * cols
}

// Encode is the inverse of Decode. Every phase must provide exactly the
// layout's variables with the layout's rows and columns.
func Encode(prog *ocp.Program, d *Decoded) ([]float64, error) {
	n := len(prog.Phases)
	if len(d.States) != n || len(d.Controls) != n || len(d.Stochastic) != n {
		return nil, fmt.Errorf("%w: decoded data covers %d/%d/%d phases, program has %d",
			dynamo.ErrDimensionMismatch, len(d.States), len(d.Controls), len(d.Stochastic), n)
	}

	out := make([]float64, 0, Len(prog))
	var err error
	for _, g := range phaseGroups {
		for i, ph := range prog.Phases {
			out, err = encodeBlock(out, ph.Layout.Group(g), ph.Columns(g), d.Groups(g)[i])
			if err != nil {
				return nil, dynamo.InPhase(i, "encode "+g.String(), err)
			}
		}
	}
	out, err = encodeBlock(out, prog.Parameters, 1, d.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	for i, ph := range prog.Phases {
		out, err = encodeBlock(out, ph.Layout.Stochastic, ph.StochasticColumns(), d.Stochastic[i])
		if err != nil {
			return nil, dynamo.InPhase(i, "encode stochastic", err)
		}
	}
	return out, nil
}

func encodeBlock(out []float64, list *ocp.VariableList, cols int, tr *dynamo.Trajectory) ([]float64, error) {
	dim := list.Dim()
	if tr.Len() != list.Len() {
		return nil, fmt.Errorf("%w: %d variables, layout declares %d", dynamo.ErrDimensionMismatch, tr.Len(), list.Len())
	}
	if dim == 0 {
		return out, nil
	}

	block := make([]float64, dim*cols)
	for _, variable := range list.Variables() {
		m, ok := tr.Get(variable.Name)
		if !ok {
			return nil, fmt.Errorf("%w: missing variable %q", dynamo.ErrDimensionMismatch, variable.Name)
		}
		if r, c := m.Dims(); r != variable.Size() || c != cols {
			return nil, fmt.Errorf("%w: %q is %dx%d, layout needs %dx%d",
				dynamo.ErrDimensionMismatch, variable.Name, r, c, variable.Size(), cols)
		}
		for j := 0; j < cols; j++ {
			for r := 0; r < variable.Size(); r++ {
				block[j*dim+variable.Start+r] = m.At(r, j)
			}
		}
	}
	return append(out, block...), nil
}
