package solution

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/codec"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

type GuessKind int

const (
	// GuessConstant repeats one value per row on every column.
	GuessConstant GuessKind = iota
	// GuessLinear goes from a start column to an end column.
	GuessLinear
	// GuessEachFrame gives every column explicitly.
	GuessEachFrame
)

func (k GuessKind) String() string {
	switch k {
	case GuessConstant:
		return "constant"
	case GuessLinear:
		return "linear"
	case GuessEachFrame:
		return "each_frame"
	default:
		return fmt.Sprintf("guess(%d)", int(k))
	}
}

func ParseGuessKind(s string) (GuessKind, error) {
	for k := GuessConstant; k <= GuessEachFrame; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown initial guess type %q", dynamo.ErrInvalidArgument, s)
}

// Guess is the unscaled initial value of one variable. Values has one row per
// variable row: one column for a constant, two for a linear guess and one per
// frame otherwise.
type Guess struct {
	Kind   GuessKind
	Values *mat.Dense

	err error
}

func ConstantGuess(v ...float64) Guess {
	if len(v) == 0 {
		return Guess{Kind: GuessConstant, err: fmt.Errorf("%w: constant guess has no values", dynamo.ErrDimensionMismatch)}
	}
	return Guess{Kind: GuessConstant, Values: mat.NewDense(len(v), 1, append([]float64(nil), v...))}
}

func LinearGuess(start, end []float64) Guess {
	if len(start) == 0 || len(end) != len(start) {
		return Guess{Kind: GuessLinear, err: fmt.Errorf("%w: linear guess from %d values to %d",
			dynamo.ErrDimensionMismatch, len(start), len(end))}
	}
	m := mat.NewDense(len(start), 2, nil)
	m.SetCol(0, start)
	m.SetCol(1, end)
	return Guess{Kind: GuessLinear, Values: m}
}

func EachFrameGuess(m *mat.Dense) Guess {
	if m == nil || m.IsEmpty() {
		return Guess{Kind: GuessEachFrame, err: fmt.Errorf("%w: each-frame guess has no frames", dynamo.ErrDimensionMismatch)}
	}
	return Guess{Kind: GuessEachFrame, Values: mat.DenseCopyOf(m)}
}

// InitialGuess holds per-phase guesses keyed by variable name. Missing
// variables start at zero and a missing time parameter starts at the phase
// durations.
type InitialGuess struct {
	States     []map[string]Guess
	Controls   []map[string]Guess
	Stochastic []map[string]Guess
	Parameters map[string][]float64
}

func (g InitialGuess) group(gr ocp.Group) []map[string]Guess {
	switch gr {
	case ocp.States:
		return g.States
	case ocp.Controls:
		return g.Controls
	case ocp.Stochastic:
		return g.Stochastic
	}
	return nil
}

// FromInitialGuess expands the guesses over the node grid, scales them and
// decodes the resulting vector.
func FromInitialGuess(prog *ocp.Program, guess InitialGuess, opts ...Option) (*Solution, error) {
	d := &codec.Decoded{}
	for _, gr := range []ocp.Group{ocp.States, ocp.Controls, ocp.Stochastic} {
		perPhase := guess.group(gr)
		if perPhase != nil && len(perPhase) != len(prog.Phases) {
			return nil, fmt.Errorf("%w: %s guess covers %d phases, program has %d",
				dynamo.ErrDimensionMismatch, gr, len(perPhase), len(prog.Phases))
		}
		for p, ph := range prog.Phases {
			var given map[string]Guess
			if perPhase != nil {
				given = perPhase[p]
			}
			tr, err := expandPhase(ph, gr, given)
			if err != nil {
				return nil, dynamo.InPhase(p, "initial guess", err)
			}
			scaled := codec.Scale(ph.Layout.Group(gr), tr)
			switch gr {
			case ocp.States:
				d.States = append(d.States, scaled)
			case ocp.Controls:
				d.Controls = append(d.Controls, scaled)
			case ocp.Stochastic:
				d.Stochastic = append(d.Stochastic, scaled)
			}
		}
	}

	params, err := guessParameters(prog, guess.Parameters)
	if err != nil {
		return nil, err
	}
	d.Parameters = codec.Scale(prog.Parameters, params)

	v, err := codec.Encode(prog, d)
	if err != nil {
		return nil, err
	}
	return FromVector(prog, v, opts...)
}

func expandPhase(ph *ocp.Phase, gr ocp.Group, given map[string]Guess) (*dynamo.Trajectory, error) {
	list := ph.Layout.Group(gr)
	cols := ph.Columns(gr)
	for name := range given {
		if _, ok := list.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s has no variable %q", dynamo.ErrInvalidArgument, gr, name)
		}
	}

	tr := dynamo.NewTrajectory()
	for _, v := range list.Variables() {
		g, ok := given[v.Name]
		if !ok {
			tr.Set(v.Name, mat.NewDense(v.Size(), cols, nil))
			continue
		}
		nodes := 0
		if gr == ocp.States && ph.Scheme.IsCollocation() {
			nodes = ph.Shooting + 1
		}
		m, err := g.expand(v.Size(), cols, nodes, ph.Scheme.NodeColumns())
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", gr, v.Name, err)
		}
		tr.Set(v.Name, m)
	}
	return tr, nil
}

// expand builds a rows x cols matrix. When nodes is set, an each-frame guess
// with one column per shooting node is accepted and every node but the last
// is repeated over its collocation block of width stride.
func (g Guess) expand(rows, cols, nodes, stride int) (*mat.Dense, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.Values == nil {
		return nil, fmt.Errorf("%w: empty guess", dynamo.ErrInvalidArgument)
	}
	r, c := g.Values.Dims()
	if r != rows {
		return nil, fmt.Errorf("%w: guess has %d rows, variable has %d", dynamo.ErrDimensionMismatch, r, rows)
	}

	out := mat.NewDense(rows, cols, nil)
	switch g.Kind {
	case GuessConstant:
		if c != 1 {
			return nil, fmt.Errorf("%w: constant guess needs one column, got %d", dynamo.ErrDimensionMismatch, c)
		}
		for j := 0; j < cols; j++ {
			out.SetCol(j, mat.Col(nil, 0, g.Values))
		}
	case GuessLinear:
		if c != 2 {
			return nil, fmt.Errorf("%w: linear guess needs two columns, got %d", dynamo.ErrDimensionMismatch, c)
		}
		for j := 0; j < cols; j++ {
			frac := 0.0
			if cols > 1 {
				frac = float64(j) / float64(cols-1)
			}
			for i := 0; i < rows; i++ {
				a, b := g.Values.At(i, 0), g.Values.At(i, 1)
				out.Set(i, j, a+(b-a)*frac)
			}
		}
	case GuessEachFrame:
		switch {
		case c == cols:
			out.Copy(g.Values)
		case nodes > 0 && c == nodes:
			for j := 0; j < cols; j++ {
				out.SetCol(j, mat.Col(nil, min(j/stride, c-1), g.Values))
			}
		default:
			return nil, fmt.Errorf("%w: each-frame guess has %d columns, needs %d",
				dynamo.ErrDimensionMismatch, c, cols)
		}
	default:
		return nil, fmt.Errorf("%w: unknown guess type %s", dynamo.ErrInvalidArgument, g.Kind)
	}
	return out, nil
}

func guessParameters(prog *ocp.Program, given map[string][]float64) (*dynamo.Trajectory, error) {
	for name := range given {
		if _, ok := prog.Parameters.Get(name); !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidArgument, name)
		}
	}

	tr := dynamo.NewTrajectory()
	for _, v := range prog.Parameters.Variables() {
		vals, ok := given[v.Name]
		switch {
		case ok && len(vals) != v.Size():
			return nil, fmt.Errorf("%w: parameter %q has %d values, needs %d",
				dynamo.ErrDimensionMismatch, v.Name, len(vals), v.Size())
		case ok:
			vals = append([]float64(nil), vals...)
		case v.Name == ocp.TimeParameter:
			for i, ph := range prog.Phases {
				if _, free := prog.TimeRow(i); free {
					vals = append(vals, ph.Duration)
				}
			}
		default:
			vals = make([]float64, v.Size())
		}
		tr.Set(v.Name, mat.NewDense(v.Size(), 1, vals))
	}
	return tr, nil
}
