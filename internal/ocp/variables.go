package ocp

import (
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// Group identifies one of the variable families a phase carries.
type Group int

const (
	States Group = iota
	Controls
	Parameters
	Stochastic
)

func (g Group) String() string {
	switch g {
	case States:
		return "states"
	case Controls:
		return "controls"
	case Parameters:
		return "parameters"
	case Stochastic:
		return "stochastic"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// Variable is a named block of rows [Start, End) with a per-row scaling.
type Variable struct {
	Name    string
	Start   int
	End     int
	Scaling []float64
}

func (v Variable) Size() int {
	return v.End - v.Start
}

// VariableList keeps variables in declaration order. Rows are allocated
// contiguously so the list always covers [0, Dim()).
type VariableList struct {
	vars  []Variable
	index map[string]int
}

func NewVariableList() *VariableList {
	return &VariableList{index: make(map[string]int)}
}

// Add appends a variable of the given size. With no scaling every row is
// scaled by 1, with a single value it is broadcast.
func (l *VariableList) Add(name string, size int, scaling ...float64) error {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if name == "" {
		return fmt.Errorf("%w: variable name is empty", dynamo.ErrInvalidArgument)
	}
	if _, ok := l.index[name]; ok {
		return fmt.Errorf("%w: variable %q declared twice", dynamo.ErrInvalidArgument, name)
	}
	if size < 1 {
		return fmt.Errorf("%w: variable %q has size %d", dynamo.ErrInvalidArgument, name, size)
	}

	scale := make([]float64, size)
	switch len(scaling) {
	case 0:
		for i := range scale {
			scale[i] = 1
		}
	case 1:
		for i := range scale {
			scale[i] = scaling[0]
		}
	case size:
		copy(scale, scaling)
	default:
		return fmt.Errorf("%w: variable %q has %d rows but %d scaling values",
			dynamo.ErrDimensionMismatch, name, size, len(scaling))
	}
	for _, s := range scale {
		if !(s > 0) {
			return fmt.Errorf("%w: scaling of %q must be strictly positive", dynamo.ErrInvalidArgument, name)
		}
	}

	start := l.Dim()
	l.index[name] = len(l.vars)
	l.vars = append(l.vars, Variable{Name: name, Start: start, End: start + size, Scaling: scale})
	return nil
}

// MustAdd is Add for static layouts built in code.
func (l *VariableList) MustAdd(name string, size int, scaling ...float64) *VariableList {
	if err := l.Add(name, size, scaling...); err != nil {
		panic(err)
	}
	return l
}

func (l *VariableList) Get(name string) (Variable, bool) {
	if l == nil {
		return Variable{}, false
	}
	i, ok := l.index[name]
	if !ok {
		return Variable{}, false
	}
	return l.vars[i], true
}

func (l *VariableList) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, len(l.vars))
	for i, v := range l.vars {
		names[i] = v.Name
	}
	return names
}

func (l *VariableList) Variables() []Variable {
	if l == nil {
		return nil
	}
	out := make([]Variable, len(l.vars))
	copy(out, l.vars)
	return out
}

func (l *VariableList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.vars)
}

// Dim is the total number of rows.
func (l *VariableList) Dim() int {
	if l == nil || len(l.vars) == 0 {
		return 0
	}
	return l.vars[len(l.vars)-1].End
}

// Scaling returns the concatenated per-row scaling vector.
func (l *VariableList) Scaling() []float64 {
	out := make([]float64, 0, l.Dim())
	for _, v := range l.Variables() {
		out = append(out, v.Scaling...)
	}
	return out
}

// Validate checks the contiguity and positivity rules, which Add already
// enforces; it guards lists assembled by hand.
func (l *VariableList) Validate() error {
	next := 0
	for _, v := range l.Variables() {
		if v.Start != next || v.End <= v.Start {
			return fmt.Errorf("%w: variable %q rows [%d,%d) are not contiguous",
				dynamo.ErrDimensionMismatch, v.Name, v.Start, v.End)
		}
		if len(v.Scaling) != v.Size() {
			return fmt.Errorf("%w: variable %q scaling length", dynamo.ErrDimensionMismatch, v.Name)
		}
		for _, s := range v.Scaling {
			if !(s > 0) {
				return fmt.Errorf("%w: scaling of %q must be strictly positive", dynamo.ErrInvalidArgument, v.Name)
			}
		}
		next = v.End
	}
	return nil
}

// SameShape reports whether both lists declare the same names with the same
// row counts, in any order.
func (l *VariableList) SameShape(other *VariableList) bool {
	if l.Len() != other.Len() {
		return false
	}
	for _, v := range l.Variables() {
		o, ok := other.Get(v.Name)
		if !ok || o.Size() != v.Size() {
			return false
		}
	}
	return true
}

// Layout groups the per-phase variable lists. Parameters are program-wide.
type Layout struct {
	States     *VariableList
	Controls   *VariableList
	Stochastic *VariableList
}

func (l Layout) Group(g Group) *VariableList {
	switch g {
	case States:
		return l.States
	case Controls:
		return l.Controls
	case Stochastic:
		return l.Stochastic
	}
	return nil
}
