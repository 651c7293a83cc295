package dynamo

import "gonum.org/v1/gonum/mat"

// Trajectory maps variable names, in declaration order, to matrices whose
// rows are the variable's rows and whose columns are time samples.
type Trajectory struct {
	names []string
	data  map[string]*mat.Dense
}

func NewTrajectory() *Trajectory {
	return &Trajectory{data: make(map[string]*mat.Dense)}
}

// Set stores m under name, appending name to the order on first use.
func (t *Trajectory) Set(name string, m *mat.Dense) {
	if t.data == nil {
		t.data = make(map[string]*mat.Dense)
	}
	if _, ok := t.data[name]; !ok {
		t.names = append(t.names, name)
	}
	t.data[name] = m
}

func (t *Trajectory) Get(name string) (*mat.Dense, bool) {
	if t == nil {
		return nil, false
	}
	m, ok := t.data[name]
	return m, ok
}

func (t *Trajectory) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Columns is the sample count, zero for an empty trajectory.
func (t *Trajectory) Columns() int {
	if t.Len() == 0 {
		return 0
	}
	_, c := t.data[t.names[0]].Dims()
	return c
}

// Rows is the sum of the variable row counts.
func (t *Trajectory) Rows() int {
	n := 0
	for _, name := range t.Names() {
		r, _ := t.data[name].Dims()
		n += r
	}
	return n
}

func (t *Trajectory) Clone() *Trajectory {
	out := NewTrajectory()
	for _, name := range t.Names() {
		out.Set(name, mat.DenseCopyOf(t.data[name]))
	}
	return out
}

// Map builds a new trajectory from fn applied to every entry.
func (t *Trajectory) Map(fn func(name string, m *mat.Dense) *mat.Dense) *Trajectory {
	out := NewTrajectory()
	for _, name := range t.Names() {
		out.Set(name, fn(name, t.data[name]))
	}
	return out
}

// Stacked returns every variable stacked vertically in declaration order.
func (t *Trajectory) Stacked() *mat.Dense {
	rows, cols := t.Rows(), t.Columns()
	if rows == 0 || cols == 0 {
		return nil
	}
	out := mat.NewDense(rows, cols, nil)
	r0 := 0
	for _, name := range t.Names() {
		m := t.data[name]
		r, _ := m.Dims()
		out.Slice(r0, r0+r, 0, cols).(*mat.Dense).Copy(m)
		r0 += r
	}
	return out
}

// HStack concatenates matrices with equal row counts side by side.
func HStack(parts ...*mat.Dense) *mat.Dense {
	var rows, cols int
	for _, p := range parts {
		if p == nil {
			continue
		}
		r, c := p.Dims()
		rows = r
		cols += c
	}
	if cols == 0 {
		return nil
	}
	out := mat.NewDense(rows, cols, nil)
	c0 := 0
	for _, p := range parts {
		if p == nil {
			continue
		}
		_, c := p.Dims()
		out.Slice(0, rows, c0, c0+c).(*mat.Dense).Copy(p)
		c0 += c
	}
	return out
}

// ColumnVector wraps x as a single-column matrix.
func ColumnVector(x []float64) *mat.Dense {
	data := make([]float64, len(x))
	copy(data, x)
	return mat.NewDense(len(x), 1, data)
}
