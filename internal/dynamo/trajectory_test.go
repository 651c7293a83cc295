package dynamo

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestTrajectoryOrderAndStack(t *testing.T) {
	tr := NewTrajectory()
	tr.Set("b", mat.NewDense(1, 3, []float64{1, 2, 3}))
	tr.Set("a", mat.NewDense(2, 3, []float64{4, 5, 6, 7, 8, 9}))
	tr.Set("b", mat.NewDense(1, 3, []float64{10, 20, 30}))

	names := tr.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("unexpected order %v", names)
	}
	if tr.Rows() != 3 || tr.Columns() != 3 {
		t.Errorf("expected 3x3, got %dx%d", tr.Rows(), tr.Columns())
	}

	st := tr.Stacked()
	want := mat.NewDense(3, 3, []float64{10, 20, 30, 4, 5, 6, 7, 8, 9})
	if !mat.Equal(st, want) {
		t.Errorf("stacked mismatch:\n%v", mat.Formatted(st))
	}
}

func TestTrajectoryCloneIsDeep(t *testing.T) {
	tr := NewTrajectory()
	tr.Set("x", mat.NewDense(1, 2, []float64{1, 2}))
	c := tr.Clone()
	m, _ := c.Get("x")
	m.Set(0, 0, 99)

	orig, _ := tr.Get("x")
	if orig.At(0, 0) != 1 {
		t.Error("clone shares storage with original")
	}
}

func TestHStack(t *testing.T) {
	a := mat.NewDense(2, 1, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})
	got := HStack(a, nil, b)
	want := mat.NewDense(2, 3, []float64{1, 3, 4, 2, 5, 6})
	if !mat.Equal(got, want) {
		t.Errorf("hstack mismatch:\n%v", mat.Formatted(got))
	}
	if HStack() != nil {
		t.Error("empty hstack should be nil")
	}
}

func TestPhaseErrorUnwrap(t *testing.T) {
	err := InPhase(2, "integrate", ErrPhaseTransitionDimension)
	if !errors.Is(err, ErrPhaseTransitionDimension) {
		t.Error("expected wrapped sentinel")
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != 2 {
		t.Errorf("expected phase 2, got %v", err)
	}
	if InPhase(0, "x", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestInputsControlAt(t *testing.T) {
	in := Inputs{U0: Control{0}, U1: Control{10}, T0: 1, Span: 2}
	if u := in.ControlAt(2); u[0] != 5 {
		t.Errorf("midpoint control = %f, want 5", u[0])
	}
	if u := in.ControlAt(5); u[0] != 10 {
		t.Errorf("control should clamp to U1, got %f", u[0])
	}
	held := Inputs{U0: Control{3}}
	if u := held.ControlAt(100); u[0] != 3 {
		t.Errorf("constant control = %f", u[0])
	}
}
