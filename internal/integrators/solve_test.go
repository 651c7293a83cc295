package integrators

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dynamo"
)

func TestSolveSamplesAtTimes(t *testing.T) {
	times := []float64{0, 0.3, 0.3, 1.0, 2.5}
	tests := []struct {
		name     string
		integ    dynamo.Integrator
		adaptive bool
		tol      float64
	}{
		{"rk4 fixed", NewRK4(), false, 1e-6},
		{"rk45 adaptive", NewRK45(), true, 1e-6},
		{"rk4 step doubling", NewRK4(), true, 1e-8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := dynamo.DefaultConfig()
			cfg.Adaptive = tt.adaptive
			cfg.MaxDt = 0.05
			out, err := Solve(context.Background(), tt.integ, &simpleDynamics{}, dynamo.State{1, 0}, dynamo.Inputs{}, times, cfg)
			if err != nil {
				t.Fatal(err)
			}
			r, c := out.Dims()
			if r != 2 || c != len(times) {
				t.Fatalf("expected 2x%d, got %dx%d", len(times), r, c)
			}
			for k, tk := range times {
				if math.Abs(out.At(0, k)-math.Cos(tk)) > 1e-4 {
					t.Errorf("x(%g) = %f, want %f", tk, out.At(0, k), math.Cos(tk))
				}
			}
			if out.At(0, 1) != out.At(0, 2) {
				t.Error("repeated time should repeat the sample")
			}
		})
	}
}

func TestSolveErrors(t *testing.T) {
	cfg := dynamo.DefaultConfig()
	ctx := context.Background()
	dyn := &simpleDynamics{}

	if _, err := Solve(ctx, NewRK4(), dyn, dynamo.State{1, 0}, dynamo.Inputs{}, nil, cfg); !errors.Is(err, dynamo.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for empty times, got %v", err)
	}
	if _, err := Solve(ctx, NewRK4(), dyn, dynamo.State{1, 0}, dynamo.Inputs{}, []float64{1, 0}, cfg); !errors.Is(err, dynamo.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for decreasing times, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Solve(cancelled, NewRK4(), dyn, dynamo.State{1, 0}, dynamo.Inputs{}, []float64{0, 1}, cfg); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}

	blowUp := dynamo.SystemFunc{
		F:  func(t float64, x dynamo.State, u dynamo.Control, p, s []float64) dynamo.State { return dynamo.State{math.Inf(1)} },
		NX: 1,
	}
	if _, err := Solve(ctx, NewEuler(), blowUp, dynamo.State{0}, dynamo.Inputs{}, []float64{0, 1}, cfg); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("midpoint"); !errors.Is(err, dynamo.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
