package solution

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
	"github.com/san-kum/dynopt/internal/timegrid"
)

func integrate(t *testing.T, s *Solution, opts IntegrateOptions) *Solution {
	t.Helper()
	out, err := s.Integrate(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestIntegrateSingleShooting(t *testing.T) {
	s := onePhase(t)
	out := integrate(t, s, DefaultIntegrateOptions())

	if !out.IsIntegrated() || out.IsMerged() || out.IsInterpolated() {
		t.Errorf("flags = %t/%t/%t", out.IsIntegrated(), out.IsMerged(), out.IsInterpolated())
	}
	// x starts at the first node and follows the controls, ignoring the other nodes
	want := []float64{0, 0.25, 0.75, 1.5, 2.5}
	if diff := cmp.Diff(want, row(out.States()[0], "x"), approx); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, out.Time()[0], approx); diff != "" {
		t.Errorf("time mismatch (-want +got):\n%s", diff)
	}
	if _, err := out.Vector(); !errors.Is(err, dynamo.ErrMissingData) {
		t.Errorf("expected vector to be dropped, got %v", err)
	}
	if s.IsIntegrated() {
		t.Error("receiver was modified")
	}
}

func TestIntegrateSingleKeepIntermediate(t *testing.T) {
	s := onePhase(t)
	opts := DefaultIntegrateOptions()
	opts.KeepIntermediatePoints = true
	out := integrate(t, s, opts)

	x := row(out.States()[0], "x")
	if len(x) != 4*5+1 || len(out.Time()[0]) != len(x) {
		t.Fatalf("got %d samples and %d times, want 21", len(x), len(out.Time()[0]))
	}
	// every fifth sample is a node of the continuous trajectory
	for i, v := range []float64{0, 0.25, 0.75, 1.5, 2.5} {
		if !cmp.Equal(x[5*i], v, approx) {
			t.Errorf("x[%d] = %v, want %v", 5*i, x[5*i], v)
		}
	}
	if !cmp.Equal(x[1], 0.05, approx) {
		t.Errorf("first sub-step = %v, want 0.05", x[1])
	}
}

func TestIntegrateMultipleShooting(t *testing.T) {
	s := onePhase(t)
	opts := DefaultIntegrateOptions()
	opts.Shooting = timegrid.Multiple
	opts.KeepIntermediatePoints = true
	out := integrate(t, s, opts)

	x := row(out.States()[0], "x")
	if len(x) != 4*6+1 {
		t.Fatalf("got %d samples, want 25", len(x))
	}
	for i := 0; i < 4; i++ {
		start, end := x[6*i], x[6*i+5]
		if !cmp.Equal(start, float64(10*i), approx) {
			t.Errorf("interval %d starts at %v, want node %d", i, start, 10*i)
		}
		if want := float64(10*i) + float64(i+1)*0.25; !cmp.Equal(end, want, approx) {
			t.Errorf("interval %d ends at %v, want %v", i, end, want)
		}
	}
	if x[24] != 40 {
		t.Errorf("last sample = %v, want the decoded last node", x[24])
	}
	times := out.Time()[0]
	if times[5] != times[6] {
		t.Errorf("interval boundaries should repeat: %v", times[:7])
	}
}

func TestIntegrateMultipleNeedsIntermediatePoints(t *testing.T) {
	opts := DefaultIntegrateOptions()
	opts.Shooting = timegrid.Multiple
	_, err := onePhase(t).Integrate(context.Background(), opts)
	if !errors.Is(err, dynamo.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func twoPhases(t *testing.T) *Solution {
	t.Helper()
	prog := mustProgram(t, []*ocp.Phase{integratorPhase(2, 1), integratorPhase(2, 1)})
	// states 0,0,0 | 100,0,0, controls 1,1 | 2,2
	return mustVector(t, prog, []float64{0, 0, 0, 100, 0, 0, 1, 1, 2, 2})
}

func TestIntegrateAcrossPhases(t *testing.T) {
	tests := []struct {
		name     string
		shooting timegrid.Shooting
		start    float64
	}{
		{"single carries the state over", timegrid.Single, 1},
		{"discontinuous restarts at the node", timegrid.SingleDiscontinuousPhase, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultIntegrateOptions()
			opts.Shooting = tt.shooting
			out := integrate(t, twoPhases(t), opts)

			x1 := row(out.States()[1], "x")
			want := []float64{tt.start, tt.start + 1, tt.start + 2}
			if diff := cmp.Diff(want, x1, approx); diff != "" {
				t.Errorf("phase 1 states mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIntegrateTransitionResidual(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{integratorPhase(2, 1), integratorPhase(2, 1)},
		ocp.WithTransitions(ocp.Transition{
			Name: "impact",
			Func: func(in ocp.TransitionInput) []float64 { return []float64{-in.Pre[0] / 2} },
		}))
	s := mustVector(t, prog, []float64{0, 0, 0, 0, 0, 0, 1, 1, 2, 2})
	out := integrate(t, s, DefaultIntegrateOptions())

	if x := row(out.States()[1], "x"); !cmp.Equal(x[0], 0.5, approx) {
		t.Errorf("phase 1 starts at %v, want 0.5", x[0])
	}
}

func TestIntegrateTransitionDimension(t *testing.T) {
	wide := integratorPhase(2, 1)
	wide.Layout.States = ocp.NewVariableList().MustAdd("x", 2)
	wide.Dynamics = dynamo.SystemFunc{
		F: func(_ float64, _ dynamo.State, u dynamo.Control, _, _ []float64) dynamo.State {
			return dynamo.State{u[0], 0}
		},
		NX: 2,
		NU: 1,
	}
	prog := mustProgram(t, []*ocp.Phase{integratorPhase(2, 1), wide})
	s := mustVector(t, prog, make([]float64, 3+6+2+2))

	_, err := s.Integrate(context.Background(), DefaultIntegrateOptions())
	if !errors.Is(err, dynamo.ErrPhaseTransitionDimension) {
		t.Fatalf("expected ErrPhaseTransitionDimension, got %v", err)
	}
	var pe *dynamo.PhaseError
	if !errors.As(err, &pe) || pe.Phase != 1 {
		t.Errorf("expected the error to name phase 1, got %v", err)
	}

	opts := DefaultIntegrateOptions()
	opts.Shooting = timegrid.SingleDiscontinuousPhase
	if _, err := s.Integrate(context.Background(), opts); err != nil {
		t.Errorf("discontinuous phases should not need matching states: %v", err)
	}
}

func TestIntegrateUnsupportedIntegrator(t *testing.T) {
	ph := integratorPhase(10, 1)
	ph.Scheme = ocp.Collocation(3, false)
	s := mustVector(t, mustProgram(t, []*ocp.Phase{ph}), make([]float64, 41+10))

	_, err := s.Integrate(context.Background(), DefaultIntegrateOptions())
	if !errors.Is(err, dynamo.ErrUnsupportedIntegrator) {
		t.Errorf("expected ErrUnsupportedIntegrator, got %v", err)
	}
}

func TestIntegrateCollocationGeneral(t *testing.T) {
	ph := integratorPhase(10, 1)
	ph.Scheme = ocp.Collocation(3, false)
	v := make([]float64, 41+10)
	for i := 41; i < len(v); i++ {
		v[i] = 1
	}
	s := mustVector(t, mustProgram(t, []*ocp.Phase{ph}), v)

	for _, kind := range []IntegratorKind{IntegratorRK45, IntegratorRK4, IntegratorEuler} {
		t.Run(kind.String(), func(t *testing.T) {
			opts := DefaultIntegrateOptions()
			opts.Integrator = kind
			opts.KeepIntermediatePoints = true
			out := integrate(t, s, opts)

			x := row(out.States()[0], "x")
			if len(x) != 41 {
				t.Fatalf("got %d samples, want 41", len(x))
			}
			// x = t under a unit control
			for j, tm := range out.Time()[0] {
				if !cmp.Equal(x[j], tm, approx) {
					t.Fatalf("x(%v) = %v", tm, x[j])
				}
			}
			if got := out.StatesNoIntermediate()[0].Columns(); got != 11 {
				t.Errorf("no-intermediate columns = %d, want 11", got)
			}
		})
	}
}

func TestIntegrateLinearControls(t *testing.T) {
	ph := integratorPhase(2, 1)
	ph.Control = ocp.LinearContinuous
	// controls 0, 1, 2 ramp linearly: x(t) = t^2
	s := mustVector(t, mustProgram(t, []*ocp.Phase{ph}), []float64{0, 0, 0, 0, 1, 2})

	opts := DefaultIntegrateOptions()
	opts.Integrator = IntegratorRK4
	out := integrate(t, s, opts)
	if diff := cmp.Diff([]float64{0, 0.25, 1}, row(out.States()[0], "x"), approx); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegrateIntervalFunctions(t *testing.T) {
	ph := integratorPhase(3, 3)
	calls := 0
	ph.Intervals = []ocp.IntervalFunc{func(in ocp.IntervalInput) (*mat.Dense, error) {
		calls++
		out := mat.NewDense(1, 6, nil)
		for k := 0; k < 6; k++ {
			out.Set(0, k, in.X0[0]+float64(k))
		}
		return out, nil
	}}
	s := mustVector(t, mustProgram(t, []*ocp.Phase{ph}), make([]float64, 4+3))

	out := integrate(t, s, DefaultIntegrateOptions())
	if calls != 3 {
		t.Errorf("interval function called %d times, want 3", calls)
	}
	if diff := cmp.Diff([]float64{0, 5, 10, 15}, row(out.States()[0], "x")); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegrateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := onePhase(t).Integrate(ctx, DefaultIntegrateOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIntegrateMergePhases(t *testing.T) {
	opts := DefaultIntegrateOptions()
	opts.MergePhases = true
	out := integrate(t, twoPhases(t), opts)

	if out.PhaseCount() != 1 || !out.IsMerged() || !out.IsIntegrated() {
		t.Fatalf("phases=%d merged=%t integrated=%t", out.PhaseCount(), out.IsMerged(), out.IsIntegrated())
	}
	want := []float64{0, 0.5, 1, 2, 3}
	if diff := cmp.Diff(want, row(out.States()[0], "x"), approx); diff != "" {
		t.Errorf("merged states mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 1, 2, 3, 4}, scaleAll(out.Time()[0], 2), approx); diff != "" {
		t.Errorf("merged time mismatch (-want +got):\n%s", diff)
	}
}

func TestNoisyIntegrate(t *testing.T) {
	s := onePhase(t)
	noise := NoiseOptions{Draws: 4, MotorSigma: 0.1, InitialSigma: 0.01, Seed: 7}

	a, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), noise)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), noise)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Ensemble()) != 4 {
		t.Fatalf("ensemble has %d draws, want 4", len(a.Ensemble()))
	}
	if diff := cmp.Diff(row(a.States()[0], "x"), row(b.States()[0], "x")); diff != "" {
		t.Errorf("same seed should reproduce the mean (-a +b):\n%s", diff)
	}
	if cmp.Equal(row(a.Ensemble()[0][0], "x"), row(a.Ensemble()[1][0], "x")) {
		t.Error("draws should differ")
	}
}

func TestNoisyIntegrateWithoutNoise(t *testing.T) {
	s := onePhase(t)
	plain := integrate(t, s, DefaultIntegrateOptions())
	noisy, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), NoiseOptions{Draws: 3})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(row(plain.States()[0], "x"), row(noisy.States()[0], "x"), approx); diff != "" {
		t.Errorf("zero noise should match the plain integration (-want +got):\n%s", diff)
	}
}

func TestNoisyIntegrateWorkers(t *testing.T) {
	s := onePhase(t)
	noise := NoiseOptions{Draws: 6, MotorSigma: 0.2, Seed: 3}
	sequential, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), noise)
	if err != nil {
		t.Fatal(err)
	}
	noise.Workers = 3
	parallel, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), noise)
	if err != nil {
		t.Fatal(err)
	}

	for d := range sequential.Ensemble() {
		if diff := cmp.Diff(row(sequential.Ensemble()[d][0], "x"), row(parallel.Ensemble()[d][0], "x")); diff != "" {
			t.Errorf("draw %d depends on workers (-sequential +parallel):\n%s", d, diff)
		}
	}
}

func TestNoisyIntegrateMultipleKeepsLastNode(t *testing.T) {
	opts := DefaultIntegrateOptions()
	opts.Shooting = timegrid.Multiple
	opts.KeepIntermediatePoints = true
	out, err := onePhase(t).NoisyIntegrate(context.Background(), opts, NoiseOptions{Draws: 3, InitialSigma: 1, Seed: 11})
	if err != nil {
		t.Fatal(err)
	}

	for d, draw := range out.Ensemble() {
		x := row(draw[0], "x")
		if x[len(x)-1] != 40 {
			t.Errorf("draw %d: last sample = %v, want the decoded last node", d, x[len(x)-1])
		}
		if x[0] == 0 {
			t.Errorf("draw %d: first node was not perturbed", d)
		}
	}
	x := row(out.States()[0], "x")
	if x[len(x)-1] != 40 {
		t.Errorf("mean last sample = %v, want 40", x[len(x)-1])
	}
}

func TestNoisyIntegrateMergePhases(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{integratorPhase(2, 1), integratorPhase(3, 1)})
	s := mustVector(t, prog, []float64{0, 0, 0, 0, 0, 0, 0, 1, 1, 2, 2, 2})

	opts := DefaultIntegrateOptions()
	opts.MergePhases = true
	out, err := s.NoisyIntegrate(context.Background(), opts, NoiseOptions{Draws: 3, MotorSigma: 0.1, Seed: 5, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	if out.PhaseCount() != 1 {
		t.Fatalf("got %d phases, want 1", out.PhaseCount())
	}
	mean := row(out.States()[0], "x")
	if len(mean) != 6 || len(out.Time()[0]) != 6 {
		t.Fatalf("got %d states and %d times, want 6", len(mean), len(out.Time()[0]))
	}
	for d, draw := range out.Ensemble() {
		if len(draw) != 1 {
			t.Fatalf("draw %d has %d phases, want 1", d, len(draw))
		}
		if got := len(row(draw[0], "x")); got != len(mean) {
			t.Errorf("draw %d has %d columns, want %d", d, got, len(mean))
		}
	}
	for j := range mean {
		sum := 0.0
		for _, draw := range out.Ensemble() {
			sum += row(draw[0], "x")[j]
		}
		if !cmp.Equal(mean[j], sum/3, approx) {
			t.Errorf("column %d: mean %v, draws average %v", j, mean[j], sum/3)
		}
	}
}

func TestNoisyIntegrateValidation(t *testing.T) {
	s := onePhase(t)
	for _, noise := range []NoiseOptions{{Draws: 0}, {Draws: 1, MotorSigma: -1}} {
		if _, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), noise); !errors.Is(err, dynamo.ErrInvalidArgument) {
			t.Errorf("%+v: expected ErrInvalidArgument, got %v", noise, err)
		}
	}
}

func TestParseIntegratorKind(t *testing.T) {
	for k := IntegratorOCP; k <= IntegratorLeapfrog; k++ {
		got, err := ParseIntegratorKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseIntegratorKind(%q) = %v, %v", k, got, err)
		}
	}
	if _, err := ParseIntegratorKind("midpoint"); !errors.Is(err, dynamo.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
