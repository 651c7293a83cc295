package solution

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/ocp"
)

func controlValue(in ocp.PenaltyInput) []float64 {
	if in.U == nil {
		return []float64{math.NaN()}
	}
	return mat.Col(nil, 0, in.U)
}

func stateValue(in ocp.PenaltyInput) []float64 {
	return mat.Col(nil, 0, in.X)
}

func costPhase() *ocp.Phase {
	ph := integratorPhase(4, 1)
	ph.Objectives = []ocp.Penalty{
		{Name: "effort", Kind: ocp.LagrangeTerm, Nodes: []int{0, 1, 2, 3}, Weight: 2, Func: controlValue},
		{Name: "reach", Kind: ocp.MayerTerm, Nodes: []int{4}, Weight: 10, Target: [][]float64{{38}}, Func: stateValue},
	}
	ph.Constraints = []ocp.Penalty{
		{Name: "partial", Kind: ocp.ConstraintTerm, Nodes: []int{0, 1}, Func: func(in ocp.PenaltyInput) []float64 {
			return []float64{math.NaN(), 1}
		}},
	}
	return ph
}

func TestDetailedCost(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{costPhase()})
	s := mustVector(t, prog, []float64{0, 10, 20, 30, 40, 1, 2, 3, 4})

	terms, err := s.DetailedCost()
	if err != nil {
		t.Fatal(err)
	}
	want := []CostTerm{
		// sum(u) and 2*sum(u^2)*0.25
		{Name: "effort", Phase: 0, Kind: "lagrange", Value: 10, Weighted: 15},
		// x=40 against 38
		{Name: "reach", Phase: 0, Kind: "mayer", Value: 40, Weighted: 40},
	}
	if diff := cmp.Diff(want, terms, approx); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}

	cost, err := s.Cost()
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(cost, 55.0, approx) {
		t.Errorf("Cost = %v, want 55", cost)
	}
}

func TestConstraintTermsIgnoreNaN(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{costPhase()})
	s := mustVector(t, prog, []float64{0, 10, 20, 30, 40, 1, 2, 3, 4})

	terms, err := s.Terms(CostConstraints)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 || !terms[0].Constraint {
		t.Fatalf("terms = %+v", terms)
	}
	if terms[0].Value != 2 || terms[0].Weighted != 2 {
		t.Errorf("constraint value = %v/%v, want 2/2", terms[0].Value, terms[0].Weighted)
	}
}

func TestCostAfterIntegration(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{costPhase()})
	s := mustVector(t, prog, []float64{0, 10, 20, 30, 40, 1, 2, 3, 4})
	before, err := s.Cost()
	if err != nil {
		t.Fatal(err)
	}

	out := integrate(t, s, DefaultIntegrateOptions())
	after, err := out.Cost()
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Errorf("cost changed from %v to %v", before, after)
	}
}

func TestCostThreadingNotSupported(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{costPhase()}, ocp.WithThreads(4))
	s := mustVector(t, prog, []float64{0, 10, 20, 30, 40, 1, 2, 3, 4})

	if _, err := s.DetailedCost(); !errors.Is(err, dynamo.ErrThreadingNotSupported) {
		t.Errorf("expected ErrThreadingNotSupported, got %v", err)
	}
}

func TestTrapezoidalLagrange(t *testing.T) {
	ph := integratorPhase(4, 1)
	ph.Objectives = []ocp.Penalty{{
		Name: "effort", Kind: ocp.LagrangeTerm, Nodes: []int{0, 1, 2}, Weight: 1,
		Rule: ocp.RuleTrapezoidal, Func: stateValue,
	}}
	s := mustVector(t, mustProgram(t, []*ocp.Phase{ph}), []float64{0, 1, 2, 3, 4, 0, 0, 0, 0})

	terms, err := s.DetailedCost()
	if err != nil {
		t.Fatal(err)
	}
	// (0+1)/2 + (1+4)/2 + (4+9)/2 over dt = 0.25
	if want := (0.5 + 2.5 + 6.5) * 0.25; !cmp.Equal(terms[0].Weighted, want, approx) {
		t.Errorf("weighted = %v, want %v", terms[0].Weighted, want)
	}
	if terms[0].Value != 3 {
		t.Errorf("value = %v, want 3", terms[0].Value)
	}
}

func TestTransitionAndMultinodeTerms(t *testing.T) {
	gap := func(in ocp.PenaltyInput) []float64 {
		x := mat.Col(nil, 0, in.X)
		return []float64{x[1] - x[0]}
	}
	prog := mustProgram(t, []*ocp.Phase{integratorPhase(2, 1), integratorPhase(2, 1)},
		ocp.WithConstraints(
			ocp.Penalty{Name: "continuity", Kind: ocp.TransitionTerm, Phase: 0, Func: gap},
			ocp.Penalty{Name: "periodic", Kind: ocp.MultinodeTerm, Phase: -1,
				Links: [][]ocp.NodeRef{{{Phase: 0, Node: 0}, {Phase: 1, Node: 2}}}, Func: gap},
		))
	s := mustVector(t, prog, []float64{1, 2, 3, 7, 8, 9, 0, 0, 0, 0})

	terms, err := s.Terms(CostConstraints)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || terms[0].Phase != -1 {
		t.Fatalf("terms = %+v", terms)
	}
	if terms[0].Value != 4 {
		t.Errorf("continuity = %v, want 7-3", terms[0].Value)
	}
	if terms[1].Value != 8 {
		t.Errorf("periodic = %v, want 9-1", terms[1].Value)
	}
}

func TestParameterTerm(t *testing.T) {
	ph := integratorPhase(2, 1)
	prog := mustProgram(t, []*ocp.Phase{ph},
		ocp.WithParameters(ocp.NewVariableList().MustAdd("mass", 1, 2)),
		ocp.WithObjectives(ocp.Penalty{Name: "mass", Kind: ocp.ParameterTerm, Phase: -1,
			Target: [][]float64{{3}},
			Func:   func(in ocp.PenaltyInput) []float64 { return in.P }}))
	s := mustVector(t, prog, []float64{0, 0, 0, 0, 0, 2.5})

	terms, err := s.DetailedCost()
	if err != nil {
		t.Fatal(err)
	}
	// scaled 2.5 unscales to 5, (5-3)^2
	if terms[0].Value != 5 || terms[0].Weighted != 4 {
		t.Errorf("parameter term = %+v", terms[0])
	}
}

func TestWriteCostReport(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{costPhase()})
	s := mustVector(t, prog, []float64{0, 10, 20, 30, 40, 1, 2, 3, 4})

	var buf bytes.Buffer
	if err := s.WriteCostReport(&buf, CostAll); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"COST FUNCTION VALUES", "CONSTRAINTS", "PHASE 0", "effort", "reach", "partial", "Sum cost functions: 55"} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := s.WriteCostReport(&buf, CostObjectives); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "CONSTRAINTS") {
		t.Error("objective report should not list constraints")
	}
}

func TestCostAfterNoisyIntegration(t *testing.T) {
	prog := mustProgram(t, []*ocp.Phase{costPhase()})
	s := mustVector(t, prog, []float64{0, 10, 20, 30, 40, 1, 2, 3, 4})
	out, err := s.NoisyIntegrate(context.Background(), DefaultIntegrateOptions(), NoiseOptions{Draws: 2, MotorSigma: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := out.Cost(); err != nil {
		t.Errorf("cost after noisy integration: %v", err)
	}
}

func TestParseCostType(t *testing.T) {
	for _, ct := range []CostType{CostObjectives, CostConstraints, CostAll} {
		got, err := ParseCostType(ct.String())
		if err != nil || got != ct {
			t.Errorf("ParseCostType(%q) = %v, %v", ct, got, err)
		}
	}
}
