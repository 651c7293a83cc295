package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/experiment"
)

func builder(base *config.Config) BuildFunc {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := WithGuesses(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg)
	}
}

func TestGridSearchSingleParam(t *testing.T) {
	base := config.DefaultConfig()
	g := NewGridSearch([]string{"controls.0.tau"}, [][]float64{{-2, 0.5, 3}})

	best, cost, err := g.Search(context.Background(), builder(base), InitialCost)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]float64{"controls.0.tau": 0.5}, best); diff != "" {
		t.Errorf("best mismatch (-want +got):\n%s", diff)
	}
	if cost <= 0 {
		t.Errorf("cost = %v, want positive", cost)
	}
}

func TestGridSearchCombinations(t *testing.T) {
	base := config.DefaultConfig()
	base.Objectives = append(base.Objectives, config.PenaltyConfig{Type: "minimize_states", Key: "theta", Weight: 1})
	g := NewGridSearch(
		[]string{"controls.0.tau", "states.0.theta"},
		[][]float64{{1, -0.25}, {2, -0.1, 0.5}},
	)

	evaluated := 0
	score := func(ctx context.Context, exp *experiment.Experiment) (float64, error) {
		evaluated++
		return InitialCost(ctx, exp)
	}
	best, _, err := g.Search(context.Background(), builder(base), score)
	if err != nil {
		t.Fatal(err)
	}
	if evaluated != 6 {
		t.Errorf("evaluated %d combinations, want 6", evaluated)
	}
	want := map[string]float64{"controls.0.tau": -0.25, "states.0.theta": -0.1}
	if diff := cmp.Diff(want, best); diff != "" {
		t.Errorf("best mismatch (-want +got):\n%s", diff)
	}
}

func TestGridSearchErrors(t *testing.T) {
	base := config.DefaultConfig()

	g := NewGridSearch([]string{"controls.0.tau"}, nil)
	if _, _, err := g.Search(context.Background(), builder(base), InitialCost); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}

	g = NewGridSearch([]string{"states.0.phi"}, [][]float64{{1}})
	if _, _, err := g.Search(context.Background(), builder(base), InitialCost); err == nil {
		t.Error("expected an error for an unknown state")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g = NewGridSearch([]string{"controls.0.tau"}, [][]float64{{1}})
	if _, _, err := g.Search(ctx, builder(base), InitialCost); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWithGuessesLeavesBaseUntouched(t *testing.T) {
	base := config.GetPreset("pendulum", "swingup")
	before := len(base.Guess.States[0])

	cfg, err := WithGuesses(base, map[string]float64{"states.0.omega": 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(base.Guess.States[0]) != before {
		t.Error("base guess modified")
	}
	want := config.GuessEntry{Type: "constant", Values: [][]float64{{1}}}
	if diff := cmp.Diff(want, cfg.Guess.States[0]["omega"]); diff != "" {
		t.Errorf("omega guess mismatch (-want +got):\n%s", diff)
	}
	if _, ok := cfg.Guess.States[0]["theta"]; !ok {
		t.Error("existing theta guess dropped")
	}
}

func TestWithGuessesNames(t *testing.T) {
	base := config.DefaultConfig()
	base.Parameters = []config.VariableConfig{{Name: "mass", Size: 2}}
	base.Phases[0].Stochastic = []config.VariableConfig{{Name: "noise", Size: 3}}

	cfg, err := WithGuesses(base, map[string]float64{"parameters.mass": 2, "stochastic.0.noise": 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{2, 2}, cfg.Guess.Parameters["mass"]); diff != "" {
		t.Errorf("mass mismatch (-want +got):\n%s", diff)
	}
	if got := len(cfg.Guess.Stochastic[0]["noise"].Values); got != 3 {
		t.Errorf("noise guess has %d rows, want 3", got)
	}

	for _, name := range []string{"mass", "parameters.inertia", "states.x.theta", "states.4.theta", "velocities.0.v", "stochastic.0.drift"} {
		if _, err := WithGuesses(base, map[string]float64{name: 1}); !errors.Is(err, dynamo.ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestParseRange(t *testing.T) {
	name, vals, err := ParseRange("controls.0.tau=-1, 0,2.5")
	if err != nil {
		t.Fatal(err)
	}
	if name != "controls.0.tau" {
		t.Errorf("name = %q", name)
	}
	if diff := cmp.Diff([]float64{-1, 0, 2.5}, vals); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"tau", "=1,2", "tau=", "tau=1,x"} {
		if _, _, err := ParseRange(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}
