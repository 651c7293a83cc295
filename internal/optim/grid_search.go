// Package optim searches initial guesses for the one with the lowest cost
// before a point is handed to a solver.
package optim

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/experiment"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

type BuildFunc func(params map[string]float64) (*experiment.Experiment, error)

type ScoreFunc func(ctx context.Context, exp *experiment.Experiment) (float64, error)

// InitialCost scores an experiment by the weighted objective of its initial
// point.
func InitialCost(_ context.Context, exp *experiment.Experiment) (float64, error) {
	sol, err := exp.Initial()
	if err != nil {
		return 0, err
	}
	return sol.Cost()
}

// Search evaluates every combination and returns the best one. NaN scores
// never win.
func (g *GridSearch) Search(ctx context.Context, build BuildFunc, score ScoreFunc) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("%w: %d names for %d ranges", dynamo.ErrDimensionMismatch, len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	err := g.searchRecursive(ctx, 0, make(map[string]float64), build, score, &best, &bestParams)
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("%w: no combination has a finite score", dynamo.ErrInvalidArgument)
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	build BuildFunc,
	score ScoreFunc,
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		exp, err := build(current)
		if err != nil {
			return fmt.Errorf("%v: %w", current, err)
		}
		val, err := score(ctx, exp)
		if err != nil {
			return fmt.Errorf("%v: %w", current, err)
		}
		if val < *best {
			*best = val
			*bestParams = make(map[string]float64, len(current))
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, build, score, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

// ParseRange reads "name=v1,v2,..." into a parameter name and its values.
func ParseRange(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("%w: range %q is not name=v1,v2,...", dynamo.ErrInvalidArgument, s)
	}
	var vals []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: range %q: %v", dynamo.ErrInvalidArgument, s, err)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}

// WithGuesses returns a copy of cfg whose initial guess holds a constant for
// every entry of params. Names are states.<phase>.<name>,
// controls.<phase>.<name>, stochastic.<phase>.<name> or parameters.<name>.
func WithGuesses(cfg *config.Config, params map[string]float64) (*config.Config, error) {
	out := *cfg
	out.Vector = nil
	out.Guess = config.GuessConfig{
		States:     copyGuesses(cfg.Guess.States, len(cfg.Phases)),
		Controls:   copyGuesses(cfg.Guess.Controls, len(cfg.Phases)),
		Stochastic: copyGuesses(cfg.Guess.Stochastic, len(cfg.Phases)),
		Parameters: make(map[string][]float64, len(cfg.Guess.Parameters)),
	}
	for k, v := range cfg.Guess.Parameters {
		out.Guess.Parameters[k] = append([]float64(nil), v...)
	}

	for name, v := range params {
		if err := setGuess(&out, name, v); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func copyGuesses(in []map[string]config.GuessEntry, phases int) []map[string]config.GuessEntry {
	out := make([]map[string]config.GuessEntry, phases)
	for p := range out {
		out[p] = make(map[string]config.GuessEntry)
		if p < len(in) {
			for k, v := range in[p] {
				out[p][k] = v
			}
		}
	}
	return out
}

func setGuess(cfg *config.Config, name string, v float64) error {
	parts := strings.Split(name, ".")
	if parts[0] == "parameters" {
		if len(parts) != 2 {
			return fmt.Errorf("%w: parameter guess %q is not parameters.<name>", dynamo.ErrInvalidArgument, name)
		}
		size := 0
		for _, pc := range cfg.Parameters {
			if pc.Name == parts[1] {
				size = pc.Size
			}
		}
		if size == 0 {
			return fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidArgument, parts[1])
		}
		cfg.Guess.Parameters[parts[1]] = repeat(v, size)
		return nil
	}

	if len(parts) != 3 {
		return fmt.Errorf("%w: guess %q is not <group>.<phase>.<name>", dynamo.ErrInvalidArgument, name)
	}
	phase, err := strconv.Atoi(parts[1])
	if err != nil || phase < 0 || phase >= len(cfg.Phases) {
		return fmt.Errorf("%w: guess %q has no phase %s", dynamo.ErrInvalidArgument, name, parts[1])
	}

	rows := 1
	var group []map[string]config.GuessEntry
	switch parts[0] {
	case "states":
		group = cfg.Guess.States
	case "controls":
		group = cfg.Guess.Controls
	case "stochastic":
		group = cfg.Guess.Stochastic
		rows = 0
		for _, vc := range cfg.Phases[phase].Stochastic {
			if vc.Name == parts[2] {
				rows = vc.Size
			}
		}
		if rows == 0 {
			return fmt.Errorf("%w: unknown stochastic variable %q", dynamo.ErrInvalidArgument, parts[2])
		}
	default:
		return fmt.Errorf("%w: unknown guess group %q", dynamo.ErrInvalidArgument, parts[0])
	}

	values := make([][]float64, rows)
	for i := range values {
		values[i] = []float64{v}
	}
	group[phase][parts[2]] = config.GuessEntry{Type: "constant", Values: values}
	return nil
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
