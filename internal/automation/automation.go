// Package automation runs scripted sequences of problems and stores each
// result.
package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/experiment"
	"github.com/san-kum/dynopt/internal/solution"
	"github.com/san-kum/dynopt/internal/storage"
)

// Scenario is a named list of problems run in order.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`

	dir string
}

// ScenarioStep selects a problem either from a file, resolved relative to
// the scenario file, or from a model preset. The remaining fields override
// the problem's post-processing.
type ScenarioStep struct {
	Model      string `yaml:"model"`
	Preset     string `yaml:"preset"`
	Config     string `yaml:"config"`
	Integrator string `yaml:"integrator"`
	Shooting   string `yaml:"shooting"`
	Frames     int    `yaml:"frames"`
	Draws      int    `yaml:"draws"`
	Stage      string `yaml:"stage"`
}

// StepResult is one stored step.
type StepResult struct {
	Step  int
	RunID string
	Model string
	Stage string
	Cost  float64
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s: scenario has no steps", path)
	}
	scenario.dir = filepath.Dir(path)

	return &scenario, nil
}

func (s *Scenario) problem(step ScenarioStep) (*config.Config, error) {
	var base *config.Config
	switch {
	case step.Config != "":
		path := step.Config
		if !filepath.IsAbs(path) && s.dir != "" {
			path = filepath.Join(s.dir, path)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		base = cfg
	case step.Preset != "":
		base = config.GetPreset(step.Model, step.Preset)
		if base == nil {
			return nil, fmt.Errorf("unknown preset %s for model %s (available: %v)",
				step.Preset, step.Model, config.ListPresets(step.Model))
		}
	default:
		return nil, fmt.Errorf("step needs a config or a preset")
	}

	// presets are shared
	cfg := *base
	if step.Integrator != "" {
		cfg.Integrate.Integrator = step.Integrator
	}
	if step.Shooting != "" {
		cfg.Integrate.Shooting = step.Shooting
		cfg.Integrate.KeepIntermediatePoints = cfg.Integrate.KeepIntermediatePoints || step.Shooting == "multiple"
	}
	if step.Frames > 0 {
		cfg.Interpolate = config.InterpolateConfig{Frames: step.Frames}
	}
	if step.Draws > 0 {
		cfg.Noise.Draws = step.Draws
	}
	return &cfg, nil
}

// Stage picks the stored solution out of a result: initial, integrated
// (the default) or interpolated.
func Stage(res *experiment.Result, stage string) (*solution.Solution, error) {
	switch stage {
	case "initial":
		return res.Initial, nil
	case "", "integrated":
		return res.Integrated, nil
	case "interpolated":
		if res.Interpolated == nil {
			return nil, fmt.Errorf("problem does not interpolate, set frames")
		}
		return res.Interpolated, nil
	default:
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}
}

// RunScenario executes all steps in a scenario and saves each solution to
// st. It stops at the first failing step and returns the steps stored so
// far.
func RunScenario(ctx context.Context, scenario *Scenario, st *storage.Store, logger *zap.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		cfg, err := scenario.problem(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp, err := experiment.New(cfg, experiment.WithLogger(logger))
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		sol, err := Stage(res, step.Stage)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		runID, err := st.Save(storage.Run{
			Preset:   step.Preset,
			Model:    cfg.Model,
			Solution: sol,
			Terms:    res.Terms,
			Cost:     res.Cost,
		})
		if err != nil {
			return results, fmt.Errorf("step %d save: %w", i+1, err)
		}
		logger.Info("scenario step stored",
			zap.String("scenario", scenario.Name),
			zap.Int("step", i+1),
			zap.String("run", runID),
		)

		stage := step.Stage
		if stage == "" {
			stage = "integrated"
		}
		results = append(results, StepResult{Step: i + 1, RunID: runID, Model: cfg.Model, Stage: stage, Cost: res.Cost})
	}

	return results, nil
}
