package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultShooting  = 20
	DefaultDuration  = 1.0
	DefaultSteps     = 5
	DefaultTolerance = 1e-6
	DefaultFrames    = 100
)

// Config describes an optimal control problem, an initial point in its
// decision space and the post-processing applied to it.
type Config struct {
	Model       string            `yaml:"model"`
	Phases      []PhaseConfig     `yaml:"phases"`
	Parameters  []VariableConfig  `yaml:"parameters,omitempty"`
	Objectives  []PenaltyConfig   `yaml:"objectives,omitempty"`
	Constraints []PenaltyConfig   `yaml:"constraints,omitempty"`
	Threads     int               `yaml:"threads,omitempty"`
	Vector      []float64         `yaml:"vector,omitempty"`
	Guess       GuessConfig       `yaml:"initial_guess,omitempty"`
	Integrate   IntegrateConfig   `yaml:"integrate"`
	Interpolate InterpolateConfig `yaml:"interpolate,omitempty"`
	Noise       NoiseConfig       `yaml:"noise,omitempty"`
}

type PhaseConfig struct {
	Shooting     int                  `yaml:"shooting"`
	Duration     float64              `yaml:"duration"`
	FreeDuration bool                 `yaml:"free_duration,omitempty"`
	Scheme       SchemeConfig         `yaml:"scheme"`
	ControlType  string               `yaml:"control_type"`
	StateScaling map[string][]float64 `yaml:"state_scaling,omitempty"`
	Stochastic   []VariableConfig     `yaml:"stochastic,omitempty"`
}

type SchemeConfig struct {
	Kind              string `yaml:"kind"`
	Steps             int    `yaml:"steps,omitempty"`
	Degree            int    `yaml:"degree,omitempty"`
	IncludeStartPoint bool   `yaml:"include_start_point,omitempty"`
}

type VariableConfig struct {
	Name    string    `yaml:"name"`
	Size    int       `yaml:"size"`
	Scaling []float64 `yaml:"scaling,omitempty"`
}

// PenaltyConfig names a penalty builder and its arguments. Target holds one
// value per row of Key and applies to every node.
type PenaltyConfig struct {
	Type   string    `yaml:"type"`
	Name   string    `yaml:"name,omitempty"`
	Phase  int       `yaml:"phase"`
	Key    string    `yaml:"key,omitempty"`
	Nodes  []int     `yaml:"nodes,omitempty"`
	Weight float64   `yaml:"weight,omitempty"`
	Target []float64 `yaml:"target,omitempty"`
	Limit  float64   `yaml:"limit,omitempty"`
	Rule   string    `yaml:"rule,omitempty"`
}

// GuessConfig lists, per phase, the guesses of named variables. Values has
// one row per variable row.
type GuessConfig struct {
	States     []map[string]GuessEntry `yaml:"states,omitempty"`
	Controls   []map[string]GuessEntry `yaml:"controls,omitempty"`
	Stochastic []map[string]GuessEntry `yaml:"stochastic,omitempty"`
	Parameters map[string][]float64    `yaml:"parameters,omitempty"`
}

type GuessEntry struct {
	Type   string      `yaml:"type"`
	Values [][]float64 `yaml:"values"`
}

type IntegrateConfig struct {
	Shooting               string  `yaml:"shooting"`
	Integrator             string  `yaml:"integrator"`
	KeepIntermediatePoints bool    `yaml:"keep_intermediate_points"`
	MergePhases            bool    `yaml:"merge_phases"`
	MaxStep                float64 `yaml:"max_step,omitempty"`
	Tolerance              float64 `yaml:"tolerance,omitempty"`
}

// InterpolateConfig resamples the decoded solution. Frames merges the phases
// first; PhaseFrames gives one count per phase instead.
type InterpolateConfig struct {
	Frames      int   `yaml:"frames,omitempty"`
	PhaseFrames []int `yaml:"phase_frames,omitempty"`
}

type NoiseConfig struct {
	Draws        int     `yaml:"draws,omitempty"`
	MotorSigma   float64 `yaml:"motor_sigma,omitempty"`
	InitialSigma float64 `yaml:"initial_sigma,omitempty"`
	Seed         uint64  `yaml:"seed,omitempty"`
	Workers      int     `yaml:"workers,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model: "pendulum",
		Phases: []PhaseConfig{{
			Shooting:    DefaultShooting,
			Duration:    DefaultDuration,
			Scheme:      SchemeConfig{Kind: "multiple_shooting", Steps: DefaultSteps},
			ControlType: "constant",
		}},
		Objectives: []PenaltyConfig{
			{Type: "minimize_controls", Key: "tau", Weight: 1},
		},
		Integrate: IntegrateConfig{
			Shooting:   "single",
			Integrator: "ocp",
			Tolerance:  DefaultTolerance,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks what can be checked without building the program.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("at least one phase is required")
	}
	for i, ph := range c.Phases {
		if ph.Shooting < 1 {
			return fmt.Errorf("phase %d: shooting must be at least 1", i)
		}
		if ph.Duration < 0 {
			return fmt.Errorf("phase %d: negative duration", i)
		}
	}
	for _, pens := range [][]PenaltyConfig{c.Objectives, c.Constraints} {
		for _, p := range pens {
			if p.Type == "" {
				return fmt.Errorf("penalty without type")
			}
			if p.Phase < 0 || p.Phase >= len(c.Phases) {
				return fmt.Errorf("penalty %s: phase %d out of range", p.Type, p.Phase)
			}
		}
	}
	if n := len(c.Interpolate.PhaseFrames); n > 0 && n != len(c.Phases) {
		return fmt.Errorf("interpolate: %d phase frames for %d phases", n, len(c.Phases))
	}
	if c.Noise.Draws < 0 {
		return fmt.Errorf("noise: negative draw count")
	}
	return nil
}
