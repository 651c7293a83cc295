package config

import "sort"

func shootingPhase(ns int, duration float64, steps int) PhaseConfig {
	return PhaseConfig{
		Shooting:    ns,
		Duration:    duration,
		Scheme:      SchemeConfig{Kind: "multiple_shooting", Steps: steps},
		ControlType: "constant",
	}
}

func collocationPhase(ns int, duration float64, degree int) PhaseConfig {
	return PhaseConfig{
		Shooting:    ns,
		Duration:    duration,
		Scheme:      SchemeConfig{Kind: "collocation", Degree: degree},
		ControlType: "constant",
	}
}

func linear(from, to float64) GuessEntry {
	return GuessEntry{Type: "linear", Values: [][]float64{{from, to}}}
}

func constant(v float64) GuessEntry {
	return GuessEntry{Type: "constant", Values: [][]float64{{v}}}
}

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"swingup": {
			Model:  "pendulum",
			Phases: []PhaseConfig{shootingPhase(30, 1.0, 5)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Key: "tau", Weight: 1},
				{Type: "track_state", Key: "theta", Weight: 100, Target: []float64{3.14159}},
			},
			Guess: GuessConfig{
				States:   []map[string]GuessEntry{{"theta": linear(0, 3.14159)}},
				Controls: []map[string]GuessEntry{{"tau": constant(1)}},
			},
			Integrate:   IntegrateConfig{Shooting: "single", Integrator: "ocp", Tolerance: DefaultTolerance},
			Interpolate: InterpolateConfig{Frames: DefaultFrames},
		},
		"multiphase": {
			Model:  "pendulum",
			Phases: []PhaseConfig{shootingPhase(10, 0.5, 5), shootingPhase(10, 0.5, 5)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Phase: 0, Key: "tau", Weight: 1},
				{Type: "minimize_controls", Phase: 1, Key: "tau", Weight: 1},
			},
			Constraints: []PenaltyConfig{
				{Type: "continuity", Phase: 0},
			},
			Guess: GuessConfig{
				Controls: []map[string]GuessEntry{{"tau": constant(2)}, {"tau": constant(-2)}},
			},
			Integrate: IntegrateConfig{Shooting: "single", Integrator: "ocp", MergePhases: true, Tolerance: DefaultTolerance},
		},
		"collocation": {
			Model:  "pendulum",
			Phases: []PhaseConfig{collocationPhase(10, 1.0, 3)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Key: "tau", Weight: 1},
			},
			Guess: GuessConfig{
				States: []map[string]GuessEntry{{"theta": constant(0.5)}},
			},
			Integrate: IntegrateConfig{Shooting: "single", Integrator: "rk45", KeepIntermediatePoints: true, Tolerance: DefaultTolerance},
		},
		"noisy": {
			Model:  "pendulum",
			Phases: []PhaseConfig{shootingPhase(20, 1.0, 5)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Key: "tau", Weight: 1},
			},
			Guess: GuessConfig{
				States:   []map[string]GuessEntry{{"theta": constant(0.3)}},
				Controls: []map[string]GuessEntry{{"tau": constant(0)}},
			},
			Integrate: IntegrateConfig{Shooting: "single", Integrator: "rk4", Tolerance: DefaultTolerance},
			Noise:     NoiseConfig{Draws: 20, MotorSigma: 0.05, InitialSigma: 0.01, Seed: 42, Workers: 4},
		},
	},
	"double_pendulum": {
		"gentle": {
			Model:  "double_pendulum",
			Phases: []PhaseConfig{shootingPhase(40, 2.0, 5)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Key: "tau", Weight: 1},
				{Type: "energy", Weight: 0.1},
			},
			Guess: GuessConfig{
				States: []map[string]GuessEntry{{"theta1": constant(0.3), "theta2": constant(0.3)}},
			},
			Integrate: IntegrateConfig{Shooting: "single", Integrator: "rk45", Tolerance: DefaultTolerance},
		},
	},
	"cartpole": {
		"balance": {
			Model:  "cartpole",
			Phases: []PhaseConfig{shootingPhase(25, 2.0, 4)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Key: "force", Weight: 0.1},
				{Type: "minimize_states", Key: "theta", Weight: 10},
			},
			Constraints: []PenaltyConfig{
				{Type: "state_bounds", Key: "pos", Limit: 2},
			},
			Guess: GuessConfig{
				States: []map[string]GuessEntry{{"theta": linear(0.1, 0)}},
			},
			Integrate: IntegrateConfig{Shooting: "multiple", Integrator: "ocp", KeepIntermediatePoints: true, Tolerance: DefaultTolerance},
		},
	},
	"spring_mass": {
		"bounce": {
			Model:  "spring_mass",
			Phases: []PhaseConfig{shootingPhase(20, 2.0, 5)},
			Objectives: []PenaltyConfig{
				{Type: "minimize_controls", Key: "force", Weight: 1},
				{Type: "track_state", Key: "x0", Weight: 10, Target: []float64{0}},
			},
			Guess: GuessConfig{
				States: []map[string]GuessEntry{{"x0": constant(2)}},
			},
			Integrate:   IntegrateConfig{Shooting: "single", Integrator: "verlet", Tolerance: DefaultTolerance},
			Interpolate: InterpolateConfig{Frames: DefaultFrames},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
