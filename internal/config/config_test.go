package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "pendulum" {
		t.Errorf("expected model pendulum, got %s", cfg.Model)
	}
	if len(cfg.Phases) != 1 || cfg.Phases[0].Shooting <= 0 {
		t.Errorf("expected one phase with shooting nodes, got %+v", cfg.Phases)
	}
	if cfg.Phases[0].Duration <= 0 {
		t.Error("duration should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problem.yaml")
	cfg := GetPreset("pendulum", "multiphase")

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problem.yaml")
	data := `
model: cartpole
phases:
  - shooting: 10
    duration: 1.5
    free_duration: true
    scheme:
      kind: collocation
      degree: 3
      include_start_point: true
    control_type: linear_continuous
    state_scaling:
      pos: [2]
objectives:
  - type: minimize_controls
    key: force
    weight: 0.5
integrate:
  shooting: single
  integrator: rk45
  keep_intermediate_points: true
interpolate:
  frames: 50
noise:
  draws: 3
  seed: 9
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	ph := cfg.Phases[0]
	if !ph.FreeDuration || ph.Scheme.Degree != 3 || !ph.Scheme.IncludeStartPoint {
		t.Errorf("phase = %+v", ph)
	}
	if diff := cmp.Diff(map[string][]float64{"pos": {2}}, ph.StateScaling); diff != "" {
		t.Errorf("state scaling mismatch (-want +got):\n%s", diff)
	}
	if cfg.Integrate.Integrator != "rk45" || !cfg.Integrate.KeepIntermediatePoints {
		t.Errorf("integrate = %+v", cfg.Integrate)
	}
	// unset fields keep their defaults
	if cfg.Integrate.Tolerance != DefaultTolerance {
		t.Errorf("tolerance = %v, want default", cfg.Integrate.Tolerance)
	}
	if cfg.Interpolate.Frames != 50 || cfg.Noise.Draws != 3 || cfg.Noise.Seed != 9 {
		t.Errorf("interpolate=%+v noise=%+v", cfg.Interpolate, cfg.Noise)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model", func(c *Config) { c.Model = "" }},
		{"no phase", func(c *Config) { c.Phases = nil }},
		{"zero shooting", func(c *Config) { c.Phases[0].Shooting = 0 }},
		{"negative duration", func(c *Config) { c.Phases[0].Duration = -1 }},
		{"penalty phase", func(c *Config) { c.Objectives[0].Phase = 3 }},
		{"untyped penalty", func(c *Config) { c.Objectives[0].Type = "" }},
		{"phase frames", func(c *Config) { c.Interpolate.PhaseFrames = []int{10, 10} }},
		{"negative draws", func(c *Config) { c.Noise.Draws = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("pendulum", "swingup")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Phases[0].Shooting != 30 {
		t.Errorf("expected 30 shooting nodes, got %d", cfg.Phases[0].Shooting)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("pendulum", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "swingup")
	if cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("pendulum")
	if diff := cmp.Diff([]string{"collocation", "multiphase", "noisy", "swingup"}, presets); diff != "" {
		t.Errorf("presets mismatch (-want +got):\n%s", diff)
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestPresetsAreValid(t *testing.T) {
	for model, presets := range Presets {
		for name, cfg := range presets {
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
			if cfg.Model != model {
				t.Errorf("%s/%s: model %q", model, name, cfg.Model)
			}
		}
	}
}
