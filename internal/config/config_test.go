package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
	if cfg.MPC.Horizon != DefaultHorizon {
		t.Errorf("horizon = %d, want %d", cfg.MPC.Horizon, DefaultHorizon)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cart mass", func(c *Config) { c.Cart.M0 = 0 }},
		{"negative length", func(c *Config) { c.Cart.L2 = -0.5 }},
		{"zero horizon", func(c *Config) { c.MPC.Horizon = 0 }},
		{"zero dt", func(c *Config) { c.MPC.Dt = 0 }},
		{"short q", func(c *Config) { c.MPC.Q = []float64{1, 2} }},
		{"long r", func(c *Config) { c.MPC.R = []float64{1, 2} }},
		{"contradictory x bounds", func(c *Config) { c.MPC.XMin[0] = 5 }},
		{"short x0", func(c *Config) { c.Sim.X0 = []float64{0} }},
		{"zero steps", func(c *Config) { c.Sim.Steps = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")

	cfg := DefaultConfig()
	cfg.MPC.Horizon = 35
	cfg.Sim.X0 = []float64{0.1, 0, 0, 0, 0, 0}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.MPC.Horizon != 35 {
		t.Errorf("horizon = %d, want 35", loaded.MPC.Horizon)
	}
	if loaded.Sim.X0[0] != 0.1 {
		t.Errorf("x0[0] = %g, want 0.1", loaded.Sim.X0[0])
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yaml")
	if err := os.WriteFile(path, []byte("mpc:\n  horizon: 10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MPC.Horizon != 10 {
		t.Errorf("horizon = %d, want 10", cfg.MPC.Horizon)
	}
	if cfg.Cart.M0 != 1.5 {
		t.Errorf("cart.m0 = %g, want default 1.5", cfg.Cart.M0)
	}
}

func TestPresets(t *testing.T) {
	for _, name := range ListPresets() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("preset %q returned nil", name)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %q does not validate: %v", name, err)
		}
	}

	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for unknown preset")
	}

	// Presets must hand out fresh copies.
	a := GetPreset("benchmark")
	a.MPC.Horizon = 1
	b := GetPreset("benchmark")
	if b.MPC.Horizon == 1 {
		t.Error("presets share state between calls")
	}
}
