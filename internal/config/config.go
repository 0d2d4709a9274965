// Package config defines the run configuration, YAML loading and named
// presets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHorizon = 20
	DefaultDt      = 0.05
	DefaultSteps   = 400
)

type Config struct {
	Cart CartConfig `yaml:"cart"`
	MPC  MPCConfig  `yaml:"mpc"`
	Sim  SimConfig  `yaml:"sim"`
}

// CartConfig holds the physical parameters of the cart and both links.
type CartConfig struct {
	M0      float64 `yaml:"m0"`
	M1      float64 `yaml:"m1"`
	M2      float64 `yaml:"m2"`
	L1      float64 `yaml:"l1"`
	L2      float64 `yaml:"l2"`
	Gravity float64 `yaml:"gravity"`
}

// MPCConfig holds the controller tuning. Cost entries are the diagonals of
// Q, R and Qn; empty Qn falls back to Q. Empty bound slices mean the bound
// is absent.
type MPCConfig struct {
	Horizon int       `yaml:"horizon"`
	Dt      float64   `yaml:"dt"`
	Q       []float64 `yaml:"q"`
	R       []float64 `yaml:"r"`
	Qn      []float64 `yaml:"qn"`
	XMin    []float64 `yaml:"x_min"`
	XMax    []float64 `yaml:"x_max"`
	UMin    []float64 `yaml:"u_min"`
	UMax    []float64 `yaml:"u_max"`
}

type SimConfig struct {
	Steps int       `yaml:"steps"`
	X0    []float64 `yaml:"x0"`
	XRef  []float64 `yaml:"x_ref"`
}

// DefaultConfig returns the reference tuning: the benchmark cart pushed
// sideways with both links leaning, tracked back to upright.
func DefaultConfig() *Config {
	return &Config{
		Cart: CartConfig{
			M0: 1.5, M1: 0.5, M2: 0.75,
			L1: 0.5, L2: 0.75,
			Gravity: 9.81,
		},
		MPC: MPCConfig{
			Horizon: DefaultHorizon,
			Dt:      DefaultDt,
			Q:       []float64{10, 100, 100, 1, 10, 10},
			R:       []float64{0.1},
			Qn:      []float64{20, 200, 200, 2, 20, 20},
			XMin:    []float64{-2, -1, -1, -3, -5, -5},
			XMax:    []float64{2, 1, 1, 3, 5, 5},
			UMin:    []float64{-50},
			UMax:    []float64{50},
		},
		Sim: SimConfig{
			Steps: DefaultSteps,
			X0:    []float64{0, 0.6, -0.6, 0, 0, 0},
			XRef:  []float64{0, 0, 0, 0, 0, 0},
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
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for structural errors so the CLI fails
// before any numerics run. Contradictory bounds are rejected here too: a
// config file asking for min > max is a mistake, even though the controller
// would survive it by reporting infeasible solves.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"m0": c.Cart.M0, "m1": c.Cart.M1, "m2": c.Cart.M2,
		"l1": c.Cart.L1, "l2": c.Cart.L2, "gravity": c.Cart.Gravity,
	} {
		if v <= 0 {
			return fmt.Errorf("config: cart.%s must be positive, got %g", name, v)
		}
	}
	if c.MPC.Horizon < 1 {
		return fmt.Errorf("config: mpc.horizon must be at least 1, got %d", c.MPC.Horizon)
	}
	if c.MPC.Dt <= 0 {
		return fmt.Errorf("config: mpc.dt must be positive, got %g", c.MPC.Dt)
	}
	if len(c.MPC.Q) != 6 {
		return fmt.Errorf("config: mpc.q needs 6 entries, got %d", len(c.MPC.Q))
	}
	if len(c.MPC.R) != 1 {
		return fmt.Errorf("config: mpc.r needs 1 entry, got %d", len(c.MPC.R))
	}
	if len(c.MPC.Qn) != 0 && len(c.MPC.Qn) != 6 {
		return fmt.Errorf("config: mpc.qn needs 0 or 6 entries, got %d", len(c.MPC.Qn))
	}
	if err := checkBounds("x", c.MPC.XMin, c.MPC.XMax, 6); err != nil {
		return err
	}
	if err := checkBounds("u", c.MPC.UMin, c.MPC.UMax, 1); err != nil {
		return err
	}
	if c.Sim.Steps < 1 {
		return fmt.Errorf("config: sim.steps must be at least 1, got %d", c.Sim.Steps)
	}
	if len(c.Sim.X0) != 6 {
		return fmt.Errorf("config: sim.x0 needs 6 entries, got %d", len(c.Sim.X0))
	}
	if len(c.Sim.XRef) != 6 {
		return fmt.Errorf("config: sim.x_ref needs 6 entries, got %d", len(c.Sim.XRef))
	}
	return nil
}

func checkBounds(name string, min, max []float64, dim int) error {
	if len(min) != 0 && len(min) != dim {
		return fmt.Errorf("config: mpc.%s_min needs 0 or %d entries, got %d", name, dim, len(min))
	}
	if len(max) != 0 && len(max) != dim {
		return fmt.Errorf("config: mpc.%s_max needs 0 or %d entries, got %d", name, dim, len(max))
	}
	if len(min) == dim && len(max) == dim {
		for i := range min {
			if min[i] > max[i] {
				return fmt.Errorf("config: mpc.%s_min[%d] = %g exceeds %s_max[%d] = %g",
					name, i, min[i], name, i, max[i])
			}
		}
	}
	return nil
}
