package config

// Presets are named starting points for the CLI; each returns a fresh copy.
var presets = map[string]func() *Config{
	// The reference benchmark: sideways push with both links leaning.
	"benchmark": DefaultConfig,

	// A gentle disturbance that stays far from every bound.
	"nudge": func() *Config {
		cfg := DefaultConfig()
		cfg.Sim.X0 = []float64{0, 0.1, -0.1, 0, 0, 0}
		return cfg
	},

	// No box constraints at all; pure quadratic tracking.
	"unconstrained": func() *Config {
		cfg := DefaultConfig()
		cfg.MPC.XMin, cfg.MPC.XMax = nil, nil
		cfg.MPC.UMin, cfg.MPC.UMax = nil, nil
		return cfg
	},

	// Tight actuator: the force saturates early in the recovery.
	"weak-motor": func() *Config {
		cfg := DefaultConfig()
		cfg.MPC.UMin = []float64{-12}
		cfg.MPC.UMax = []float64{12}
		cfg.Sim.X0 = []float64{0, 0.3, -0.3, 0, 0, 0}
		return cfg
	},

	// Shifted cart target: balance upright one meter to the right.
	"offset": func() *Config {
		cfg := DefaultConfig()
		cfg.Sim.X0 = []float64{0, 0.2, -0.2, 0, 0, 0}
		cfg.Sim.XRef = []float64{1, 0, 0, 0, 0, 0}
		cfg.MPC.XMin, cfg.MPC.XMax = nil, nil
		return cfg
	},
}

func GetPreset(name string) *Config {
	f, ok := presets[name]
	if !ok {
		return nil
	}
	return f()
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
