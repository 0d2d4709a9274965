package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/mpcart/internal/logger"
)

// Loop executes sequential control steps against a plant. The recurrence is
// causal, so the loop is strictly single-threaded; parallel experiments need
// their own Loop and controller instances.
type Loop struct {
	ctrl      Controller
	plant     Plant
	metrics   []Metric
	observers []Observer
}

func New(ctrl Controller, plant Plant) *Loop {
	return &Loop{
		ctrl:  ctrl,
		plant: plant,
	}
}

func (l *Loop) AddMetric(m Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

// Run performs cfg.Steps control steps from x0. On a degraded solve the zero
// input is applied and the step index recorded; the loop keeps going. A
// non-finite realized state aborts with an error and the history so far.
func (l *Loop) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := l.validate(x0, cfg); err != nil {
		return nil, err
	}

	result := &Result{
		States:  make([]State, 0, cfg.Steps+1),
		Inputs:  make([]Input, 0, cfg.Steps),
		Times:   make([]float64, 0, cfg.Steps+1),
		Metrics: make(map[string]float64),
	}

	for _, m := range l.metrics {
		m.Reset()
	}

	x := x0.Clone()
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, 0)

	for k := 0; k < cfg.Steps; k++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		t := float64(k) * cfg.Dt

		sol, err := l.ctrl.Solve(x)
		if err != nil {
			return result, fmt.Errorf("sim: step %d: %w", k, err)
		}
		if sol.Degraded() {
			result.InfeasibleSteps = append(result.InfeasibleSteps, k)
			logger.Info("step %d: solver reported %s, applying zero input", k, sol.Status)
		}

		u := Input(sol.U)

		for _, m := range l.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range l.observers {
			obs.OnStep(x, u, t)
		}

		x = l.plant.Step(x, u)
		if cfg.ValidateState && !x.IsValid() {
			return result, fmt.Errorf("sim: step %d: %w", k, ErrStateDiverged)
		}

		result.States = append(result.States, x.Clone())
		result.Inputs = append(result.Inputs, append(Input(nil), u...))
		result.Times = append(result.Times, float64(k+1)*cfg.Dt)
		result.StepsTaken++
	}

	for _, m := range l.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

func (l *Loop) validate(x0 State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("sim: dt must be positive, got %g", cfg.Dt)
	}
	if cfg.Steps <= 0 {
		return fmt.Errorf("sim: steps must be positive, got %d", cfg.Steps)
	}
	if len(x0) != l.plant.StateDim() {
		return fmt.Errorf("sim: initial state has length %d, want %d",
			len(x0), l.plant.StateDim())
	}
	if !x0.IsValid() {
		return fmt.Errorf("sim: initial state: %w", ErrStateDiverged)
	}
	return nil
}
