// Package sim drives the closed control loop: at every step the controller
// is asked for an input from the latest realized state, only that first input
// is applied, and the plant advances one sample interval.
package sim

import (
	"math"

	"github.com/san-kum/mpcart/internal/mpc"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

type Input []float64

// Plant advances the realized state by one sample interval. It is kept
// separate from the controller's prediction model so a mismatched or noisy
// plant can be substituted without touching the controller contract.
type Plant interface {
	Step(x State, u Input) State
	StateDim() int
	InputDim() int
}

// Controller is the receding-horizon policy the loop consults each step.
type Controller interface {
	Solve(x []float64) (*mpc.Solution, error)
}

type Metric interface {
	Name() string
	Observe(x State, u Input, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Input, t float64)
}

type Config struct {
	Dt            float64
	Steps         int
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.05,
		Steps:         400,
		ValidateState: true,
	}
}

// Result is the realized closed-loop trajectory: Steps+1 states, Steps
// inputs, and a uniformly spaced time vector. InfeasibleSteps lists the step
// indices where the controller returned its degraded zero input.
type Result struct {
	States          []State
	Inputs          []Input
	Times           []float64
	Metrics         map[string]float64
	InfeasibleSteps []int
	StepsTaken      int
}
