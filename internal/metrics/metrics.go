// Package metrics provides running performance measures observed over a
// closed-loop run.
package metrics

import (
	"math"

	"github.com/san-kum/mpcart/internal/sim"
)

// ControlEffort accumulates the mean absolute input.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(x sim.State, u sim.Input, t float64) {
	for _, v := range u {
		c.sum += math.Abs(v)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// TrackingError accumulates the RMS distance between the realized state and
// a fixed reference.
type TrackingError struct {
	ref     []float64
	sumSq   float64
	samples int
}

func NewTrackingError(ref []float64) *TrackingError {
	return &TrackingError{ref: append([]float64(nil), ref...)}
}

func (e *TrackingError) Name() string { return "tracking_error" }

func (e *TrackingError) Observe(x sim.State, u sim.Input, t float64) {
	sum := 0.0
	for i, v := range x {
		d := v
		if i < len(e.ref) {
			d -= e.ref[i]
		}
		sum += d * d
	}
	e.sumSq += sum
	e.samples++
}

func (e *TrackingError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return math.Sqrt(e.sumSq / float64(e.samples))
}

func (e *TrackingError) Reset() {
	e.sumSq = 0
	e.samples = 0
}

// PeakInput tracks the largest absolute input seen.
type PeakInput struct {
	peak float64
}

func NewPeakInput() *PeakInput { return &PeakInput{} }

func (p *PeakInput) Name() string { return "peak_input" }

func (p *PeakInput) Observe(x sim.State, u sim.Input, t float64) {
	for _, v := range u {
		if a := math.Abs(v); a > p.peak {
			p.peak = a
		}
	}
}

func (p *PeakInput) Value() float64 { return p.peak }

func (p *PeakInput) Reset() { p.peak = 0 }

// BoundMargin tracks the smallest elementwise distance between the state and
// its box bounds; negative values mean a violation occurred.
type BoundMargin struct {
	min, max []float64
	margin   float64
	seen     bool
}

func NewBoundMargin(min, max []float64) *BoundMargin {
	return &BoundMargin{
		min: append([]float64(nil), min...),
		max: append([]float64(nil), max...),
	}
}

func (b *BoundMargin) Name() string { return "bound_margin" }

func (b *BoundMargin) Observe(x sim.State, u sim.Input, t float64) {
	for i, v := range x {
		if i < len(b.min) {
			b.update(v - b.min[i])
		}
		if i < len(b.max) {
			b.update(b.max[i] - v)
		}
	}
}

func (b *BoundMargin) update(m float64) {
	if !b.seen || m < b.margin {
		b.margin = m
		b.seen = true
	}
}

func (b *BoundMargin) Value() float64 { return b.margin }

func (b *BoundMargin) Reset() {
	b.margin = 0
	b.seen = false
}
