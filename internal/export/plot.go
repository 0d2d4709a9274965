// Package export renders stored trajectories to PNG images.
package export

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var palette = []color.RGBA{
	{R: 0xD6, G: 0x27, B: 0x28, A: 0xFF},
	{R: 0x1F, G: 0x77, B: 0xB4, A: 0xFF},
	{R: 0x2C, G: 0xA0, B: 0x2C, A: 0xFF},
	{R: 0xFF, G: 0x7F, B: 0x0E, A: 0xFF},
	{R: 0x94, G: 0x67, B: 0xBD, A: 0xFF},
	{R: 0x8C, G: 0x56, B: 0x4B, A: 0xFF},
}

func plotColor(i int) color.RGBA {
	return palette[i%len(palette)]
}

var stateLabels = []string{
	"cart position [m]",
	"theta1 [rad]",
	"theta2 [rad]",
	"cart velocity [m/s]",
	"omega1 [rad/s]",
	"omega2 [rad/s]",
}

// WritePlots renders states.png and input.png into dir and returns the
// written paths.
func WritePlots(dir string, times []float64, states, inputs [][]float64) ([]string, error) {
	if len(states) == 0 || len(times) != len(states) {
		return nil, fmt.Errorf("export: %d states vs %d times", len(states), len(times))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var written []string

	statePath := filepath.Join(dir, "states.png")
	if err := writeStatePlot(statePath, times, states); err != nil {
		return nil, err
	}
	written = append(written, statePath)

	if len(inputs) > 0 {
		inputPath := filepath.Join(dir, "input.png")
		if err := writeInputPlot(inputPath, times, inputs); err != nil {
			return nil, err
		}
		written = append(written, inputPath)
	}

	return written, nil
}

func writeStatePlot(path string, times []float64, states [][]float64) error {
	p := plot.New()
	p.Title.Text = "closed-loop state trajectory"
	p.X.Label.Text = "time [s]"
	p.Legend.Top = true

	for ch := 0; ch < len(states[0]); ch++ {
		pts := make(plotter.XYs, len(states))
		for i := range states {
			pts[i].X = times[i]
			pts[i].Y = states[i][ch]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotColor(ch)
		p.Add(line)

		label := fmt.Sprintf("x%d", ch)
		if ch < len(stateLabels) {
			label = stateLabels[ch]
		}
		p.Legend.Add(label, line)
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func writeInputPlot(path string, times []float64, inputs [][]float64) error {
	p := plot.New()
	p.Title.Text = "applied force"
	p.X.Label.Text = "time [s]"
	p.Y.Label.Text = "force [N]"

	// inputs are one shorter than the time vector
	pts := make(plotter.XYs, len(inputs))
	for i := range inputs {
		pts[i].X = times[i]
		pts[i].Y = inputs[i][0]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotColor(0)
	p.Add(line)

	return p.Save(8*vg.Inch, 3*vg.Inch, path)
}
