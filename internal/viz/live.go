// Package viz renders the cart and pendulum in the terminal: a braille
// canvas for the mechanism, an asciigraph strip for recent history, and a
// live bubbletea view that steps the real closed loop.
package viz

import (
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/mpcart/internal/mpc"
	"github.com/san-kum/mpcart/internal/qp"
	"github.com/san-kum/mpcart/internal/sim"
)

const (
	canvasWidth  = 72
	canvasHeight = 14
	historyLen   = 240

	// world window shown on the canvas, meters
	worldHalfWidth = 2.2
)

type TickMsg time.Time

// Model is the live closed-loop view. Each tick runs one real control step;
// nothing is precomputed.
type Model struct {
	ctrl  *mpc.Controller
	plant sim.Plant

	state    sim.State
	initial  sim.State
	linkLen1 float64
	linkLen2 float64
	dt       float64

	step     int
	maxSteps int
	lastU    float64
	status   qp.Status
	degraded int

	angleHist []float64
	inputHist []float64

	canvas  *Canvas
	running bool
	err     error
}

func NewModel(ctrl *mpc.Controller, plant sim.Plant, x0 []float64, l1, l2, dt float64, steps int) Model {
	return Model{
		ctrl:      ctrl,
		plant:     plant,
		state:     sim.State(x0).Clone(),
		initial:   sim.State(x0).Clone(),
		linkLen1:  l1,
		linkLen2:  l2,
		dt:        dt,
		maxSteps:  steps,
		status:    qp.StatusSolved,
		angleHist: make([]float64, 0, historyLen),
		inputHist: make([]float64, 0, historyLen),
		canvas:    NewCanvas(canvasWidth, canvasHeight),
		running:   true,
	}
}

// Run launches the live view and blocks until it exits.
func Run(ctrl *mpc.Controller, plant sim.Plant, x0 []float64, l1, l2, dt float64, steps int) error {
	p := tea.NewProgram(NewModel(ctrl, plant, x0, l1, l2, dt, steps))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tick(m.dt)
}

// tick schedules the next frame on the next multiple of the sample interval,
// so playback does not drift by the per-step solve time.
func tick(dt float64) tea.Cmd {
	d := time.Duration(dt * float64(time.Second))
	return tea.Every(d, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		}
		return m, nil

	case TickMsg:
		if m.running && m.err == nil && m.step < m.maxSteps {
			m.advance()
		}
		return m, tick(m.dt)
	}
	return m, nil
}

func (m *Model) reset() {
	m.state = m.initial.Clone()
	m.step = 0
	m.lastU = 0
	m.status = qp.StatusSolved
	m.degraded = 0
	m.angleHist = m.angleHist[:0]
	m.inputHist = m.inputHist[:0]
	m.err = nil
	m.running = true
}

// advance runs one control step against the plant.
func (m *Model) advance() {
	sol, err := m.ctrl.Solve(m.state)
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	m.status = sol.Status
	if sol.Degraded() {
		m.degraded++
	}
	m.lastU = sol.U[0]

	m.state = m.plant.Step(m.state, sim.Input(sol.U))
	if !m.state.IsValid() {
		m.err = sim.ErrStateDiverged
		m.running = false
		return
	}
	m.step++

	m.angleHist = appendCapped(m.angleHist, m.state[1])
	m.inputHist = appendCapped(m.inputHist, m.lastU)
}

func appendCapped(s []float64, v float64) []float64 {
	if len(s) >= historyLen {
		s = s[1:]
	}
	return append(s, v)
}

func (m Model) View() string {
	m.drawMechanism()

	header := headerStyle.Render("mpcart · double inverted pendulum · receding-horizon control")

	stats := lipgloss.JoinVertical(lipgloss.Left,
		statLine("step", fmt.Sprintf("%d / %d", m.step, m.maxSteps)),
		statLine("time", fmt.Sprintf("%.2f s", float64(m.step)*m.dt)),
		statLine("cart", fmt.Sprintf("%+.3f m", m.state[0])),
		statLine("theta1", fmt.Sprintf("%+.3f rad", m.state[1])),
		statLine("theta2", fmt.Sprintf("%+.3f rad", m.state[2])),
		statLine("force", fmt.Sprintf("%+.2f N", m.lastU)),
		statusLine(m.status, m.degraded),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		canvasStyle.Render(m.canvas.String()),
		lipgloss.NewStyle().Padding(0, 2).Render(stats),
	)

	graph := ""
	if len(m.angleHist) > 1 {
		graph = graphStyle.Render(asciigraph.Plot(m.angleHist,
			asciigraph.Height(6),
			asciigraph.Width(canvasWidth),
			asciigraph.Caption("theta1 history"),
		))
	}

	help := helpStyle.Render("space pause · r reset · q quit")
	if m.err != nil {
		help = degradedStyle.Render("stopped: "+m.err.Error()) + "\n" + help
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, graph, help)
}

func statLine(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func statusLine(st qp.Status, degraded int) string {
	if st.Ok() {
		return labelStyle.Render("solver") + okStyle.Render("optimal")
	}
	return labelStyle.Render("solver") +
		degradedStyle.Render(fmt.Sprintf("%s (%d degraded)", st, degraded))
}

// drawMechanism renders the cart and both links. Angles are measured from
// the upright vertical, so a zero state draws a straight vertical chain.
func (m Model) drawMechanism() {
	m.canvas.Clear()

	subW := float64(canvasWidth * 2)
	subH := float64(canvasHeight * 4)
	scale := subW / (2 * worldHalfWidth)

	// ground line near the bottom, cart riding on it
	groundY := subH - 6
	m.canvas.Line(0, int(groundY)+3, int(subW)-1, int(groundY)+3)

	toScreen := func(wx, wy float64) (int, int) {
		sx := (wx + worldHalfWidth) * scale
		sy := groundY - wy*scale
		return int(sx), int(sy)
	}

	cartX := m.state[0]
	th1, th2 := m.state[1], m.state[2]

	// cart body
	cx, cy := toScreen(cartX, 0)
	for dx := -5; dx <= 5; dx++ {
		m.canvas.Set(cx+dx, cy)
		m.canvas.Set(cx+dx, cy+1)
		m.canvas.Set(cx+dx, cy+2)
	}

	// first link from the cart pivot
	j1x := cartX + m.linkLen1*math.Sin(th1)
	j1y := m.linkLen1 * math.Cos(th1)
	p1x, p1y := toScreen(j1x, j1y)
	m.canvas.Line(cx, cy, p1x, p1y)

	// second link from the first joint
	j2x := j1x + m.linkLen2*math.Sin(th2)
	j2y := j1y + m.linkLen2*math.Cos(th2)
	p2x, p2y := toScreen(j2x, j2y)
	m.canvas.Line(p1x, p1y, p2x, p2y)

	// joint markers
	m.canvas.Set(p1x, p1y)
	m.canvas.Set(p2x, p2y)
}
