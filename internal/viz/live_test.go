package viz

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcart/internal/mpc"
	"github.com/san-kum/mpcart/internal/sim"
)

func testLoop(t *testing.T) (*mpc.Controller, sim.Plant) {
	t.Helper()

	ad := mat.NewDense(2, 2, []float64{1, 0.05, 0, 1})
	bd := mat.NewDense(2, 1, []float64{0.00125, 0.05})
	q := mat.NewSymDense(2, []float64{10, 0, 0, 1})
	r := mat.NewSymDense(1, []float64{0.1})

	ctrl, err := mpc.New(ad, bd, mpc.Config{Horizon: 5, Q: q, R: r})
	if err != nil {
		t.Fatalf("mpc.New failed: %v", err)
	}
	plant, err := sim.NewLinearPlant(ad, bd)
	if err != nil {
		t.Fatalf("NewLinearPlant failed: %v", err)
	}
	return ctrl, plant
}

func TestModelAdvancesOnTick(t *testing.T) {
	ctrl, plant := testLoop(t)
	m := NewModel(ctrl, plant, []float64{1, 0}, 0.5, 0.75, 0.05, 10)

	next, cmd := m.Update(TickMsg(time.Now()))
	got := next.(Model)

	if got.step != 1 {
		t.Errorf("step = %d, want 1", got.step)
	}
	if cmd == nil {
		t.Error("expected the next frame to be scheduled")
	}
	if len(got.inputHist) != 1 {
		t.Errorf("input history has %d entries, want 1", len(got.inputHist))
	}
}

func TestModelPauseAndReset(t *testing.T) {
	ctrl, plant := testLoop(t)
	m := NewModel(ctrl, plant, []float64{1, 0}, 0.5, 0.75, 0.05, 10)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	paused := next.(Model)
	if paused.running {
		t.Fatal("space must pause")
	}

	next, _ = paused.Update(TickMsg(time.Now()))
	still := next.(Model)
	if still.step != 0 {
		t.Errorf("paused model advanced to step %d", still.step)
	}

	next, _ = still.Update(tea.KeyMsg{Type: tea.KeySpace})
	next, _ = next.(Model).Update(TickMsg(time.Now()))
	if advanced := next.(Model); advanced.step != 1 {
		t.Fatalf("resumed model at step %d, want 1", advanced.step)
	}

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	reset := next.(Model)
	if reset.step != 0 || !reset.running {
		t.Errorf("reset left step=%d running=%v", reset.step, reset.running)
	}
	if reset.state[0] != 1 || reset.state[1] != 0 {
		t.Errorf("reset state = %v, want the initial state", reset.state)
	}
}
