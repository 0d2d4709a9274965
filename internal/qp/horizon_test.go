package qp

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcart/internal/pendulum"
)

// TestSolveRecedingHorizonTemplate solves the benchmark controller's full
// stacked QP: 20 steps of 6-state dynamics equalities pinned to a leaning
// initial state, plus force box rows. Stacked equality rows over an unstable
// Ad are far worse conditioned than the toy problems above; this must still
// converge within the default iteration budget.
func TestSolveRecedingHorizonTemplate(t *testing.T) {
	cart := pendulum.NewDefault()
	ad, bd, err := cart.Discretize(0.05)
	if err != nil {
		t.Fatalf("Discretize failed: %v", err)
	}

	const (
		nx = pendulum.StateDim
		nu = pendulum.InputDim
		h  = 20
	)
	qDiag := []float64{10, 100, 100, 1, 10, 10}
	qnDiag := []float64{20, 200, 200, 2, 20, 20}
	x0 := []float64{0, 0.6, -0.6, 0, 0, 0}

	nz := (h+1)*nx + h*nu
	uOff := (h + 1) * nx

	p := mat.NewSymDense(nz, nil)
	for k := 0; k <= h; k++ {
		d := qDiag
		if k == h {
			d = qnDiag
		}
		for i := 0; i < nx; i++ {
			p.SetSym(k*nx+i, k*nx+i, 2*d[i])
		}
	}
	for k := 0; k < h; k++ {
		p.SetSym(uOff+k*nu, uOff+k*nu, 2*0.1)
	}

	rows := nx + h*nx + h*nu
	a := mat.NewDense(rows, nz, nil)
	l := make([]float64, rows)
	u := make([]float64, rows)

	// initial-condition equality rows
	for i := 0; i < nx; i++ {
		a.Set(i, i, 1)
		l[i], u[i] = x0[i], x0[i]
	}

	// dynamics recursion: Ad x_k + Bd u_k - x_{k+1} = 0
	row := nx
	for k := 0; k < h; k++ {
		for i := 0; i < nx; i++ {
			for j := 0; j < nx; j++ {
				a.Set(row+i, k*nx+j, ad.At(i, j))
			}
			a.Set(row+i, uOff+k*nu, bd.At(i, 0))
			a.Set(row+i, (k+1)*nx+i, -1)
		}
		row += nx
	}

	// force box rows
	for k := 0; k < h; k++ {
		a.Set(row, uOff+k*nu, 1)
		l[row], u[row] = -50, 50
		row++
	}

	prob, err := NewProblem(p, make([]float64, nz), a, l, u, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if !sol.Status.Ok() {
		t.Fatalf("status = %v after %d iterations, want solved", sol.Status, sol.Iterations)
	}
	if !allFinite(sol.Z) {
		t.Fatal("solution contains non-finite entries")
	}

	// The plan must start at the pinned measurement and push hard against
	// the lean; a near-zero first force means the equalities were ignored.
	for i := 0; i < nx; i++ {
		if math.Abs(sol.Z[i]-x0[i]) > 1e-3 {
			t.Errorf("z[%d] = %g, want pinned to %g", i, sol.Z[i], x0[i])
		}
	}
	u0 := sol.Z[uOff]
	if math.Abs(u0) < 1 {
		t.Errorf("first input = %g, want a substantial recovery force", u0)
	}
	if u0 < -50.001 || u0 > 50.001 {
		t.Errorf("first input = %g violates the force box", u0)
	}
}
