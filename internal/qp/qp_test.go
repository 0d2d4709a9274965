package qp

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func inf() float64 { return math.Inf(1) }

func TestSolveUnconstrainedMinimum(t *testing.T) {
	// min 1/2 z^2 - z inside a wide box: optimum at z = 1.
	p := mat.NewSymDense(1, []float64{1})
	a := mat.NewDense(1, 1, []float64{1})

	prob, err := NewProblem(p, []float64{-1}, a, []float64{-10}, []float64{10}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if !sol.Status.Ok() {
		t.Fatalf("status = %v, want solved", sol.Status)
	}
	if math.Abs(sol.Z[0]-1) > 1e-4 {
		t.Errorf("z = %g, want 1", sol.Z[0])
	}
	if math.Abs(sol.Objective-(-0.5)) > 1e-4 {
		t.Errorf("objective = %g, want -0.5", sol.Objective)
	}
}

func TestSolveActiveBound(t *testing.T) {
	// Same objective with z <= 0.5: the bound is active.
	p := mat.NewSymDense(1, []float64{1})
	a := mat.NewDense(1, 1, []float64{1})

	prob, err := NewProblem(p, []float64{-1}, a, []float64{-10}, []float64{0.5}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if !sol.Status.Ok() {
		t.Fatalf("status = %v, want solved", sol.Status)
	}
	if math.Abs(sol.Z[0]-0.5) > 1e-4 {
		t.Errorf("z = %g, want 0.5", sol.Z[0])
	}
}

func TestSolveEqualityConstraint(t *testing.T) {
	// min 1/2 (z1^2 + z2^2) subject to z1 + z2 = 1: optimum (0.5, 0.5).
	p := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	a := mat.NewDense(1, 2, []float64{1, 1})

	prob, err := NewProblem(p, []float64{0, 0}, a, []float64{1}, []float64{1}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if !sol.Status.Ok() {
		t.Fatalf("status = %v, want solved", sol.Status)
	}
	for i, want := range []float64{0.5, 0.5} {
		if math.Abs(sol.Z[i]-want) > 1e-4 {
			t.Errorf("z[%d] = %g, want %g", i, sol.Z[i], want)
		}
	}
}

func TestContradictoryBounds(t *testing.T) {
	p := mat.NewSymDense(1, []float64{1})
	a := mat.NewDense(1, 1, []float64{1})

	prob, err := NewProblem(p, []float64{0}, a, []float64{2}, []float64{1}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if sol.Status != StatusPrimalInfeasible {
		t.Errorf("status = %v, want primal infeasible", sol.Status)
	}
	if sol.Z != nil {
		t.Error("infeasible solve must not return an assignment")
	}
}

func TestConflictingRows(t *testing.T) {
	// z must lie in [1,2] and in [-2,0] simultaneously.
	p := mat.NewSymDense(1, []float64{1})
	a := mat.NewDense(2, 1, []float64{1, 1})

	prob, err := NewProblem(p, []float64{0}, a,
		[]float64{1, -2}, []float64{2, 0}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if sol.Status == StatusSolved {
		t.Fatalf("status = %v, want an infeasibility report", sol.Status)
	}
}

func TestUnboundedBelow(t *testing.T) {
	// min -z subject to z >= 0: unbounded below in the feasible cone.
	p := mat.NewSymDense(1, []float64{0})
	a := mat.NewDense(1, 1, []float64{1})

	prob, err := NewProblem(p, []float64{-1}, a, []float64{0}, []float64{inf()}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	sol := prob.Solve()
	if sol.Status != StatusDualInfeasible {
		t.Errorf("status = %v, want dual infeasible", sol.Status)
	}
}

func TestTemplateReuse(t *testing.T) {
	// The same factorized template solved with two different gradients.
	p := mat.NewSymDense(1, []float64{1})
	a := mat.NewDense(1, 1, []float64{1})

	prob, err := NewProblem(p, []float64{-1}, a, []float64{-10}, []float64{10}, DefaultSettings())
	if err != nil {
		t.Fatalf("NewProblem failed: %v", err)
	}

	first := prob.Solve()
	if !first.Status.Ok() || math.Abs(first.Z[0]-1) > 1e-4 {
		t.Fatalf("first solve: status %v, z %v", first.Status, first.Z)
	}

	if err := prob.UpdateVectors([]float64{2}, nil, nil); err != nil {
		t.Fatalf("UpdateVectors failed: %v", err)
	}
	second := prob.Solve()
	if !second.Status.Ok() {
		t.Fatalf("second solve: status %v", second.Status)
	}
	if math.Abs(second.Z[0]+2) > 1e-4 {
		t.Errorf("z = %g, want -2", second.Z[0])
	}
}

func TestDimensionValidation(t *testing.T) {
	p := mat.NewSymDense(2, nil)
	a := mat.NewDense(1, 1, []float64{1})

	if _, err := NewProblem(p, []float64{0, 0}, a, []float64{0}, []float64{1}, DefaultSettings()); err == nil {
		t.Error("expected dimension error for mismatched A")
	}
}
