// Package mpc implements a linear model predictive controller with a
// receding-horizon policy: each call optimizes a full input sequence over the
// horizon and only the first element is ever applied.
//
// The controller is structurally fixed after construction. The quadratic
// program it solves is built once as a parametric template; each Solve only
// rewrites the gradient and the initial-condition rows before invoking the
// solver, so the expensive factorization is shared across all control steps.
package mpc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcart/internal/qp"
)

// Config collects the tuning of a controller. Qn may be nil, in which case
// the stage cost Q is reused as the terminal cost. Bounds may be nil
// (absent); present bounds must match the state/input dimensions.
type Config struct {
	Horizon int
	Q       *mat.SymDense
	R       *mat.SymDense
	Qn      *mat.SymDense

	XMin, XMax []float64
	UMin, UMax []float64

	Solver qp.Settings
}

// Solution is the outcome of one receding-horizon solve. On a degraded solve
// (infeasible, unbounded, or numerically failed) U is the zero vector and the
// predicted trajectories are nil; Status distinguishes that from a genuine
// zero-force optimum.
type Solution struct {
	Status     qp.Status
	U          []float64
	PredStates [][]float64 // Horizon+1 rows, nil when degraded
	PredInputs [][]float64 // Horizon rows, nil when degraded
	Objective  float64
	Iterations int
}

// Degraded reports whether the solution is the zero-input fallback rather
// than an optimizer result.
func (s *Solution) Degraded() bool { return !s.Status.Ok() }

// Controller owns the discretized prediction model and the QP template.
// Not safe for concurrent use: parallel runs need separate instances.
type Controller struct {
	nx, nu  int
	horizon int

	ad, bd *mat.Dense
	cfg    Config

	xRef []float64
	uRef []float64

	prob    *qp.Problem
	qVec    []float64
	lower   []float64
	upper   []float64
	nz      int
	nStates int // rows of the stacked state block, (Horizon+1)*nx
}

// New validates the configuration and builds the QP template. Dimension
// mismatches are configuration errors; contradictory bounds are not rejected
// here — they surface as an infeasible status from Solve.
func New(ad, bd *mat.Dense, cfg Config) (*Controller, error) {
	nx, nxc := ad.Dims()
	if nx != nxc {
		return nil, fmt.Errorf("mpc: %w: Ad is %dx%d, want square", ErrDimension, nx, nxc)
	}
	bnx, nu := bd.Dims()
	if bnx != nx {
		return nil, fmt.Errorf("mpc: %w: Bd has %d rows, want %d", ErrDimension, bnx, nx)
	}
	if cfg.Horizon < 1 {
		return nil, fmt.Errorf("mpc: %w: horizon %d", ErrHorizon, cfg.Horizon)
	}
	if cfg.Q == nil || cfg.R == nil {
		return nil, fmt.Errorf("mpc: %w: Q and R must be set", ErrDimension)
	}
	if d := cfg.Q.SymmetricDim(); d != nx {
		return nil, fmt.Errorf("mpc: %w: Q is %dx%d, want %dx%d", ErrDimension, d, d, nx, nx)
	}
	if d := cfg.R.SymmetricDim(); d != nu {
		return nil, fmt.Errorf("mpc: %w: R is %dx%d, want %dx%d", ErrDimension, d, d, nu, nu)
	}
	if cfg.Qn == nil {
		cfg.Qn = cfg.Q
	} else if d := cfg.Qn.SymmetricDim(); d != nx {
		return nil, fmt.Errorf("mpc: %w: Qn is %dx%d, want %dx%d", ErrDimension, d, d, nx, nx)
	}
	for name, b := range map[string][]float64{"x_min": cfg.XMin, "x_max": cfg.XMax} {
		if b != nil && len(b) != nx {
			return nil, fmt.Errorf("mpc: %w: %s has length %d, want %d", ErrDimension, name, len(b), nx)
		}
	}
	for name, b := range map[string][]float64{"u_min": cfg.UMin, "u_max": cfg.UMax} {
		if b != nil && len(b) != nu {
			return nil, fmt.Errorf("mpc: %w: %s has length %d, want %d", ErrDimension, name, len(b), nu)
		}
	}

	c := &Controller{
		nx: nx, nu: nu,
		horizon: cfg.Horizon,
		ad:      mat.DenseCopyOf(ad),
		bd:      mat.DenseCopyOf(bd),
		cfg:     cfg,
		xRef:    make([]float64, nx),
		uRef:    make([]float64, nu),
	}
	if err := c.buildTemplate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) Horizon() int    { return c.horizon }
func (c *Controller) StateDim() int   { return c.nx }
func (c *Controller) InputDim() int   { return c.nu }
func (c *Controller) Reference() []float64 {
	return append([]float64(nil), c.xRef...)
}

// SetReference replaces the tracked target state and resets the input
// reference to zero.
func (c *Controller) SetReference(xRef []float64) error {
	if len(xRef) != c.nx {
		return fmt.Errorf("mpc: %w: reference has length %d, want %d", ErrDimension, len(xRef), c.nx)
	}
	for _, v := range xRef {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("mpc: %w: non-finite reference", ErrDimension)
		}
	}
	copy(c.xRef, xRef)
	for i := range c.uRef {
		c.uRef[i] = 0
	}
	c.refreshGradient()
	return nil
}

// Solve runs one receding-horizon optimization from the measured state. An
// error is returned only for a malformed argument; solver-side failure modes
// are reported through Solution.Status with a zero input.
func (c *Controller) Solve(x []float64) (*Solution, error) {
	if len(x) != c.nx {
		return nil, fmt.Errorf("mpc: %w: state has length %d, want %d", ErrDimension, len(x), c.nx)
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("mpc: %w: non-finite state", ErrDimension)
		}
	}

	// Pin the plan to the measurement: the first nx constraint rows are the
	// initial-condition equality.
	copy(c.lower[:c.nx], x)
	copy(c.upper[:c.nx], x)
	if err := c.prob.UpdateVectors(c.qVec, c.lower, c.upper); err != nil {
		return nil, err
	}

	res := c.prob.Solve()
	if !res.Status.Ok() {
		return c.degraded(res.Status, res.Iterations), nil
	}
	return c.extract(res), nil
}

// extract unpacks the stacked solver assignment into per-step trajectories.
// A solver that converged to non-finite values has failed, whatever its
// status claims; such a result degrades as primal infeasible, the same
// status the solver's own non-finite guard reports.
func (c *Controller) extract(res *qp.Solution) *Solution {
	states := make([][]float64, c.horizon+1)
	for k := 0; k <= c.horizon; k++ {
		states[k] = append([]float64(nil), res.Z[c.xIdx(k):c.xIdx(k)+c.nx]...)
	}
	inputs := make([][]float64, c.horizon)
	for k := 0; k < c.horizon; k++ {
		inputs[k] = append([]float64(nil), res.Z[c.uIdx(k):c.uIdx(k)+c.nu]...)
	}

	for _, row := range states {
		if !finite(row) {
			return c.degraded(qp.StatusPrimalInfeasible, res.Iterations)
		}
	}
	for _, row := range inputs {
		if !finite(row) {
			return c.degraded(qp.StatusPrimalInfeasible, res.Iterations)
		}
	}

	return &Solution{
		Status:     res.Status,
		U:          append([]float64(nil), inputs[0]...),
		PredStates: states,
		PredInputs: inputs,
		Objective:  res.Objective,
		Iterations: res.Iterations,
	}
}

func (c *Controller) degraded(st qp.Status, iters int) *Solution {
	return &Solution{
		Status:     st,
		U:          make([]float64, c.nu),
		Iterations: iters,
	}
}

func (c *Controller) xIdx(k int) int { return k * c.nx }
func (c *Controller) uIdx(k int) int { return c.nStates + k*c.nu }

// buildTemplate assembles the fixed quadratic cost, the stacked constraint
// matrix and the bound vectors, then hands them to the solver for one-time
// factorization.
func (c *Controller) buildTemplate() error {
	n, m, h := c.nx, c.nu, c.horizon
	c.nStates = (h + 1) * n
	c.nz = c.nStates + h*m

	// Cost: sum_k (x_k - xr)'Q(x_k - xr) + (u_k - ur)'R(u_k - ur)
	// plus the terminal (x_N - xr)'Qn(x_N - xr), written as 1/2 z'Pz + q'z
	// with P = 2*blockdiag(Q..Q, Qn, R..R).
	p := mat.NewSymDense(c.nz, nil)
	for k := 0; k <= h; k++ {
		cost := c.cfg.Q
		if k == h {
			cost = c.cfg.Qn
		}
		off := c.xIdx(k)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				p.SetSym(off+i, off+j, 2*cost.At(i, j))
			}
		}
	}
	for k := 0; k < h; k++ {
		off := c.uIdx(k)
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				p.SetSym(off+i, off+j, 2*c.cfg.R.At(i, j))
			}
		}
	}

	rows := n + h*n // initial condition + dynamics recursion
	hasXBounds := c.cfg.XMin != nil || c.cfg.XMax != nil
	hasUBounds := c.cfg.UMin != nil || c.cfg.UMax != nil
	if hasXBounds {
		rows += (h + 1) * n
	}
	if hasUBounds {
		rows += h * m
	}

	a := mat.NewDense(rows, c.nz, nil)
	c.lower = make([]float64, rows)
	c.upper = make([]float64, rows)

	// Initial condition rows: x_0 = x_current (refreshed per solve).
	for i := 0; i < n; i++ {
		a.Set(i, c.xIdx(0)+i, 1)
	}

	// Dynamics recursion: Ad x_k + Bd u_k - x_{k+1} = 0 for k = 0..h-1.
	row := n
	for k := 0; k < h; k++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a.Set(row+i, c.xIdx(k)+j, c.ad.At(i, j))
			}
			for j := 0; j < m; j++ {
				a.Set(row+i, c.uIdx(k)+j, c.bd.At(i, j))
			}
			a.Set(row+i, c.xIdx(k+1)+i, -1)
		}
		row += n
	}

	if hasXBounds {
		for k := 0; k <= h; k++ {
			for i := 0; i < n; i++ {
				a.Set(row, c.xIdx(k)+i, 1)
				c.lower[row] = boundOr(c.cfg.XMin, i, math.Inf(-1))
				c.upper[row] = boundOr(c.cfg.XMax, i, math.Inf(1))
				row++
			}
		}
	}
	if hasUBounds {
		for k := 0; k < h; k++ {
			for i := 0; i < m; i++ {
				a.Set(row, c.uIdx(k)+i, 1)
				c.lower[row] = boundOr(c.cfg.UMin, i, math.Inf(-1))
				c.upper[row] = boundOr(c.cfg.UMax, i, math.Inf(1))
				row++
			}
		}
	}

	c.qVec = make([]float64, c.nz)
	c.refreshGradient()

	prob, err := qp.NewProblem(p, c.qVec, a, c.lower, c.upper, c.cfg.Solver)
	if err != nil {
		return fmt.Errorf("mpc: building QP template: %w", err)
	}
	c.prob = prob
	return nil
}

// refreshGradient rewrites q = -2*[Q xr .. Qn xr, R ur ..] for the current
// reference pair.
func (c *Controller) refreshGradient() {
	xr := mat.NewVecDense(c.nx, c.xRef)
	ur := mat.NewVecDense(c.nu, c.uRef)

	var tmp mat.VecDense
	for k := 0; k <= c.horizon; k++ {
		cost := c.cfg.Q
		if k == c.horizon {
			cost = c.cfg.Qn
		}
		tmp.MulVec(cost, xr)
		for i := 0; i < c.nx; i++ {
			c.qVec[c.xIdx(k)+i] = -2 * tmp.AtVec(i)
		}
	}
	var tmpU mat.VecDense
	tmpU.MulVec(c.cfg.R, ur)
	for k := 0; k < c.horizon; k++ {
		for i := 0; i < c.nu; i++ {
			c.qVec[c.uIdx(k)+i] = -2 * tmpU.AtVec(i)
		}
	}
}

func boundOr(b []float64, i int, def float64) float64 {
	if b == nil {
		return def
	}
	return b[i]
}

func finite(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
