// Package qp solves dense convex quadratic programs of the form
//
//	minimize    (1/2) zᵀPz + qᵀz
//	subject to  l <= Az <= u
//
// using an ADMM operator-splitting scheme. P must be positive semidefinite.
// Equality constraints are expressed as rows with l[i] == u[i]; one-sided
// constraints use -Inf or +Inf bounds. Equality rows get a much larger
// per-row step size than inequality rows, which is what makes the iteration
// converge on stacked dynamics/bound problems.
//
// The quadratic and constraint structure (P, A) is fixed at construction and
// factorized once; the linear parts (q, l, u) may be swapped between solves,
// which makes a Problem reusable as a parametric template.
package qp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Status reports the outcome of a solve.
type Status int

const (
	StatusSolved Status = iota
	StatusMaxIterations
	StatusPrimalInfeasible
	StatusDualInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusMaxIterations:
		return "max iterations"
	case StatusPrimalInfeasible:
		return "primal infeasible"
	case StatusDualInfeasible:
		return "dual infeasible"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Ok reports whether the solve produced a usable optimum.
func (s Status) Ok() bool { return s == StatusSolved }

// rhoEqScale multiplies the step size on equality rows. Equality constraints
// must be enforced much harder than box rows or the splitting stalls.
const rhoEqScale = 1e3

// Settings control the ADMM iteration.
type Settings struct {
	Rho     float64 // base step size; equality rows use Rho*rhoEqScale
	Sigma   float64 // regularization added to P
	Alpha   float64 // over-relaxation, in (0, 2)
	EpsAbs  float64
	EpsRel  float64
	EpsInf  float64 // infeasibility certificate tolerance
	MaxIter int
}

// DefaultSettings returns the tuning used by the controller.
func DefaultSettings() Settings {
	return Settings{
		Rho:     0.1,
		Sigma:   1e-6,
		Alpha:   1.6,
		EpsAbs:  1e-6,
		EpsRel:  1e-6,
		EpsInf:  1e-5,
		MaxIter: 10000,
	}
}

// Solution holds the result of one solve.
type Solution struct {
	Status     Status
	Z          []float64 // optimal assignment, nil unless Status.Ok()
	Objective  float64
	Iterations int
}

// Problem is a parametric QP template. Not safe for concurrent use.
type Problem struct {
	n, m int

	p *mat.SymDense
	a *mat.Dense
	q []float64
	l []float64
	u []float64

	set  Settings
	rho  []float64 // per-row step size, fixed at construction
	chol mat.Cholesky

	// iterates, retained for warm starting across solves
	z  []float64
	zp []float64 // projected splitting variable (length m)
	y  []float64
}

// NewProblem validates the problem dimensions and factorizes the ADMM normal
// matrix P + sigma*I + AᵀRA, where R carries the per-row step sizes: rows
// with l[i] == u[i] are treated as equalities and stepped rhoEqScale harder.
// The equality/inequality classification is baked into the factorization, so
// UpdateVectors must not change which rows are equalities. Contradictory
// bounds (l > u) are not an error here: they make the problem structurally
// infeasible and are reported by Solve.
func NewProblem(p *mat.SymDense, q []float64, a *mat.Dense, l, u []float64, set Settings) (*Problem, error) {
	n := p.SymmetricDim()
	m, an := a.Dims()
	if an != n {
		return nil, fmt.Errorf("qp: A is %dx%d, want %d columns", m, an, n)
	}
	if len(q) != n {
		return nil, fmt.Errorf("qp: q has length %d, want %d", len(q), n)
	}
	if len(l) != m || len(u) != m {
		return nil, fmt.Errorf("qp: bounds have lengths %d/%d, want %d", len(l), len(u), m)
	}
	if set.MaxIter <= 0 {
		set = DefaultSettings()
	}

	pr := &Problem{
		n: n, m: m,
		p:   p,
		a:   a,
		q:   append([]float64(nil), q...),
		l:   append([]float64(nil), l...),
		u:   append([]float64(nil), u...),
		set: set,
		z:   make([]float64, n),
		zp:  make([]float64, m),
		y:   make([]float64, m),
	}

	pr.rho = make([]float64, m)
	for i := 0; i < m; i++ {
		pr.rho[i] = set.Rho
		if l[i] == u[i] && !math.IsInf(l[i], 0) {
			pr.rho[i] = set.Rho * rhoEqScale
		}
	}

	// AᵀRA via rows of A scaled by sqrt(rho_i).
	scaled := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		s := math.Sqrt(pr.rho[i])
		for j := 0; j < n; j++ {
			scaled.Set(i, j, s*a.At(i, j))
		}
	}
	var ata mat.SymDense
	ata.SymOuterK(1, scaled.T())

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := p.At(i, j) + ata.At(i, j)
			if i == j {
				v += set.Sigma
			}
			k.SetSym(i, j, v)
		}
	}
	if ok := pr.chol.Factorize(k); !ok {
		return nil, fmt.Errorf("qp: normal matrix is not positive definite")
	}
	return pr, nil
}

// UpdateVectors replaces the linear parts of the template. The factorization
// is reused; dimensions must match the original problem and rows must keep
// their equality/inequality nature (an equality row may move, not loosen).
func (p *Problem) UpdateVectors(q, l, u []float64) error {
	if q != nil {
		if len(q) != p.n {
			return fmt.Errorf("qp: q has length %d, want %d", len(q), p.n)
		}
		copy(p.q, q)
	}
	if l != nil {
		if len(l) != p.m {
			return fmt.Errorf("qp: l has length %d, want %d", len(l), p.m)
		}
		copy(p.l, l)
	}
	if u != nil {
		if len(u) != p.m {
			return fmt.Errorf("qp: u has length %d, want %d", len(u), p.m)
		}
		copy(p.u, u)
	}
	return nil
}

// WarmStart seeds the primal and dual iterates for the next solve.
func (p *Problem) WarmStart(z, y []float64) {
	if len(z) == p.n {
		copy(p.z, z)
	}
	if len(y) == p.m {
		copy(p.y, y)
	}
}

// Solve runs the ADMM iteration until the residual test passes, an
// infeasibility certificate is found, or the iteration budget is exhausted.
func (p *Problem) Solve() *Solution {
	for i := 0; i < p.m; i++ {
		if p.l[i] > p.u[i] {
			return &Solution{Status: StatusPrimalInfeasible}
		}
	}

	const checkEvery = 25

	x := append([]float64(nil), p.z...)
	zp := append([]float64(nil), p.zp...)
	y := append([]float64(nil), p.y...)

	xTilde := make([]float64, p.n)
	zTilde := make([]float64, p.m)
	rhs := make([]float64, p.n)
	ax := make([]float64, p.m)
	scratchN := make([]float64, p.n)
	deltaX := make([]float64, p.n)
	deltaY := make([]float64, p.m)

	set := p.set
	for iter := 1; iter <= set.MaxIter; iter++ {
		// rhs = sigma*x - q + Aᵀ(R*zp - y)
		for i := 0; i < p.m; i++ {
			deltaY[i] = p.rho[i]*zp[i] - y[i] // reuse as scratch
		}
		mulVecT(scratchN, p.a, deltaY)
		for i := 0; i < p.n; i++ {
			rhs[i] = set.Sigma*x[i] - p.q[i] + scratchN[i]
		}
		if err := p.chol.SolveVecTo(vec(xTilde), vec(rhs)); err != nil {
			return &Solution{Status: StatusPrimalInfeasible, Iterations: iter}
		}
		mulVec(zTilde, p.a, xTilde)

		copy(deltaX, x)
		copy(deltaY, y)

		for i := 0; i < p.n; i++ {
			x[i] = set.Alpha*xTilde[i] + (1-set.Alpha)*x[i]
		}
		for i := 0; i < p.m; i++ {
			relaxed := set.Alpha*zTilde[i] + (1-set.Alpha)*zp[i]
			znew := clamp(relaxed+y[i]/p.rho[i], p.l[i], p.u[i])
			y[i] += p.rho[i] * (relaxed - znew)
			zp[i] = znew
		}

		for i := 0; i < p.n; i++ {
			deltaX[i] = x[i] - deltaX[i]
		}
		for i := 0; i < p.m; i++ {
			deltaY[i] = y[i] - deltaY[i]
		}

		if iter%checkEvery != 0 && iter != set.MaxIter {
			continue
		}

		if !allFinite(x) {
			return &Solution{Status: StatusPrimalInfeasible, Iterations: iter}
		}

		mulVec(ax, p.a, x)
		rPrim := 0.0
		for i := 0; i < p.m; i++ {
			rPrim = math.Max(rPrim, math.Abs(ax[i]-zp[i]))
		}
		epsPrim := set.EpsAbs + set.EpsRel*math.Max(normInf(ax), normInf(zp))

		// dual residual: Px + q + Aᵀy
		mulSymVec(scratchN, p.p, x)
		px := normInf(scratchN)
		mulVecT(rhs, p.a, y) // reuse rhs as Aᵀy scratch
		rDual := 0.0
		for i := 0; i < p.n; i++ {
			rDual = math.Max(rDual, math.Abs(scratchN[i]+p.q[i]+rhs[i]))
		}
		epsDual := set.EpsAbs + set.EpsRel*max3(px, normInf(p.q), normInf(rhs))

		if rPrim <= epsPrim && rDual <= epsDual {
			p.stash(x, zp, y)
			return &Solution{
				Status:     StatusSolved,
				Z:          append([]float64(nil), x...),
				Objective:  p.objective(x),
				Iterations: iter,
			}
		}

		if p.primalInfeasible(deltaY) {
			return &Solution{Status: StatusPrimalInfeasible, Iterations: iter}
		}
		if p.dualInfeasible(deltaX) {
			return &Solution{Status: StatusDualInfeasible, Iterations: iter}
		}
	}

	p.stash(x, zp, y)
	return &Solution{Status: StatusMaxIterations, Iterations: set.MaxIter}
}

// stash retains the final iterates so the next solve of the template starts
// from them.
func (p *Problem) stash(x, zp, y []float64) {
	copy(p.z, x)
	copy(p.zp, zp)
	copy(p.y, y)
}

func (p *Problem) objective(x []float64) float64 {
	px := make([]float64, p.n)
	mulSymVec(px, p.p, x)
	obj := 0.0
	for i := 0; i < p.n; i++ {
		obj += 0.5*x[i]*px[i] + p.q[i]*x[i]
	}
	return obj
}

// primalInfeasible tests the dual-direction certificate: deltaY lies in the
// null space of Aᵀ while the support function of the bounds is negative.
func (p *Problem) primalInfeasible(deltaY []float64) bool {
	nd := normInf(deltaY)
	if nd < p.set.EpsInf {
		return false
	}
	aty := make([]float64, p.n)
	mulVecT(aty, p.a, deltaY)
	if normInf(aty) > p.set.EpsInf*nd {
		return false
	}
	support := 0.0
	for i := 0; i < p.m; i++ {
		switch {
		case deltaY[i] > 0:
			if math.IsInf(p.u[i], 1) {
				return false
			}
			support += p.u[i] * deltaY[i]
		case deltaY[i] < 0:
			if math.IsInf(p.l[i], -1) {
				return false
			}
			support += p.l[i] * deltaY[i]
		}
	}
	return support < -p.set.EpsInf*nd
}

// dualInfeasible tests the primal-direction certificate: a descent direction
// deltaX along which the objective is unbounded below and the constraints
// stay satisfiable.
func (p *Problem) dualInfeasible(deltaX []float64) bool {
	nd := normInf(deltaX)
	if nd < p.set.EpsInf {
		return false
	}
	pdx := make([]float64, p.n)
	mulSymVec(pdx, p.p, deltaX)
	if normInf(pdx) > p.set.EpsInf*nd {
		return false
	}
	qdx := 0.0
	for i := 0; i < p.n; i++ {
		qdx += p.q[i] * deltaX[i]
	}
	if qdx > -p.set.EpsInf*nd {
		return false
	}
	adx := make([]float64, p.m)
	mulVec(adx, p.a, deltaX)
	for i := 0; i < p.m; i++ {
		tol := p.set.EpsInf * nd
		if !math.IsInf(p.u[i], 1) && adx[i] > tol {
			return false
		}
		if !math.IsInf(p.l[i], -1) && adx[i] < -tol {
			return false
		}
	}
	return true
}

func vec(s []float64) *mat.VecDense { return mat.NewVecDense(len(s), s) }

func mulVec(dst []float64, a *mat.Dense, x []float64) {
	var v mat.VecDense
	v.MulVec(a, vec(x))
	copy(dst, v.RawVector().Data)
}

func mulVecT(dst []float64, a *mat.Dense, x []float64) {
	var v mat.VecDense
	v.MulVec(a.T(), vec(x))
	copy(dst, v.RawVector().Data)
}

func mulSymVec(dst []float64, p *mat.SymDense, x []float64) {
	var v mat.VecDense
	v.MulVec(p, vec(x))
	copy(dst, v.RawVector().Data)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normInf(s []float64) float64 {
	m := 0.0
	for _, v := range s {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}

func allFinite(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
