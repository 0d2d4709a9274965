// Package pendulum models a double inverted pendulum mounted on a cart and
// derives its linear state-space approximation about the upright equilibrium.
//
// The state vector is
//
//	x = [pos, theta1, theta2, vel, omega1, omega2]
//
// with both angles measured from the upright vertical, and the single input is
// the horizontal force applied to the cart.
package pendulum

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	StateDim = 6
	InputDim = 1

	DefaultGravity = 9.81

	// MaxStepInterval bounds the sample interval accepted by Discretize.
	// The forward-Euler discretization A_d = I + A*dt degrades quickly for
	// large dt, well before it becomes numerically meaningless.
	MaxStepInterval = 0.5
)

// Cart holds the physical parameters of the cart plus two pendulum links and
// the linearized (A, B) pair computed once at construction. Instances are
// immutable after New returns.
type Cart struct {
	M0, M1, M2 float64 // cart and link masses
	L1, L2     float64 // link lengths
	Gravity    float64

	a *mat.Dense // 6x6 continuous state matrix
	b *mat.Dense // 6x1 continuous input matrix
}

// New builds the cart model and linearizes it about the upright equilibrium.
// Non-positive masses, lengths or gravity are rejected: they would produce a
// degenerate effective mass matrix.
func New(m0, m1, m2, l1, l2, g float64) (*Cart, error) {
	for name, v := range map[string]float64{
		"m0": m0, "m1": m1, "m2": m2, "L1": l1, "L2": l2, "g": g,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("pendulum: %w: %s = %g", ErrBadParams, name, v)
		}
	}

	c := &Cart{M0: m0, M1: m1, M2: m2, L1: l1, L2: l2, Gravity: g}
	if err := c.linearize(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefault returns the cart with the reference parameter set under standard
// gravity.
func NewDefault() *Cart {
	c, err := New(1.5, 0.5, 0.75, 0.5, 0.75, DefaultGravity)
	if err != nil {
		panic(err) // unreachable: reference parameters are valid
	}
	return c
}

func (c *Cart) StateDim() int { return StateDim }
func (c *Cart) InputDim() int { return InputDim }

// HalfLengths returns the distances from each joint to its link's center of
// mass (uniform rods).
func (c *Cart) HalfLengths() (l1, l2 float64) { return c.L1 / 2, c.L2 / 2 }

// Inertias returns the moments of inertia of both links about their centers.
func (c *Cart) Inertias() (i1, i2 float64) {
	return c.M1 * c.L1 * c.L1 / 12, c.M2 * c.L2 * c.L2 / 12
}

// linearize assembles the continuous (A, B) pair from the effective mass
// matrix M0, the gravity-gradient matrix and the force distribution vector.
func (c *Cart) linearize() error {
	l1, l2 := c.HalfLengths()
	i1, i2 := c.Inertias()
	g := c.Gravity

	m11 := c.M0 + c.M1 + c.M2
	m12 := c.M1*l1 + c.M2*c.L1
	m13 := c.M2 * l2
	m22 := c.M1*l1*l1 + c.M2*c.L1*c.L1 + i1
	m23 := c.M2 * c.L1 * l2
	m33 := c.M2*l2*l2 + i2

	mass := mat.NewDense(3, 3, []float64{
		m11, m12, m13,
		m12, m22, m23,
		m13, m23, m33,
	})

	var massInv mat.Dense
	if err := massInv.Inverse(mass); err != nil {
		return fmt.Errorf("pendulum: %w: effective mass matrix is singular: %v", ErrBadParams, err)
	}

	// Gradient of the generalized gravity torque at the inverted equilibrium.
	// Positive diagonal entries: gravity feeds back destabilizingly upright.
	grad := mat.NewDense(3, 3, nil)
	grad.Set(1, 1, (c.M1*l1+c.M2*c.L1)*g)
	grad.Set(2, 2, c.M2*l2*g)

	// The force acts only through the cart's translational equation.
	force := mat.NewVecDense(3, []float64{1, 0, 0})

	var accelBlock mat.Dense // -M0^{-1} * dh/dtheta
	accelBlock.Mul(&massInv, grad)
	accelBlock.Scale(-1, &accelBlock)

	var inputBlock mat.VecDense // M0^{-1} * F
	inputBlock.MulVec(&massInv, force)

	a := mat.NewDense(StateDim, StateDim, nil)
	a.Set(0, 3, 1)
	a.Set(1, 4, 1)
	a.Set(2, 5, 1)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.Set(3+i, j, accelBlock.At(i, j))
		}
	}

	b := mat.NewDense(StateDim, InputDim, nil)
	for i := 0; i < 3; i++ {
		b.Set(3+i, 0, inputBlock.AtVec(i))
	}

	c.a, c.b = a, b
	return nil
}

// Linearized returns copies of the continuous-time state-space pair (A, B).
func (c *Cart) Linearized() (a, b *mat.Dense) {
	a = mat.DenseCopyOf(c.a)
	b = mat.DenseCopyOf(c.b)
	return a, b
}

// Discretize converts the continuous pair to a discrete-time update rule over
// the sample interval dt using the explicit first-order approximation
//
//	A_d = I + A*dt,  B_d = B*dt.
func (c *Cart) Discretize(dt float64) (ad, bd *mat.Dense, err error) {
	if dt <= 0 || dt > MaxStepInterval {
		return nil, nil, fmt.Errorf("pendulum: %w: dt = %g (want 0 < dt <= %g)",
			ErrBadStep, dt, MaxStepInterval)
	}

	ad = mat.NewDense(StateDim, StateDim, nil)
	ad.Scale(dt, c.a)
	for i := 0; i < StateDim; i++ {
		ad.Set(i, i, ad.At(i, i)+1)
	}

	bd = mat.NewDense(StateDim, InputDim, nil)
	bd.Scale(dt, c.b)
	return ad, bd, nil
}
