package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearPlant realizes x' = Ad*x + Bd*u. Handing it the same discretized pair
// the controller predicts with reproduces the idealized matched-model loop.
type LinearPlant struct {
	ad, bd *mat.Dense
	nx, nu int
}

func NewLinearPlant(ad, bd *mat.Dense) (*LinearPlant, error) {
	nx, nxc := ad.Dims()
	if nx != nxc {
		return nil, fmt.Errorf("sim: Ad is %dx%d, want square", nx, nxc)
	}
	bnx, nu := bd.Dims()
	if bnx != nx {
		return nil, fmt.Errorf("sim: Bd has %d rows, want %d", bnx, nx)
	}
	return &LinearPlant{
		ad: mat.DenseCopyOf(ad),
		bd: mat.DenseCopyOf(bd),
		nx: nx,
		nu: nu,
	}, nil
}

func (p *LinearPlant) StateDim() int { return p.nx }
func (p *LinearPlant) InputDim() int { return p.nu }

func (p *LinearPlant) Step(x State, u Input) State {
	var ax, bu mat.VecDense
	ax.MulVec(p.ad, mat.NewVecDense(p.nx, x))
	bu.MulVec(p.bd, mat.NewVecDense(p.nu, u))

	next := make(State, p.nx)
	for i := 0; i < p.nx; i++ {
		next[i] = ax.AtVec(i) + bu.AtVec(i)
	}
	return next
}
