package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcart/internal/logger"
	"github.com/san-kum/mpcart/internal/mpc"
	"github.com/san-kum/mpcart/internal/pendulum"
	"github.com/san-kum/mpcart/internal/sim"
)

func diag(v ...float64) *mat.SymDense {
	d := mat.NewSymDense(len(v), nil)
	for i, x := range v {
		d.SetSym(i, i, x)
	}
	return d
}

var _ = Describe("balancing the double inverted pendulum", func() {
	const (
		dt    = 0.05
		steps = 400
	)

	var (
		ad, bd *mat.Dense
		cfg    mpc.Config
		x0     sim.State
	)

	BeforeEach(func() {
		logger.Quiet = true

		cart, err := pendulum.New(1.5, 0.5, 0.75, 0.5, 0.75, pendulum.DefaultGravity)
		Expect(err).NotTo(HaveOccurred())

		ad, bd, err = cart.Discretize(dt)
		Expect(err).NotTo(HaveOccurred())

		cfg = mpc.Config{
			Horizon: 20,
			Q:       diag(10, 100, 100, 1, 10, 10),
			R:       diag(0.1),
			Qn:      diag(20, 200, 200, 2, 20, 20),
		}
		x0 = sim.State{0, 0.6, -0.6, 0, 0, 0}
	})

	run := func() *sim.Result {
		ctrl, err := mpc.New(ad, bd, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl.SetReference(make([]float64, 6))).To(Succeed())

		plant, err := sim.NewLinearPlant(ad, bd)
		Expect(err).NotTo(HaveOccurred())

		loop := sim.New(ctrl, plant)
		result, err := loop.Run(context.Background(), x0,
			sim.Config{Dt: dt, Steps: steps, ValidateState: true})
		Expect(err).NotTo(HaveOccurred())
		return result
	}

	It("produces a complete, finite history", func() {
		result := run()

		Expect(result.States).To(HaveLen(steps + 1))
		Expect(result.Inputs).To(HaveLen(steps))
		Expect(result.Times).To(HaveLen(steps + 1))
		Expect(result.Times[steps]).To(BeNumerically("~", float64(steps)*dt, 1e-9))

		for _, x := range result.States {
			Expect(x.IsValid()).To(BeTrue())
		}
		for _, u := range result.Inputs {
			Expect(math.IsNaN(u[0])).To(BeFalse())
			Expect(math.IsInf(u[0], 0)).To(BeFalse())
		}
	})

	It("converges toward the upright reference", func() {
		result := run()

		Expect(result.InfeasibleSteps).To(BeEmpty())

		initial := x0.Norm()
		for _, x := range result.States[len(result.States)-10:] {
			Expect(x.Norm()).To(BeNumerically("<", initial))
		}
	})

	It("stays within configured input bounds", func() {
		cfg.UMin = []float64{-50}
		cfg.UMax = []float64{50}
		result := run()

		Expect(result.InfeasibleSteps).To(BeEmpty())
		for _, u := range result.Inputs {
			Expect(u[0]).To(BeNumerically(">=", -50.001))
			Expect(u[0]).To(BeNumerically("<=", 50.001))
		}
	})
})
