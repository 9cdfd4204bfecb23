package opt

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/BOREAL/internal/random"
)

// CmaEs adapts gonum's Cholesky-based CMA-ES to the inner-optimizer contract.
// It is the default acquisition optimizer: derivative-free and much better
// behaved on multi-modal acquisition landscapes than local methods.
type CmaEs struct {
	// InitStepSize is the initial sampling radius; zero lets gonum pick.
	InitStepSize float64

	// Population overrides the λ default when positive.
	Population int

	// MaxEvaluations bounds the total function evaluations. Zero means
	// 1000·d.
	MaxEvaluations int
}

// NewCmaEs returns a CMA-ES adapter sized for unit-box acquisition
// maximization.
func NewCmaEs() *CmaEs {
	return &CmaEs{InitStepSize: 0.3}
}

// Optimize runs CMA-ES on -f (gonum minimizes) and returns the incumbent.
// When bounded, candidate points are clamped into the unit box before
// evaluation and the result is clamped on the way out.
func (c *CmaEs) Optimize(f Func, x0 []float64, bounded bool) ([]float64, error) {
	dim := len(x0)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			z := x
			if bounded {
				z = cloneVec(x)
				clampUnit(z)
			}
			v, _ := f(z, false)
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return -v
		},
	}

	maxEvals := c.MaxEvaluations
	if maxEvals <= 0 {
		maxEvals = 1000 * dim
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
	}

	seed := uint64(random.Int63())
	method := &optimize.CmaEsChol{
		InitStepSize: c.InitStepSize,
		Population:   c.Population,
		Src:          rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}

	start := cloneVec(x0)
	if bounded {
		clampUnit(start)
	}

	result, err := optimize.Minimize(problem, start, settings, method)
	if err != nil && result == nil {
		return nil, err
	}

	best := cloneVec(result.X)
	if bounded {
		clampUnit(best)
	}
	return best, nil
}
