package opt

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// NelderMead adapts gonum's derivative-free simplex method to the
// inner-optimizer contract. It fills the derivative-free slot when CMA-ES is
// not wanted: a cheap local refiner, typically wrapped in a ParallelRepeater
// or chained after a global stage.
type NelderMead struct {
	// SimplexSize is the size of the auto-constructed initial simplex.
	SimplexSize float64

	// ConvergeIterations bounds the function-convergence window.
	ConvergeIterations int
}

// NewNelderMead returns a Nelder-Mead adapter with the standard coefficients.
func NewNelderMead() *NelderMead {
	return &NelderMead{
		SimplexSize:        0.2,
		ConvergeIterations: 100,
	}
}

// Optimize minimizes -f from x0. When bounded, evaluation points are clamped
// into the unit box, which turns the unconstrained simplex search into a
// box-respecting one.
func (n *NelderMead) Optimize(f Func, x0 []float64, bounded bool) ([]float64, error) {
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

	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: n.ConvergeIterations,
		},
	}

	method := &optimize.NelderMead{
		Reflection:  1.0,
		Expansion:   2.0,
		Contraction: 0.5,
		Shrink:      0.5,
		SimplexSize: n.SimplexSize,
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
