package opt

import (
	"math"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// GridSearch maximizes over a uniform cartesian grid with Bins intervals per
// axis, i.e. exactly (Bins+1)^d evaluations. It is a degraded fallback: use
// it only when neither the CMA-ES nor the Nelder-Mead adapter is acceptable.
type GridSearch struct {
	Bins int
}

// NewGridSearch returns a grid search with the given per-axis resolution.
func NewGridSearch(bins int) *GridSearch {
	if bins < 1 {
		bins = 1
	}
	return &GridSearch{Bins: bins}
}

// Optimize evaluates f on every grid node and returns the arg-max. The first
// node reaching the maximum wins.
func (g *GridSearch) Optimize(f Func, x0 []float64, bounded bool) ([]float64, error) {
	if !bounded {
		return nil, optimization.NewError("grid search requires a bounded domain").
			WithComponent("opt").WithOperation("GridSearch.Optimize")
	}
	dim := len(x0)
	step := 1.0 / float64(g.Bins)

	// The starting point is not evaluated: the grid covers the whole box,
	// so the incumbent comes from grid nodes only. This keeps the call
	// count at exactly (Bins+1)^d.
	x := make([]float64, dim)
	best := cloneVec(x0)
	bestVal := math.Inf(-1)

	var walk func(axis int)
	walk = func(axis int) {
		if axis == dim {
			if v, _ := f(x, false); v > bestVal {
				bestVal = v
				copy(best, x)
			}
			return
		}
		for i := 0; i <= g.Bins; i++ {
			x[axis] = float64(i) * step
			walk(axis + 1)
		}
	}
	walk(0)

	return best, nil
}
