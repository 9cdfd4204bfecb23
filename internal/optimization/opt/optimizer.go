// Package opt provides the inner optimizers used to maximize acquisition
// functions and kernel log-likelihoods over the unit box. All optimizers
// share one signature so they can be chained, repeated in parallel, or
// swapped through configuration.
package opt

// Func is the function being maximized. When gradient is true the caller
// needs the gradient and the second return value must be non-nil; otherwise
// it may be nil. Implementations that never use gradients always call with
// gradient=false.
type Func func(x []float64, gradient bool) (float64, []float64)

// Optimizer maximizes f starting from x0. When bounded is true the search is
// restricted to the unit box [0,1]^d, d = len(x0). The returned point is the
// optimizer's incumbent; it is freshly allocated and owned by the caller.
type Optimizer interface {
	Optimize(f Func, x0 []float64, bounded bool) ([]float64, error)
}

func clampUnit(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		} else if v > 1 {
			x[i] = 1
		}
	}
}

func cloneVec(x []float64) []float64 {
	return append([]float64(nil), x...)
}
