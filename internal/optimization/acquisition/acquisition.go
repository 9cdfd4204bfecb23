// Package acquisition provides the functions that score candidate inputs
// from the surrogate posterior. An acquisition is constructed per BO
// iteration from the current model and iteration counter, and handed to an
// inner optimizer for maximization over the unit box.
package acquisition

import (
	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// Model is the read-only surrogate view an acquisition needs: the stacked
// posterior mean and per-output variances at a point.
type Model interface {
	Query(x []float64) (mu, sigma2 []float64, err error)
}

// Function scores a candidate input. Implementations must be safe to
// evaluate at points where the posterior deviation is zero, and safe for
// concurrent calls.
type Function interface {
	Eval(x []float64) (float64, error)
}

func aggregatorOrDefault(agg optimization.Aggregator) optimization.Aggregator {
	if agg == nil {
		return optimization.FirstElem
	}
	return agg
}
