package opt

import (
	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// Chained runs a sequence of optimizers, feeding each stage's incumbent to
// the next as its starting point. Typical use: a global stage followed by a
// local refiner.
type Chained struct {
	stages []Optimizer
}

// NewChained returns a Chained optimizer over the given stages, in order.
func NewChained(stages ...Optimizer) *Chained {
	return &Chained{stages: stages}
}

// Optimize threads the starting point through every stage and returns the
// last stage's result.
func (c *Chained) Optimize(f Func, x0 []float64, bounded bool) ([]float64, error) {
	if len(c.stages) == 0 {
		return nil, optimization.NewError("chained optimizer has no stages").
			WithComponent("opt").WithOperation("Chained.Optimize")
	}
	x := cloneVec(x0)
	for _, stage := range c.stages {
		next, err := stage.Optimize(f, x, bounded)
		if err != nil {
			return nil, err
		}
		x = next
	}
	return x, nil
}
