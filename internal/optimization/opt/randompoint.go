package opt

import (
	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/random"
)

// RandomPoint returns one uniform-random point in the unit box without
// evaluating f. It is the exploration baseline and a useful link inside a
// Chained optimizer to de-correlate stages.
type RandomPoint struct{}

// NewRandomPoint returns a RandomPoint optimizer.
func NewRandomPoint() *RandomPoint { return &RandomPoint{} }

// Optimize ignores f and x0 except for the dimension of x0.
func (r *RandomPoint) Optimize(_ Func, x0 []float64, bounded bool) ([]float64, error) {
	if !bounded {
		return nil, optimization.NewError("random point requires a bounded domain").
			WithComponent("opt").WithOperation("RandomPoint.Optimize")
	}
	return random.Vector(len(x0)), nil
}
