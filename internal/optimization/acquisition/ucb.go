package acquisition

import (
	"math"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// UCB is the Upper Confidence Bound acquisition: agg(μ(x)) + α·σ(x). The
// deviation is taken from the first output's posterior, matching the default
// first-element aggregator.
type UCB struct {
	model Model
	alpha float64
	agg   optimization.Aggregator
}

// NewUCB creates a UCB acquisition with exploration weight alpha.
func NewUCB(model Model, alpha float64, agg optimization.Aggregator) *UCB {
	return &UCB{
		model: model,
		alpha: alpha,
		agg:   aggregatorOrDefault(agg),
	}
}

// Eval scores x. Zero posterior deviation degrades gracefully to the
// aggregated mean.
func (u *UCB) Eval(x []float64) (float64, error) {
	mu, sigma2, err := u.model.Query(x)
	if err != nil {
		return 0, err
	}
	return u.agg(mu) + u.alpha*math.Sqrt(math.Max(0, sigma2[0])), nil
}

// GPUCB is the iteration-aware UCB variant with
// β(t) = sqrt(2 log(t^(d/2+2) π² / 3δ)), which widens the exploration
// bonus as the run progresses.
type GPUCB struct {
	model     Model
	iteration int
	dim       int
	delta     float64
	agg       optimization.Aggregator
}

// NewGPUCB creates a GP-UCB acquisition for the given iteration counter and
// input dimension. delta is the confidence parameter, typically 0.1.
func NewGPUCB(model Model, iteration, dim int, delta float64, agg optimization.Aggregator) *GPUCB {
	return &GPUCB{
		model:     model,
		iteration: iteration,
		dim:       dim,
		delta:     delta,
		agg:       aggregatorOrDefault(agg),
	}
}

// Eval scores x with the iteration-dependent exploration weight.
func (g *GPUCB) Eval(x []float64) (float64, error) {
	mu, sigma2, err := g.model.Query(x)
	if err != nil {
		return 0, err
	}
	t := float64(g.iteration + 1)
	inner := math.Pow(t, float64(g.dim)/2+2) * math.Pi * math.Pi / (3 * g.delta)
	beta := math.Sqrt(2 * math.Log(inner))
	return g.agg(mu) + beta*math.Sqrt(math.Max(0, sigma2[0])), nil
}
