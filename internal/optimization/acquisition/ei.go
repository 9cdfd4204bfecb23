package acquisition

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// ExpectedImprovement scores a candidate by the expected amount it improves
// on the best aggregated observation so far:
//
//	EI(x) = (agg(μ) − best − ξ)·Φ(z) + σ·φ(z),  z = (agg(μ) − best − ξ)/σ
//
// where Φ and φ are the standard normal CDF and PDF. ξ trades exploration
// against exploitation.
type ExpectedImprovement struct {
	model Model
	best  float64
	xi    float64
	agg   optimization.Aggregator
}

// NewExpectedImprovement creates an EI acquisition against the given best
// aggregated observation. Use math.Inf(-1) before any observation exists.
func NewExpectedImprovement(model Model, best, xi float64, agg optimization.Aggregator) *ExpectedImprovement {
	return &ExpectedImprovement{
		model: model,
		best:  best,
		xi:    xi,
		agg:   aggregatorOrDefault(agg),
	}
}

// Eval scores x. With σ ≈ 0 the score collapses to the raw improvement,
// clamped at zero.
func (ei *ExpectedImprovement) Eval(x []float64) (float64, error) {
	mu, sigma2, err := ei.model.Query(x)
	if err != nil {
		return 0, err
	}

	improvement := ei.agg(mu) - ei.best - ei.xi
	sigma := math.Sqrt(math.Max(0, sigma2[0]))

	if sigma <= 1e-10 {
		return math.Max(0, improvement), nil
	}

	stdNormal := distuv.UnitNormal
	z := improvement / sigma
	return improvement*stdNormal.CDF(z) + sigma*stdNormal.Prob(z), nil
}

// ProbabilityOfImprovement scores a candidate by Φ((agg(μ) − best − ξ)/σ),
// the posterior probability of beating the incumbent by at least ξ.
type ProbabilityOfImprovement struct {
	model Model
	best  float64
	xi    float64
	agg   optimization.Aggregator
}

// NewProbabilityOfImprovement creates a PI acquisition against the given
// best aggregated observation.
func NewProbabilityOfImprovement(model Model, best, xi float64, agg optimization.Aggregator) *ProbabilityOfImprovement {
	return &ProbabilityOfImprovement{
		model: model,
		best:  best,
		xi:    xi,
		agg:   aggregatorOrDefault(agg),
	}
}

// Eval scores x. With σ ≈ 0 the score is 1 when the mean already improves on
// the incumbent and 0 otherwise.
func (pi *ProbabilityOfImprovement) Eval(x []float64) (float64, error) {
	mu, sigma2, err := pi.model.Query(x)
	if err != nil {
		return 0, err
	}

	improvement := pi.agg(mu) - pi.best - pi.xi
	sigma := math.Sqrt(math.Max(0, sigma2[0]))

	if sigma <= 1e-10 {
		if improvement > 0 {
			return 1, nil
		}
		return 0, nil
	}
	return distuv.UnitNormal.CDF(improvement / sigma), nil
}
