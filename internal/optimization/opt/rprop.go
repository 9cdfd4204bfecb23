package opt

import (
	"math"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// Rprop maximizes f by resilient backpropagation (the iRprop- variant): each
// coordinate keeps its own step size, grown when the gradient sign holds and
// shrunk when it flips. Only gradient signs are used, which makes the method
// robust to the badly scaled gradients typical of log-likelihood surfaces.
type Rprop struct {
	// Iterations bounds the number of gradient steps.
	Iterations int

	// Delta0 is the initial per-coordinate step size.
	Delta0 float64

	// DeltaMin and DeltaMax clamp the adaptive step sizes.
	DeltaMin float64
	DeltaMax float64

	// EtaMinus and EtaPlus are the shrink and growth factors.
	EtaMinus float64
	EtaPlus  float64

	// EpsStop stops early once the gradient infinity-norm falls below it.
	// Zero disables the early stop.
	EpsStop float64
}

// NewRprop returns an Rprop optimizer with the standard constants.
func NewRprop(iterations int) *Rprop {
	if iterations < 1 {
		iterations = 300
	}
	return &Rprop{
		Iterations: iterations,
		Delta0:     0.1,
		DeltaMin:   1e-6,
		DeltaMax:   50,
		EtaMinus:   0.5,
		EtaPlus:    1.2,
	}
}

// Optimize runs gradient ascent with per-coordinate adaptive steps. Every
// step calls f with gradient=true; the final candidate check calls it with
// gradient=false. Non-finite values or gradients abort
// with ErrHyperparamDiverged; the best finite iterate seen is still tracked
// internally but a diverged run returns the error so the caller can keep its
// previous state.
func (r *Rprop) Optimize(f Func, x0 []float64, bounded bool) ([]float64, error) {
	dim := len(x0)
	x := cloneVec(x0)
	if bounded {
		clampUnit(x)
	}

	delta := make([]float64, dim)
	prevGrad := make([]float64, dim)
	for i := range delta {
		delta[i] = r.Delta0
	}

	best := cloneVec(x)
	bestVal := math.Inf(-1)

	for iter := 0; iter < r.Iterations; iter++ {
		val, grad := f(x, true)
		if math.IsNaN(val) || math.IsInf(val, 0) || !finiteVec(grad) {
			return nil, optimization.WrapError(optimization.ErrHyperparamDiverged,
				"rprop: non-finite value or gradient")
		}
		if val > bestVal {
			bestVal = val
			copy(best, x)
		}

		maxGrad := 0.0
		for i := 0; i < dim; i++ {
			g := grad[i]
			if a := math.Abs(g); a > maxGrad {
				maxGrad = a
			}
			prod := g * prevGrad[i]
			switch {
			case prod > 0:
				delta[i] = math.Min(delta[i]*r.EtaPlus, r.DeltaMax)
			case prod < 0:
				delta[i] = math.Max(delta[i]*r.EtaMinus, r.DeltaMin)
				// iRprop-: forget the sign after a flip so the next
				// step is not penalized twice.
				g = 0
			}
			if g > 0 {
				x[i] += delta[i]
			} else if g < 0 {
				x[i] -= delta[i]
			}
			prevGrad[i] = g
		}
		if bounded {
			clampUnit(x)
		}
		if r.EpsStop > 0 && maxGrad < r.EpsStop {
			break
		}
	}

	// Final candidate may beat the best recorded iterate.
	if val, _ := f(x, false); val > bestVal && !math.IsNaN(val) {
		copy(best, x)
	}
	return best, nil
}

func finiteVec(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
