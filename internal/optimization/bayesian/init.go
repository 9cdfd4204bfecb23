package bayesian

import (
	"context"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/random"
)

// InitStrategy seeds the sample/observation history before the surrogate is
// first fitted. Strategies evaluate the objective in the unit box and append
// through the optimizer, so blacklist routing applies during initialization
// too.
type InitStrategy interface {
	Init(ctx context.Context, obj optimization.Objective, bo *BOptimizer) error
}

// RandomSampling evaluates the objective at NbSamples uniform-random points
// in [0,1]^d. This is the default strategy.
type RandomSampling struct {
	NbSamples int
}

func (r *RandomSampling) Init(ctx context.Context, obj optimization.Objective, bo *BOptimizer) error {
	n := r.NbSamples
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := bo.evalAndAdd(obj, random.Vector(obj.DimIn())); err != nil {
			return err
		}
	}
	return nil
}

// LatinHypercube evaluates the objective at NbSamples points of a Latin
// hypercube design: each axis is split into NbSamples strata and every
// stratum is hit exactly once, giving better space coverage than plain
// random sampling at the same budget.
type LatinHypercube struct {
	NbSamples int
}

func (l *LatinHypercube) Init(ctx context.Context, obj optimization.Objective, bo *BOptimizer) error {
	n := l.NbSamples
	if n < 1 {
		n = 1
	}
	dim := obj.DimIn()

	points := make([][]float64, n)
	for j := range points {
		points[j] = make([]float64, dim)
	}
	for i := 0; i < dim; i++ {
		perm := random.Perm(n)
		for j := 0; j < n; j++ {
			points[j][i] = (float64(perm[j]) + random.Float64()) / float64(n)
		}
	}

	for _, x := range points {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := bo.evalAndAdd(obj, x); err != nil {
			return err
		}
	}
	return nil
}

// NoInit performs no initial sampling: the run continues from whatever
// history the optimizer already holds.
type NoInit struct{}

func (NoInit) Init(context.Context, optimization.Objective, *BOptimizer) error { return nil }
