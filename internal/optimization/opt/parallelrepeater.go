package opt

import (
	"math"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/par"
	"github.com/copyleftdev/BOREAL/internal/random"
)

// ParallelRepeater runs an inner optimizer from Repeats independent starting
// points in parallel and returns the best result. The first trial starts at
// the supplied x0; the rest start at uniform-random points in the unit box.
type ParallelRepeater struct {
	inner   Optimizer
	Repeats int
}

// NewParallelRepeater wraps inner with repeats restart trials.
func NewParallelRepeater(inner Optimizer, repeats int) *ParallelRepeater {
	if repeats < 1 {
		repeats = 1
	}
	return &ParallelRepeater{inner: inner, Repeats: repeats}
}

// Optimize fans the trials out through the parallel-for primitive. The inner
// optimizer and f must be safe for concurrent calls; every core optimizer
// and acquisition evaluation is. Trials that fail are skipped; if every trial
// fails the first error is returned.
func (p *ParallelRepeater) Optimize(f Func, x0 []float64, bounded bool) ([]float64, error) {
	dim := len(x0)

	type trial struct {
		x   []float64
		val float64
		err error
	}
	trials := make([]trial, p.Repeats)

	par.Loop(0, p.Repeats, func(i int) {
		start := random.Vector(dim)
		if i == 0 {
			start = cloneVec(x0)
		}
		x, err := p.inner.Optimize(f, start, bounded)
		if err != nil {
			trials[i] = trial{err: err}
			return
		}
		val, _ := f(x, false)
		trials[i] = trial{x: x, val: val}
	})

	bestVal := math.Inf(-1)
	var best []float64
	var firstErr error
	for _, t := range trials {
		if t.err != nil {
			if firstErr == nil {
				firstErr = t.err
			}
			continue
		}
		if t.x != nil && t.val > bestVal {
			bestVal = t.val
			best = t.x
		}
	}
	if best == nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, optimization.NewError("all restart trials failed").
			WithComponent("opt").WithOperation("ParallelRepeater.Optimize")
	}
	return best, nil
}
