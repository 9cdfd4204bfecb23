package optimization

import (
	"time"
)

// Objective is the user-supplied black-box function to maximize. Inputs live
// in the unit box [0,1]^DimIn; rescaling physical coordinates is the caller's
// responsibility. Eval may return an error wrapping ErrBlacklisted to declare
// the input forbidden; the optimizer then records it in the blacklist store
// instead of the observation set.
type Objective interface {
	// DimIn returns the input dimension d.
	DimIn() int

	// DimOut returns the output dimension m.
	DimOut() int

	// Eval evaluates the objective at x and returns a vector observation.
	Eval(x []float64) ([]float64, error)
}

// ObjectiveFunc adapts a plain function (plus declared dimensions) to the
// Objective interface.
type ObjectiveFunc struct {
	In, Out int
	F       func(x []float64) ([]float64, error)
}

func (o ObjectiveFunc) DimIn() int  { return o.In }
func (o ObjectiveFunc) DimOut() int { return o.Out }

func (o ObjectiveFunc) Eval(x []float64) ([]float64, error) { return o.F(x) }

// Aggregator reduces a vector observation to the scalar reward used by
// acquisition functions and best-so-far bookkeeping.
type Aggregator func(y []float64) float64

// FirstElem is the default aggregator: the first component of the observation.
func FirstElem(y []float64) float64 { return y[0] }

// RunState is the read-only snapshot handed to stop criteria and observers
// once per outer iteration, after the surrogate update.
type RunState struct {
	// CurrentIteration counts iterations of the current run; it restarts
	// at zero on every Optimize call.
	CurrentIteration int

	// TotalIterations counts iterations across all runs of this optimizer.
	TotalIterations int

	// Samples, Observations and BlSamples are the accumulated history.
	// Callers must not mutate them.
	Samples      [][]float64
	Observations [][]float64
	BlSamples    [][]float64

	// BestObservation is the observation with the highest aggregated reward
	// seen so far, nil before the first observation.
	BestObservation []float64

	// BestReward is the aggregated reward of BestObservation.
	BestReward float64

	// Elapsed is the wall time since the run started.
	Elapsed time.Duration
}

// StopCriterion decides when the optimization loop terminates. It is invoked
// at least once per outer iteration; returning true ends the run normally.
type StopCriterion interface {
	Stop(s *RunState) bool
}

// Observer is a side-effect-only hook run once per iteration with the
// post-update state. blacklisted reports whether the iteration's candidate
// was routed to the blacklist store.
type Observer func(s *RunState, blacklisted bool)
