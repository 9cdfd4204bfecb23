// Package bayesian implements the Bayesian optimization control loop: it
// coordinates initialization, surrogate fitting, acquisition maximization,
// objective evaluation and termination around a MultiGP surrogate.
package bayesian

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/optimization/acquisition"
	"github.com/copyleftdev/BOREAL/internal/optimization/gp"
	"github.com/copyleftdev/BOREAL/internal/optimization/kernels"
	"github.com/copyleftdev/BOREAL/internal/optimization/means"
	"github.com/copyleftdev/BOREAL/internal/optimization/opt"
	"github.com/copyleftdev/BOREAL/internal/random"
)

// AcquisitionBuilder constructs the acquisition for one iteration from the
// current surrogate, iteration counter, run state and aggregator.
type AcquisitionBuilder func(model acquisition.Model, iteration int, state *optimization.RunState, agg optimization.Aggregator) acquisition.Function

// Result is what an optimization run hands back: the incumbent and the
// iteration counters. When Optimize returns an error alongside a Result, the
// Result still reflects the best of whatever samples were accumulated.
type Result struct {
	BestSample      []float64
	BestObservation []float64
	BestReward      float64
	Iterations      int
	TotalIterations int
}

// BOptimizer is the classic Bayesian optimization loop. It owns the MultiGP
// surrogate, the sample/observation/blacklist history and the iteration
// counters. A BOptimizer is single-threaded; parallelism lives below it (in
// MultiGP fan-out and parallel restarts) and above it (independent
// optimizers).
type BOptimizer struct {
	params optimization.Params

	model        *gp.MultiGP
	acquiOpt     opt.Optimizer
	acquiBuilder AcquisitionBuilder
	initStrategy InitStrategy
	stops        []optimization.StopCriterion
	observers    []optimization.Observer

	kernBuilder func() kernels.Kernel
	meanBuilder func(dimOut int) means.Mean

	samples      [][]float64
	observations [][]float64
	blSamples    [][]float64

	currentIteration int
	totalIterations  int
	startTime        time.Time

	logger *zap.Logger
}

// Option customizes a BOptimizer at construction time.
type Option func(*BOptimizer)

// WithInnerOptimizer replaces the acquisition optimizer (default CMA-ES).
func WithInnerOptimizer(o opt.Optimizer) Option {
	return func(bo *BOptimizer) { bo.acquiOpt = o }
}

// WithAcquisitionBuilder replaces the per-iteration acquisition constructor
// (default UCB with the configured alpha).
func WithAcquisitionBuilder(b AcquisitionBuilder) Option {
	return func(bo *BOptimizer) { bo.acquiBuilder = b }
}

// WithInit replaces the initialization strategy (default RandomSampling with
// the configured sample count).
func WithInit(s InitStrategy) Option {
	return func(bo *BOptimizer) { bo.initStrategy = s }
}

// WithStop appends a stop criterion. With none configured, MaxIterations
// from the params applies.
func WithStop(s optimization.StopCriterion) Option {
	return func(bo *BOptimizer) { bo.stops = append(bo.stops, s) }
}

// WithObserver appends a per-iteration stats hook.
func WithObserver(o optimization.Observer) Option {
	return func(bo *BOptimizer) { bo.observers = append(bo.observers, o) }
}

// WithKernelBuilder replaces the per-output kernel constructor (default
// Matérn 5/2 shaped by the params).
func WithKernelBuilder(b func() kernels.Kernel) Option {
	return func(bo *BOptimizer) { bo.kernBuilder = b }
}

// WithMeanBuilder replaces the shared mean constructor (default zero mean).
func WithMeanBuilder(b func(dimOut int) means.Mean) Option {
	return func(bo *BOptimizer) { bo.meanBuilder = b }
}

// WithLogger replaces the loop's logger.
func WithLogger(l *zap.Logger) Option {
	return func(bo *BOptimizer) {
		if l != nil {
			bo.logger = l
		}
	}
}

// New creates a BOptimizer from the given params. A non-zero seed reseeds
// the process-wide RNG.
func New(params optimization.Params, opts ...Option) *BOptimizer {
	if params.Seed != 0 {
		random.Seed(params.Seed)
	}

	logger := zap.NewNop()
	if dev, err := zap.NewDevelopment(); err == nil {
		logger = dev
	}

	bo := &BOptimizer{
		params: params,
		kernBuilder: func() kernels.Kernel {
			return kernels.NewMatern52Kernel(params.KernelLengthScale, params.KernelSigma)
		},
		logger: logger.Named("boptimizer"),
	}
	for _, o := range opts {
		o(bo)
	}

	if bo.acquiOpt == nil {
		bo.acquiOpt = opt.NewCmaEs()
	}
	if bo.acquiBuilder == nil {
		alpha := params.UCBAlpha
		bo.acquiBuilder = func(model acquisition.Model, _ int, _ *optimization.RunState, agg optimization.Aggregator) acquisition.Function {
			return acquisition.NewUCB(model, alpha, agg)
		}
	}
	if bo.initStrategy == nil {
		bo.initStrategy = &RandomSampling{NbSamples: params.InitSamples}
	}
	if len(bo.stops) == 0 {
		bo.stops = append(bo.stops, &MaxIterations{N: params.MaxIterations})
	}
	return bo
}

// Optimize runs the Bayesian optimization loop: initialize (when reset),
// fit the surrogate, then iterate acquisition maximization → evaluation →
// incremental surrogate update → periodic hyperparameter re-optimization
// until a stop criterion fires. A nil aggregator defaults to FirstElem.
//
// Dimension mismatches surface immediately. A surrogate that cannot be
// factorized surfaces with the best-so-far Result. Diverged hyperparameter
// optimizations are absorbed: the previous hyperparameters stay.
func (bo *BOptimizer) Optimize(ctx context.Context, obj optimization.Objective, agg optimization.Aggregator, reset bool) (*Result, error) {
	const op = "BOptimizer.Optimize"

	if agg == nil {
		agg = optimization.FirstElem
	}
	bo.startTime = time.Now()
	bo.currentIteration = 0

	if reset {
		bo.samples = nil
		bo.observations = nil
		bo.blSamples = nil
		bo.model = nil
		if err := bo.initStrategy.Init(ctx, obj, bo); err != nil {
			return bo.result(agg), optimization.WrapError(err, "boptimizer: "+op)
		}
	}

	if bo.model == nil {
		bo.model = bo.newModel(obj)
	}
	if len(bo.observations) > 0 {
		if err := bo.computeModel(); err != nil {
			return bo.result(agg), err
		}
	} else if len(bo.blSamples) > 0 {
		// Only blacklisted points so far: they still shape the variance.
		// Rebuild the surrogate so repeated runs do not double-count them.
		bo.model = bo.newModel(obj)
		for _, b := range bo.blSamples {
			if err := bo.model.AddBlacklistSample(b, bo.params.Noise); err != nil {
				return bo.result(agg), optimization.WrapError(err, "boptimizer: "+op)
			}
		}
	}

	bo.logger.Info("starting optimization run",
		zap.Int("initial_samples", len(bo.samples)),
		zap.Int("dim_in", obj.DimIn()),
		zap.Int("dim_out", obj.DimOut()))

	for !bo.stopped(agg) {
		select {
		case <-ctx.Done():
			return bo.result(agg), ctx.Err()
		default:
		}

		state := bo.runState(agg)
		acqui := bo.acquiBuilder(bo.model, bo.currentIteration, state, agg)
		acquiFunc := opt.Func(func(x []float64, _ bool) (float64, []float64) {
			v, err := acqui.Eval(x)
			if err != nil {
				return math.Inf(-1), nil
			}
			return v, nil
		})

		x0 := random.Vector(obj.DimIn())
		xn, err := bo.acquiOpt.Optimize(acquiFunc, x0, true)
		if err != nil {
			return bo.result(agg), optimization.WrapError(err, "boptimizer: "+op)
		}

		y, evalErr := obj.Eval(xn)
		blacklisted := errors.Is(evalErr, optimization.ErrBlacklisted)
		if evalErr != nil && !blacklisted {
			return bo.result(agg), optimization.WrapError(evalErr, "boptimizer: "+op)
		}

		if blacklisted {
			bo.blSamples = append(bo.blSamples, xn)
			err = bo.model.AddBlacklistSample(xn, bo.params.Noise)
		} else {
			bo.samples = append(bo.samples, xn)
			bo.observations = append(bo.observations, y)
			err = bo.model.AddSample(xn, y, bo.params.Noise)
		}
		if err != nil {
			if errors.Is(err, optimization.ErrIncrementalUpdateFailed) ||
				errors.Is(err, optimization.ErrNonPositiveDefinite) {
				bo.logger.Warn("incremental surrogate update failed, recomputing",
					zap.Error(err))
				if cerr := bo.computeModel(); cerr != nil {
					return bo.result(agg), cerr
				}
			} else {
				return bo.result(agg), optimization.WrapError(err, "boptimizer: "+op)
			}
		}

		if bo.params.HPPeriod > 0 && bo.currentIteration%bo.params.HPPeriod == 0 {
			if herr := bo.model.OptimizeHyperparams(); herr != nil {
				// Previous hyperparameters are retained; the run goes on.
				bo.logger.Warn("hyperparameter optimization failed",
					zap.Int("iteration", bo.currentIteration),
					zap.Error(herr))
			}
		}

		state = bo.runState(agg)
		for _, observer := range bo.observers {
			observer(state, blacklisted)
		}

		bo.currentIteration++
		bo.totalIterations++
	}

	res := bo.result(agg)
	bo.logger.Info("optimization run finished",
		zap.Int("iterations", res.Iterations),
		zap.Float64("best_reward", res.BestReward))
	return res, nil
}

// newModel builds a fresh surrogate shaped by the objective's declared
// dimensions, with the configured hyperparameter optimizer installed.
func (bo *BOptimizer) newModel(obj optimization.Objective) *gp.MultiGP {
	model := gp.NewMultiGP(obj.DimIn(), obj.DimOut(), bo.kernBuilder, bo.meanBuilder)
	rpropIters := bo.params.RPROPIterations
	restarts := bo.params.HPRestarts
	if restarts < 1 {
		restarts = 1
	}
	model.SetHyperOptimizer(opt.NewParallelRepeater(opt.NewRprop(rpropIters), restarts))
	return model
}

// computeModel refits the surrogate from the full history, the recovery path
// for failed incremental updates.
func (bo *BOptimizer) computeModel() error {
	noise := constantVec(len(bo.samples), bo.params.Noise)
	blNoise := constantVec(len(bo.blSamples), bo.params.Noise)
	err := bo.model.ComputeWithBlacklist(bo.samples, bo.observations, noise, bo.blSamples, blNoise)
	if err != nil {
		return optimization.WrapError(err, "boptimizer: BOptimizer.computeModel")
	}
	return nil
}

// Model returns the current surrogate, nil before the first run.
func (bo *BOptimizer) Model() *gp.MultiGP { return bo.model }

// Samples returns the accumulated samples. Callers must not mutate them.
func (bo *BOptimizer) Samples() [][]float64 { return bo.samples }

// Observations returns the accumulated observations.
func (bo *BOptimizer) Observations() [][]float64 { return bo.observations }

// BlSamples returns the accumulated blacklisted inputs.
func (bo *BOptimizer) BlSamples() [][]float64 { return bo.blSamples }

// TotalIterations returns the iteration count across all runs.
func (bo *BOptimizer) TotalIterations() int { return bo.totalIterations }

// BestObservation returns the observation with the highest aggregated
// reward, nil when no observation exists. Ties resolve to the first
// occurrence.
func (bo *BOptimizer) BestObservation(agg optimization.Aggregator) []float64 {
	idx := bo.bestIndex(agg)
	if idx < 0 {
		return nil
	}
	return bo.observations[idx]
}

// BestSample returns the sample whose observation has the highest aggregated
// reward, nil when no observation exists. Ties resolve to the first
// occurrence.
func (bo *BOptimizer) BestSample(agg optimization.Aggregator) []float64 {
	idx := bo.bestIndex(agg)
	if idx < 0 {
		return nil
	}
	return bo.samples[idx]
}

func (bo *BOptimizer) bestIndex(agg optimization.Aggregator) int {
	if agg == nil {
		agg = optimization.FirstElem
	}
	best := -1
	bestReward := math.Inf(-1)
	for i, y := range bo.observations {
		if r := agg(y); r > bestReward {
			bestReward = r
			best = i
		}
	}
	return best
}

func (bo *BOptimizer) stopped(agg optimization.Aggregator) bool {
	state := bo.runState(agg)
	for _, s := range bo.stops {
		if s.Stop(state) {
			return true
		}
	}
	return false
}

func (bo *BOptimizer) runState(agg optimization.Aggregator) *optimization.RunState {
	state := &optimization.RunState{
		CurrentIteration: bo.currentIteration,
		TotalIterations:  bo.totalIterations,
		Samples:          bo.samples,
		Observations:     bo.observations,
		BlSamples:        bo.blSamples,
		BestReward:       math.Inf(-1),
		Elapsed:          time.Since(bo.startTime),
	}
	if idx := bo.bestIndex(agg); idx >= 0 {
		state.BestObservation = bo.observations[idx]
		state.BestReward = agg(bo.observations[idx])
	}
	return state
}

func (bo *BOptimizer) result(agg optimization.Aggregator) *Result {
	res := &Result{
		BestReward:      math.Inf(-1),
		Iterations:      bo.currentIteration,
		TotalIterations: bo.totalIterations,
	}
	if idx := bo.bestIndex(agg); idx >= 0 {
		res.BestSample = bo.samples[idx]
		res.BestObservation = bo.observations[idx]
		res.BestReward = agg(bo.observations[idx])
	}
	return res
}

// evalAndAdd evaluates the objective at x during initialization, routing
// blacklisted inputs to the blacklist store.
func (bo *BOptimizer) evalAndAdd(obj optimization.Objective, x []float64) error {
	y, err := obj.Eval(x)
	if errors.Is(err, optimization.ErrBlacklisted) {
		bo.blSamples = append(bo.blSamples, x)
		return nil
	}
	if err != nil {
		return err
	}
	bo.samples = append(bo.samples, x)
	bo.observations = append(bo.observations, y)
	return nil
}

func constantVec(n int, v float64) []float64 {
	vec := make([]float64, n)
	for i := range vec {
		vec[i] = v
	}
	return vec
}
