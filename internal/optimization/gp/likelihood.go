package gp

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/optimization/opt"
)

const log2Pi = 1.8378770664093453

// LogLikelihood evaluates the log marginal likelihood of the stored training
// data under candidate log-space hyperparameters theta:
//
//	log p(Y | S, θ) = −½ (Y−M)ᵀ α − Σ log Lᵢᵢ − (n/2) log 2π
//
// It is compute-on-demand: a cloned kernel carries θ, so the fitted state is
// never touched. When withGrad is true the gradient w.r.t. θ is returned,
// each component ½ tr((ααᵀ − K⁻¹) ∂K/∂θ) evaluated through column-wise
// back-solves rather than an explicit inverse.
//
// The likelihood is taken over the training block S only; blacklisted inputs
// carry no targets and therefore contribute nothing to it.
func (gp *GP) LogLikelihood(theta []float64, withGrad bool) (float64, []float64, error) {
	const op = "GP.LogLikelihood"

	n := len(gp.samples)
	if n == 0 {
		return 0, nil, optimization.NewError("no samples to evaluate the likelihood on").
			WithComponent("gaussian_process").WithOperation(op)
	}

	kern := gp.kernel.Clone()
	if err := kern.SetLogHyperparameters(theta); err != nil {
		return 0, nil, optimization.WrapError(err, "gaussian_process: "+op)
	}

	K := gp.pool.GetSymDense(n)
	defer gp.pool.PutSymDense(K)
	for i := 0; i < n; i++ {
		K.SetSym(i, i, kern.Eval(gp.samples[i], gp.samples[i])+gp.noise[i])
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, kern.Eval(gp.samples[i], gp.samples[j]))
		}
	}

	chol := newCholFactor()
	if err := chol.factorize(K); err != nil {
		return math.Inf(-1), nil, optimization.WrapError(err, "gaussian_process: "+op)
	}

	resid := make([]float64, n)
	for i, x := range gp.samples {
		resid[i] = gp.observations[i] - gp.meanFunc(x)
	}
	alpha := chol.solveLeading(resid)

	ll := -0.5 * float64(n) * log2Pi
	ll -= chol.logDiagSum()
	for i := range resid {
		ll -= 0.5 * resid[i] * alpha[i]
	}

	if !withGrad {
		return ll, nil, nil
	}

	nParams := len(theta)
	grad := make([]float64, nParams)

	// One ∂K/∂θ evaluation per pair feeds every component.
	dK := make([][]float64, nParams)
	for p := range dK {
		dK[p] = make([]float64, n*n)
	}
	gbuf := make([]float64, nParams)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			kern.GradLogHyper(gp.samples[i], gp.samples[j], gbuf)
			for p := 0; p < nParams; p++ {
				dK[p][i*n+j] = gbuf[p]
				dK[p][j*n+i] = gbuf[p]
			}
		}
	}

	col := make([]float64, n)
	for p := 0; p < nParams; p++ {
		// αᵀ ∂K α term.
		quad := 0.0
		for i := 0; i < n; i++ {
			row := dK[p][i*n : (i+1)*n]
			s := 0.0
			for j := 0; j < n; j++ {
				s += row[j] * alpha[j]
			}
			quad += alpha[i] * s
		}

		// tr(K⁻¹ ∂K) via two triangular solves per column.
		trace := 0.0
		for c := 0; c < n; c++ {
			for r := 0; r < n; r++ {
				col[r] = dK[p][r*n+c]
			}
			w := chol.solveLeading(col)
			trace += w[c]
		}

		grad[p] = 0.5 * (quad - trace)
	}

	return ll, grad, nil
}

// OptimizeHyperparams maximizes the log marginal likelihood over the
// kernel's log-space hyperparameter box using the configured optimizer
// (default: RPROP under a parallel repeater). On success the kernel adopts
// the best θ and the fitted state is rebuilt; on any failure the previous θ
// and fitted state are retained.
func (gp *GP) OptimizeHyperparams() error {
	const op = "GP.OptimizeHyperparams"

	if len(gp.samples) == 0 {
		return nil
	}

	lo, hi := gp.kernel.Bounds()
	theta0 := gp.kernel.LogHyperparameters()
	dim := len(theta0)

	toTheta := func(u []float64) []float64 {
		theta := make([]float64, dim)
		for i := range theta {
			theta[i] = lo[i] + u[i]*(hi[i]-lo[i])
		}
		return theta
	}

	// Infeasible candidates (unfactorizable Gram matrix, NaN likelihood)
	// score a large finite penalty with a zero gradient, so a gradient trial
	// that lands there keeps running and loses to feasible iterates instead
	// of aborting.
	const infeasible = -1e10

	f := opt.Func(func(u []float64, gradient bool) (float64, []float64) {
		val, grad, err := gp.LogLikelihood(toTheta(u), gradient)
		if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
			if gradient {
				return infeasible, make([]float64, dim)
			}
			return infeasible, nil
		}
		if gradient {
			for i := range grad {
				grad[i] *= hi[i] - lo[i]
				if math.IsNaN(grad[i]) || math.IsInf(grad[i], 0) {
					grad[i] = 0
				}
			}
		}
		return val, grad
	})

	u0 := make([]float64, dim)
	for i := range u0 {
		u0[i] = (theta0[i] - lo[i]) / (hi[i] - lo[i])
		u0[i] = math.Max(0, math.Min(1, u0[i]))
	}

	optimizer := gp.hpOpt
	if optimizer == nil {
		restarts := gp.hpRestarts
		if restarts <= 0 {
			restarts = 10
		}
		optimizer = opt.NewParallelRepeater(opt.NewRprop(0), restarts)
	}

	uBest, err := optimizer.Optimize(f, u0, true)
	if err != nil {
		gp.logger.Warn("hyperparameter optimization failed, keeping previous hyperparameters",
			zap.Error(err))
		return optimization.WrapError(optimization.ErrHyperparamDiverged, "gaussian_process: "+op)
	}

	thetaBest := toTheta(uBest)
	llBest, _, err := gp.LogLikelihood(thetaBest, false)
	if err != nil || math.IsNaN(llBest) || math.IsInf(llBest, 0) {
		return optimization.WrapError(optimization.ErrHyperparamDiverged, "gaussian_process: "+op)
	}
	llPrev, _, err := gp.LogLikelihood(theta0, false)
	if err == nil && llPrev >= llBest {
		// Nothing better found; the current fit stands.
		return nil
	}

	if err := gp.kernel.SetLogHyperparameters(thetaBest); err != nil {
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	if err := gp.Recompute(); err != nil {
		// Roll back: the candidate produced an unfactorizable Gram matrix.
		_ = gp.kernel.SetLogHyperparameters(theta0)
		if rerr := gp.Recompute(); rerr != nil {
			return optimization.WrapError(rerr, "gaussian_process: "+op)
		}
		return optimization.WrapError(err, "gaussian_process: "+op)
	}

	gp.logger.Debug("hyperparameters updated",
		zap.Float64s("theta", thetaBest),
		zap.Float64("log_likelihood", llBest))
	return nil
}
