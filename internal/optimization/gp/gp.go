// Package gp implements the Gaussian Process surrogate at the heart of the
// optimizer: a scalar GP with incremental Cholesky updates, a blacklist
// mechanism for forbidden inputs, and marginal-likelihood hyperparameter
// optimization, plus the MultiGP wrapper composing one scalar GP per output.
package gp

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/optimization/kernels"
	"github.com/copyleftdev/BOREAL/internal/optimization/opt"
)

// GP is a scalar-output Gaussian Process surrogate.
//
// The Gram matrix covers the concatenation S ⊕ B of training samples and
// blacklisted samples, in that order; the Cholesky factor spans the whole
// block while the alpha vector is solved against the leading |S| block only.
// Blacklisted inputs therefore raise the posterior variance around them but
// never anchor the posterior mean.
//
// A GP is not safe for concurrent mutation. Concurrent Query calls against a
// quiescent GP are fine.
type GP struct {
	kernel   kernels.Kernel
	meanFunc func([]float64) float64

	dimIn int // -1 until the first sample is seen

	// Training data, in Gram-matrix order.
	samples      [][]float64
	observations []float64
	noise        []float64
	blSamples    [][]float64
	blNoise      []float64

	// Fitted state. chol spans S ⊕ B; alpha spans S.
	chol  *cholFactor
	alpha []float64

	hpOpt      opt.Optimizer
	hpRestarts int

	pool   *MatrixPool
	logger *zap.Logger
}

// NewGP creates an unfitted GP with a zero mean function.
func NewGP(kernel kernels.Kernel) *GP {
	logger := zap.NewNop()
	if dev, err := zap.NewDevelopment(); err == nil {
		logger = dev
	}
	return &GP{
		kernel:   kernel,
		meanFunc: zeroMean,
		dimIn:    -1,
		chol:     newCholFactor(),
		pool:     NewMatrixPool(),
		logger:   logger.Named("gaussian_process"),
	}
}

// SetMeanFunc replaces the mean function. The caller must Recompute
// afterwards if the GP is already fitted.
func (gp *GP) SetMeanFunc(m func([]float64) float64) {
	if m == nil {
		m = zeroMean
	}
	gp.meanFunc = m
}

// SetHyperOptimizer replaces the optimizer used by OptimizeHyperparams.
func (gp *GP) SetHyperOptimizer(o opt.Optimizer) { gp.hpOpt = o }

// SetHPRestarts sets the number of parallel restarts used by the default
// hyperparameter optimizer. Ignored when a custom optimizer is set.
func (gp *GP) SetHPRestarts(n int) { gp.hpRestarts = n }

// SetLogger replaces the GP's logger.
func (gp *GP) SetLogger(l *zap.Logger) {
	if l != nil {
		gp.logger = l
	}
}

// Kernel returns the GP's kernel.
func (gp *GP) Kernel() kernels.Kernel { return gp.kernel }

// NbSamples returns the number of training samples (blacklist excluded).
func (gp *GP) NbSamples() int { return len(gp.samples) }

// DimIn returns the input dimension, or -1 before any sample is seen.
func (gp *GP) DimIn() int { return gp.dimIn }

// Samples returns the training samples. Callers must not mutate them.
func (gp *GP) Samples() [][]float64 { return gp.samples }

// Observations returns the training targets. Callers must not mutate them.
func (gp *GP) Observations() []float64 { return gp.observations }

// BlSamples returns the blacklisted samples. Callers must not mutate them.
func (gp *GP) BlSamples() [][]float64 { return gp.blSamples }

// Reset returns the GP to the uninitialised state, keeping kernel and mean.
func (gp *GP) Reset() {
	gp.samples = nil
	gp.observations = nil
	gp.noise = nil
	gp.blSamples = nil
	gp.blNoise = nil
	gp.chol = newCholFactor()
	gp.alpha = nil
	gp.dimIn = -1
}

// Compute establishes the fitted state from samples and observations with
// per-sample noise variances. A nil noise slice means noise-free.
func (gp *GP) Compute(samples [][]float64, observations, noise []float64) error {
	return gp.ComputeWithBlacklist(samples, observations, noise, nil, nil)
}

// ComputeWithBlacklist establishes the fitted state over S ⊕ B. Blacklisted
// samples contribute rows and columns to the Gram matrix (raising posterior
// variance near them) but no training targets.
func (gp *GP) ComputeWithBlacklist(samples [][]float64, observations, noise []float64, blSamples [][]float64, blNoise []float64) error {
	const op = "GP.Compute"

	if len(samples) == 0 || len(samples) != len(observations) {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gaussian_process: %s: %d samples vs %d observations", op, len(samples), len(observations))
	}
	dim := len(samples[0])
	for _, x := range samples {
		if len(x) != dim {
			return optimization.WrapError(optimization.ErrDimensionMismatch,
				"gaussian_process: "+op+": ragged sample dimensions")
		}
	}
	for _, b := range blSamples {
		if len(b) != dim {
			return optimization.WrapError(optimization.ErrDimensionMismatch,
				"gaussian_process: "+op+": ragged blacklist dimensions")
		}
	}
	noise, err := normalizeNoise(noise, len(samples), op)
	if err != nil {
		return err
	}
	blNoise, err = normalizeNoise(blNoise, len(blSamples), op)
	if err != nil {
		return err
	}

	gp.dimIn = dim
	gp.samples = copyVecs(samples)
	gp.observations = append([]float64(nil), observations...)
	gp.noise = noise
	gp.blSamples = copyVecs(blSamples)
	gp.blNoise = blNoise

	return gp.refit()
}

// Recompute rebuilds the factorization and alpha from the stored data with
// the current kernel and mean. Used after hyperparameter changes and as the
// recovery path when an incremental update fails.
func (gp *GP) Recompute() error {
	if len(gp.samples) == 0 && len(gp.blSamples) == 0 {
		return nil
	}
	return gp.refit()
}

func (gp *GP) refit() error {
	n := len(gp.samples) + len(gp.blSamples)
	K := gp.pool.GetSymDense(n)
	defer gp.pool.PutSymDense(K)
	gp.buildGram(K, gp.kernel)

	if err := gp.chol.factorize(K); err != nil {
		gp.logger.Warn("Gram matrix factorization failed",
			zap.Int("samples", len(gp.samples)),
			zap.Int("blacklisted", len(gp.blSamples)),
			zap.Error(err))
		return optimization.WrapError(err, "gaussian_process: GP.refit")
	}
	gp.refreshAlpha()

	gp.logger.Debug("Fitted GP model",
		zap.Int("samples", len(gp.samples)),
		zap.Int("blacklisted", len(gp.blSamples)),
		zap.Int("dim_in", gp.dimIn))
	return nil
}

// buildGram fills K over the concatenated inputs S ⊕ B using the given
// kernel, adding per-sample noise on the diagonal.
func (gp *GP) buildGram(K *mat.SymDense, kern kernels.Kernel) {
	z := gp.inputs()
	noise := gp.noiseVec()
	n := len(z)
	for i := 0; i < n; i++ {
		K.SetSym(i, i, kern.Eval(z[i], z[i])+noise[i])
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, kern.Eval(z[i], z[j]))
		}
	}
}

// refreshAlpha solves the leading |S| block for the mean-subtracted targets.
func (gp *GP) refreshAlpha() {
	m := len(gp.samples)
	resid := make([]float64, m)
	for i, x := range gp.samples {
		resid[i] = gp.observations[i] - gp.meanFunc(x)
	}
	gp.alpha = gp.chol.solveLeading(resid)
}

// AddSample appends one observation and advances the fitted state by a
// rank-one Cholesky extension in O(n²). If the extension pivot is not
// positive the sample is kept but the factor is stale:
// ErrIncrementalUpdateFailed is returned and the caller must Recompute.
//
// When blacklisted samples are present a full refit is performed instead,
// preserving the S-before-B ordering of the Gram matrix.
func (gp *GP) AddSample(x []float64, y, noiseVar float64) error {
	const op = "GP.AddSample"

	if gp.dimIn == -1 {
		gp.dimIn = len(x)
	} else if len(x) != gp.dimIn {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gaussian_process: %s: sample has dim %d, want %d", op, len(x), gp.dimIn)
	}
	if noiseVar < 0 {
		return optimization.NewErrorf("negative noise variance %v", noiseVar).
			WithComponent("gaussian_process").WithOperation(op)
	}

	wasEmpty := len(gp.samples) == 0

	if len(gp.blSamples) > 0 {
		// A training sample must slot in before the blacklist block, so
		// the incremental path does not apply.
		gp.appendSample(x, y, noiseVar)
		return gp.refit()
	}

	if wasEmpty {
		gp.appendSample(x, y, noiseVar)
		return gp.refit()
	}

	row := make([]float64, len(gp.samples))
	for i, s := range gp.samples {
		row[i] = gp.kernel.Eval(x, s)
	}
	diag := gp.kernel.Eval(x, x) + noiseVar

	gp.appendSample(x, y, noiseVar)
	if err := gp.chol.extend(row, diag); err != nil {
		gp.logger.Warn("incremental update failed, recompute required",
			zap.Int("samples", len(gp.samples)))
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	gp.refreshAlpha()
	return nil
}

// AddBlacklistSample appends a forbidden input. It extends the factor by one
// row/column like AddSample but contributes no training target, so alpha is
// untouched: only the posterior variance near b changes.
func (gp *GP) AddBlacklistSample(b []float64, noiseVar float64) error {
	const op = "GP.AddBlacklistSample"

	if gp.dimIn == -1 {
		gp.dimIn = len(b)
	} else if len(b) != gp.dimIn {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gaussian_process: %s: sample has dim %d, want %d", op, len(b), gp.dimIn)
	}

	wasEmpty := gp.chol.size() == 0

	z := gp.inputs()
	row := make([]float64, len(z))
	for i, s := range z {
		row[i] = gp.kernel.Eval(b, s)
	}
	diag := gp.kernel.Eval(b, b) + noiseVar

	gp.blSamples = append(gp.blSamples, append([]float64(nil), b...))
	gp.blNoise = append(gp.blNoise, noiseVar)

	if wasEmpty {
		return gp.refit()
	}
	if err := gp.chol.extend(row, diag); err != nil {
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	return nil
}

// Query returns the posterior predictive mean and variance at x. An
// uninitialised GP answers with the prior: μ = m(x), σ² = k(x,x). The
// variance is clamped to be non-negative.
func (gp *GP) Query(x []float64) (mu, sigma2 float64, err error) {
	const op = "GP.Query"

	if gp.dimIn != -1 && len(x) != gp.dimIn {
		return 0, 0, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gaussian_process: %s: query has dim %d, want %d", op, len(x), gp.dimIn)
	}

	prior := gp.kernel.Eval(x, x)
	if gp.chol.size() == 0 {
		return gp.meanFunc(x), prior, nil
	}

	z := gp.inputs()
	kstar := make([]float64, len(z))
	for i, s := range z {
		kstar[i] = gp.kernel.Eval(x, s)
	}

	mu = gp.meanFunc(x)
	for i := range gp.alpha {
		mu += kstar[i] * gp.alpha[i]
	}

	v := gp.chol.forwardSolve(kstar)
	sigma2 = prior
	for _, w := range v {
		sigma2 -= w * w
	}
	if sigma2 < 0 {
		sigma2 = 0
	}
	return mu, sigma2, nil
}

// Mu returns the posterior mean at x. It equals the first component of Query.
func (gp *GP) Mu(x []float64) (float64, error) {
	mu, _, err := gp.Query(x)
	return mu, err
}

// Sigma2 returns the posterior variance at x. It equals the second component
// of Query.
func (gp *GP) Sigma2(x []float64) (float64, error) {
	_, sigma2, err := gp.Query(x)
	return sigma2, err
}

func (gp *GP) appendSample(x []float64, y, noiseVar float64) {
	gp.samples = append(gp.samples, append([]float64(nil), x...))
	gp.observations = append(gp.observations, y)
	gp.noise = append(gp.noise, noiseVar)
}

// inputs returns the concatenated S ⊕ B input list in Gram-matrix order.
func (gp *GP) inputs() [][]float64 {
	if len(gp.blSamples) == 0 {
		return gp.samples
	}
	z := make([][]float64, 0, len(gp.samples)+len(gp.blSamples))
	z = append(z, gp.samples...)
	z = append(z, gp.blSamples...)
	return z
}

func (gp *GP) noiseVec() []float64 {
	if len(gp.blNoise) == 0 {
		return gp.noise
	}
	nv := make([]float64, 0, len(gp.noise)+len(gp.blNoise))
	nv = append(nv, gp.noise...)
	nv = append(nv, gp.blNoise...)
	return nv
}

func normalizeNoise(noise []float64, n int, op string) ([]float64, error) {
	if noise == nil {
		return make([]float64, n), nil
	}
	if len(noise) != n {
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gaussian_process: %s: %d noise entries for %d samples", op, len(noise), n)
	}
	for _, v := range noise {
		if v < 0 || math.IsNaN(v) {
			return nil, optimization.NewErrorf("invalid noise variance %v", v).
				WithComponent("gaussian_process").WithOperation(op)
		}
	}
	return append([]float64(nil), noise...), nil
}

func copyVecs(vs [][]float64) [][]float64 {
	if vs == nil {
		return nil
	}
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = append([]float64(nil), v...)
	}
	return out
}

// zeroMean is the default mean function that always returns zero.
func zeroMean(x []float64) float64 {
	return 0.0
}
