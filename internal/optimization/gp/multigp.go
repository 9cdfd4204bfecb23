package gp

import (
	"errors"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/optimization/kernels"
	"github.com/copyleftdev/BOREAL/internal/optimization/means"
	"github.com/copyleftdev/BOREAL/internal/optimization/opt"
	"github.com/copyleftdev/BOREAL/internal/par"
)

// MultiGP composes one scalar GP per output dimension behind a shared mean
// function. Each scalar GP models the residual y_i − m_i(x); queries add the
// mean back. Per-output operations are independent and fan out through the
// parallel-for primitive.
type MultiGP struct {
	gps []*GP

	dimIn  int // -1 until known
	dimOut int // -1 until known

	mean        means.Mean
	meanBuilder func(dimOut int) means.Mean
	kernBuilder func() kernels.Kernel
	hpOpt       opt.Optimizer

	observations [][]float64
	blSamples    [][]float64
	blNoise      []float64
}

// NewMultiGP creates a MultiGP. dimIn and dimOut may be -1 when unknown at
// construction; they are then inferred from the first sample. kernBuilder
// provides a fresh kernel per output GP; meanBuilder provides the shared
// mean for a given output dimension.
func NewMultiGP(dimIn, dimOut int, kernBuilder func() kernels.Kernel, meanBuilder func(dimOut int) means.Mean) *MultiGP {
	if meanBuilder == nil {
		meanBuilder = func(d int) means.Mean { return means.NewZero(d) }
	}
	m := &MultiGP{
		dimIn:       dimIn,
		dimOut:      dimOut,
		meanBuilder: meanBuilder,
		kernBuilder: kernBuilder,
	}
	if dimOut > 0 {
		m.resize(dimOut)
	}
	return m
}

func (m *MultiGP) resize(dimOut int) {
	m.dimOut = dimOut
	m.gps = make([]*GP, dimOut)
	for i := range m.gps {
		m.gps[i] = NewGP(m.kernBuilder())
		m.gps[i].SetHyperOptimizer(m.hpOpt)
	}
	m.mean = m.meanBuilder(dimOut)
}

// SetHyperOptimizer installs the hyperparameter optimizer on every output GP,
// current and future. The optimizer must be safe for concurrent use; the
// built-in ones are.
func (m *MultiGP) SetHyperOptimizer(o opt.Optimizer) {
	m.hpOpt = o
	for _, g := range m.gps {
		g.SetHyperOptimizer(o)
	}
}

// adaptDims resizes the model set when the first sample disagrees with the
// configured dimensions, rebuilding the shared mean.
func (m *MultiGP) adaptDims(dimIn, dimOut int) {
	if m.dimIn != dimIn {
		m.dimIn = dimIn
	}
	if m.dimOut != dimOut || len(m.gps) != dimOut {
		m.resize(dimOut)
	}
}

// Compute fits every output GP from samples and vector observations, with
// one shared noise variance per sample (nil means noise-free).
func (m *MultiGP) Compute(samples, observations [][]float64, noise []float64) error {
	return m.ComputeWithBlacklist(samples, observations, noise, nil, nil)
}

// ComputeWithBlacklist additionally carries blacklisted inputs, which raise
// the posterior variance of every output GP.
func (m *MultiGP) ComputeWithBlacklist(samples, observations [][]float64, noise []float64, blSamples [][]float64, blNoise []float64) error {
	const op = "MultiGP.Compute"

	if len(samples) == 0 || len(samples) != len(observations) {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"multi_gp: %s: %d samples vs %d observations", op, len(samples), len(observations))
	}

	m.adaptDims(len(samples[0]), len(observations[0]))

	m.observations = copyVecs(observations)
	m.blSamples = copyVecs(blSamples)
	if blNoise != nil {
		m.blNoise = append([]float64(nil), blNoise...)
	} else {
		m.blNoise = make([]float64, len(blSamples))
	}

	// Residuals per output dimension under the shared mean.
	resid := make([][]float64, m.dimOut)
	for i := range resid {
		resid[i] = make([]float64, len(samples))
	}
	for j, x := range samples {
		if len(observations[j]) != m.dimOut {
			return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
				"multi_gp: %s: observation %d has dim %d, want %d", op, j, len(observations[j]), m.dimOut)
		}
		mv := m.mean.Eval(x, m)
		for i := 0; i < m.dimOut; i++ {
			resid[i][j] = observations[j][i] - mv[i]
		}
	}

	errs := make([]error, m.dimOut)
	par.Loop(0, m.dimOut, func(i int) {
		errs[i] = m.gps[i].ComputeWithBlacklist(samples, resid[i], noise, blSamples, m.blNoise)
	})
	return firstError(errs)
}

// AddSample appends one vector observation, inferring dimensions on first
// use, and extends every output GP incrementally.
func (m *MultiGP) AddSample(x, y []float64, noiseVar float64) error {
	const op = "MultiGP.AddSample"

	if len(m.gps) == 0 || m.dimOut <= 0 {
		m.adaptDims(len(x), len(y))
	} else {
		if m.dimIn != -1 && len(x) != m.dimIn {
			return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
				"multi_gp: %s: sample has dim %d, want %d", op, len(x), m.dimIn)
		}
		if len(y) != m.dimOut {
			return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
				"multi_gp: %s: observation has dim %d, want %d", op, len(y), m.dimOut)
		}
	}
	if m.dimIn == -1 {
		m.dimIn = len(x)
	}

	m.observations = append(m.observations, append([]float64(nil), y...))

	mv := m.mean.Eval(x, m)
	errs := make([]error, m.dimOut)
	par.Loop(0, m.dimOut, func(i int) {
		errs[i] = m.gps[i].AddSample(x, y[i]-mv[i], noiseVar)
	})
	return firstError(errs)
}

// AddBlacklistSample appends a forbidden input to every output GP.
func (m *MultiGP) AddBlacklistSample(b []float64, noiseVar float64) error {
	const op = "MultiGP.AddBlacklistSample"

	if len(m.gps) == 0 {
		return optimization.NewError("model has no output dimension yet").
			WithComponent("multi_gp").WithOperation(op)
	}
	if m.dimIn != -1 && len(b) != m.dimIn {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"multi_gp: %s: sample has dim %d, want %d", op, len(b), m.dimIn)
	}

	m.blSamples = append(m.blSamples, append([]float64(nil), b...))
	m.blNoise = append(m.blNoise, noiseVar)

	errs := make([]error, m.dimOut)
	par.Loop(0, m.dimOut, func(i int) {
		errs[i] = m.gps[i].AddBlacklistSample(b, noiseVar)
	})
	return firstError(errs)
}

// Query returns the stacked posterior mean and per-output variances at x.
// Using Query instead of separate Mu and Sigma2 calls shares the kernel
// evaluations between them.
func (m *MultiGP) Query(x []float64) (mu, sigma2 []float64, err error) {
	if len(m.gps) == 0 {
		return nil, nil, optimization.NewError("model has no output dimension yet").
			WithComponent("multi_gp").WithOperation("MultiGP.Query")
	}

	mu = make([]float64, m.dimOut)
	sigma2 = make([]float64, m.dimOut)
	mv := m.mean.Eval(x, m)

	errs := make([]error, m.dimOut)
	par.Loop(0, m.dimOut, func(i int) {
		qmu, qs2, qerr := m.gps[i].Query(x)
		if qerr != nil {
			errs[i] = qerr
			return
		}
		mu[i] = qmu + mv[i]
		sigma2[i] = qs2
	})
	if err := firstError(errs); err != nil {
		return nil, nil, err
	}
	return mu, sigma2, nil
}

// Mu returns the stacked posterior mean at x; with no samples it reduces to
// the shared mean function.
func (m *MultiGP) Mu(x []float64) ([]float64, error) {
	mu, _, err := m.Query(x)
	return mu, err
}

// Sigma2 returns the stacked per-output posterior variances at x.
func (m *MultiGP) Sigma2(x []float64) ([]float64, error) {
	_, sigma2, err := m.Query(x)
	return sigma2, err
}

// OptimizeHyperparams re-optimizes every output GP's kernel independently.
// Output GPs whose optimization diverges keep their previous
// hyperparameters; the first divergence is reported after all outputs have
// been processed.
func (m *MultiGP) OptimizeHyperparams() error {
	errs := make([]error, len(m.gps))
	par.Loop(0, len(m.gps), func(i int) {
		errs[i] = m.gps[i].OptimizeHyperparams()
	})
	return firstError(errs)
}

// Recompute rebuilds the fitted state. With updateObsMean the shared mean is
// re-applied to the stored observations (required after changing the mean);
// otherwise each output GP refits its stored residuals.
func (m *MultiGP) Recompute(updateObsMean bool) error {
	if len(m.gps) == 0 || m.NbSamples() == 0 {
		return nil
	}
	if updateObsMean {
		samples := m.gps[0].Samples()
		noise := m.gps[0].noise
		return m.ComputeWithBlacklist(copyVecs(samples), m.observations, noise, m.blSamples, m.blNoise)
	}
	errs := make([]error, len(m.gps))
	par.Loop(0, len(m.gps), func(i int) {
		errs[i] = m.gps[i].Recompute()
	})
	return firstError(errs)
}

// MeanFunction returns the shared mean.
func (m *MultiGP) MeanFunction() means.Mean { return m.mean }

// Models returns the per-output scalar GPs.
func (m *MultiGP) Models() []*GP { return m.gps }

// DimIn returns the input dimension, or -1 before the first sample.
func (m *MultiGP) DimIn() int { return m.dimIn }

// DimOut returns the output dimension, or -1 before the first sample.
func (m *MultiGP) DimOut() int { return m.dimOut }

// NbSamples returns the number of training samples.
func (m *MultiGP) NbSamples() int {
	if len(m.gps) == 0 {
		return 0
	}
	return m.gps[0].NbSamples()
}

// Samples returns the training samples. Callers must not mutate them.
func (m *MultiGP) Samples() [][]float64 {
	if len(m.gps) == 0 {
		return nil
	}
	return m.gps[0].Samples()
}

// Observations returns the vector observations. Callers must not mutate them.
func (m *MultiGP) Observations() [][]float64 { return m.observations }

func firstError(errs []error) error {
	// An incremental-update failure wins: the caller must recompute.
	for _, err := range errs {
		if err != nil && errors.Is(err, optimization.ErrIncrementalUpdateFailed) {
			return err
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
