package gp

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/optimization/kernels"
)

func testKernel() kernels.Kernel {
	return kernels.NewMatern52Kernel(0.25, 1.0)
}

func scalars(vals ...float64) [][]float64 {
	out := make([][]float64, len(vals))
	for i, v := range vals {
		out[i] = []float64{v}
	}
	return out
}

// TestInterpolation pins the classic noise-free interpolation behavior: the
// posterior passes through the data with vanishing variance.
func TestInterpolation(t *testing.T) {
	gp := NewGP(testKernel())
	samples := scalars(1, 2, 3)
	obs := []float64{5, 10, 5}

	require.NoError(t, gp.Compute(samples, obs, nil))

	for i, x := range samples {
		mu, sigma2, err := gp.Query(x)
		require.NoError(t, err)
		assert.InDelta(t, obs[i], mu, 1.0, "mean at training point %v", x)
		assert.Less(t, sigma2, 1e-10, "variance at training point %v", x)
	}

	// Between points the variance comes back up.
	_, sigma2, err := gp.Query([]float64{1.5})
	require.NoError(t, err)
	assert.Greater(t, sigma2, 1e-6)
}

func TestQueryMatchesMuAndSigma(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.Compute(scalars(1, 2, 3), []float64{5, 10, 5}, nil))

	for x := 0.0; x < 4; x += 0.05 {
		point := []float64{x}
		mu, sigma2, err := gp.Query(point)
		require.NoError(t, err)

		mu2, err := gp.Mu(point)
		require.NoError(t, err)
		sigma2b, err := gp.Sigma2(point)
		require.NoError(t, err)

		assert.Equal(t, mu, mu2, "Mu must equal Query's mean at %v", x)
		assert.Equal(t, sigma2, sigma2b, "Sigma2 must equal Query's variance at %v", x)
	}
}

func TestUninitializedReturnsPrior(t *testing.T) {
	kernel := testKernel()
	gp := NewGP(kernel)
	gp.SetMeanFunc(func([]float64) float64 { return 2.5 })

	x := []float64{0.7}
	mu, sigma2, err := gp.Query(x)
	require.NoError(t, err)
	assert.Equal(t, 2.5, mu)
	assert.Equal(t, kernel.Eval(x, x), sigma2)
}

func TestComputeValidation(t *testing.T) {
	tests := []struct {
		name    string
		samples [][]float64
		obs     []float64
		noise   []float64
	}{
		{"empty", nil, nil, nil},
		{"count mismatch", scalars(1, 2), []float64{5}, nil},
		{"ragged samples", [][]float64{{1}, {1, 2}}, []float64{5, 6}, nil},
		{"noise length", scalars(1, 2), []float64{5, 6}, []float64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gp := NewGP(testKernel())
			err := gp.Compute(tt.samples, tt.obs, tt.noise)
			require.Error(t, err)
			assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))
		})
	}

	t.Run("negative noise", func(t *testing.T) {
		gp := NewGP(testKernel())
		assert.Error(t, gp.Compute(scalars(1), []float64{5}, []float64{-1}))
	})
}

func TestQueryDimensionMismatch(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.Compute(scalars(1, 2), []float64{5, 6}, nil))

	_, _, err := gp.Query([]float64{1, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))

	assert.Error(t, gp.AddSample([]float64{1, 2}, 0, 0))
}

// TestIncrementalMatchesFullCompute runs a random battery: AddSample
// followed by Query must match a from-scratch Compute on the extended data.
// Floating-point accumulation is allowed to push a small fraction of trials
// over the threshold.
func TestIncrementalMatchesFullCompute(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const trials = 50
	failures := 0

	for trial := 0; trial < trials; trial++ {
		n := 30
		samples := make([][]float64, n)
		obs := make([]float64, n)
		for i := 0; i < n; i++ {
			samples[i] = []float64{rng.Float64() * 10}
			obs[i] = rng.Float64() * 10
		}

		kernel := kernels.NewMatern52Kernel(1.0, 1.0)
		inc := NewGP(kernel.Clone())
		require.NoError(t, inc.Compute(samples, obs, nil))

		newX := []float64{rng.Float64() * 10}
		newY := rng.Float64() * 10
		if err := inc.AddSample(newX, newY, 0); err != nil {
			// A duplicate draw can defeat the noise-free extension;
			// that is the documented recompute path, not a failure.
			require.NoError(t, inc.Recompute())
		}

		full := NewGP(kernel.Clone())
		require.NoError(t, full.Compute(
			append(append([][]float64{}, samples...), newX),
			append(append([]float64{}, obs...), newY), nil))

		probe := []float64{rng.Float64() * 10}
		muInc, s2Inc, err := inc.Query(probe)
		require.NoError(t, err)
		muFull, s2Full, err := full.Query(probe)
		require.NoError(t, err)

		if diff(muInc, muFull) > 1e-5 || diff(s2Inc, s2Full) > 1e-5 {
			failures++
		}
	}

	assert.LessOrEqual(t, float64(failures)/trials, 0.1,
		"incremental posterior drifted from full recompute too often")
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// TestIncrementalFasterThanRecompute is statistical: the O(n²) extension
// should beat the O(n³) refit for n well past 50 on a strong majority of
// runs.
func TestIncrementalFasterThanRecompute(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	rng := rand.New(rand.NewSource(12))
	const trials = 20
	wins := 0

	for trial := 0; trial < trials; trial++ {
		n := 120
		samples := make([][]float64, n)
		obs := make([]float64, n)
		for i := 0; i < n; i++ {
			samples[i] = []float64{rng.Float64() * 100}
			obs[i] = rng.NormFloat64()
		}

		gp := NewGP(kernels.NewMatern52Kernel(1.0, 1.0))
		require.NoError(t, gp.Compute(samples, obs, constNoise(n, 1e-6)))

		start := time.Now()
		require.NoError(t, gp.AddSample([]float64{rng.Float64() * 100}, rng.NormFloat64(), 1e-6))
		incremental := time.Since(start)

		start = time.Now()
		require.NoError(t, gp.Recompute())
		full := time.Since(start)

		if incremental < full {
			wins++
		}
	}

	assert.Greater(t, wins, trials*7/10,
		"incremental update should usually beat a full recompute")
}

func constNoise(n int, v float64) []float64 {
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = v
	}
	return noise
}

// TestBlacklistIsolation pins the blacklist contract: a blacklisted point
// zeroes the variance at itself without moving the mean anywhere.
func TestBlacklistIsolation(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.Compute(scalars(1), []float64{5}, nil))

	mu1Before, sigma1Before, err := gp.Query([]float64{1})
	require.NoError(t, err)
	mu2Before, sigma2Before, err := gp.Query([]float64{2})
	require.NoError(t, err)

	gp2 := NewGP(testKernel())
	require.NoError(t, gp2.ComputeWithBlacklist(scalars(1), []float64{5}, nil, scalars(2), nil))

	mu1, sigma1, err := gp2.Query([]float64{1})
	require.NoError(t, err)
	mu2, sigma2, err := gp2.Query([]float64{2})
	require.NoError(t, err)

	assert.Equal(t, mu1Before, mu1, "mean at the training point must not move")
	assert.InDelta(t, sigma1Before, sigma1, 1e-10)
	assert.InDelta(t, mu2Before, mu2, 1e-9, "mean at the blacklisted point must not move")
	assert.Greater(t, sigma2Before, sigma2)
	assert.Less(t, sigma2, 1e-10, "blacklisted point behaves as observed for the variance")
}

func TestAddBlacklistSampleIncremental(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.Compute(scalars(1), []float64{5}, nil))

	muFar, _, err := gp.Query([]float64{3})
	require.NoError(t, err)

	require.NoError(t, gp.AddBlacklistSample([]float64{2}, 0))

	_, sigma2, err := gp.Query([]float64{2})
	require.NoError(t, err)
	assert.Less(t, sigma2, 1e-10)

	muFarAfter, _, err := gp.Query([]float64{3})
	require.NoError(t, err)
	assert.InDelta(t, muFar, muFarAfter, 1e-9, "mean elsewhere must be unaffected")
}

func TestComputeIdempotent(t *testing.T) {
	gp := NewGP(testKernel())
	samples := scalars(1, 2, 3)
	obs := []float64{5, 10, 5}

	require.NoError(t, gp.Compute(samples, obs, nil))
	chol1 := append([]float64(nil), gp.chol.data...)
	alpha1 := append([]float64(nil), gp.alpha...)

	require.NoError(t, gp.Compute(samples, obs, nil))
	assert.Equal(t, chol1, gp.chol.data)
	assert.Equal(t, alpha1, gp.alpha)
}

func TestRecomputeAfterAddSampleIsStable(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.Compute(scalars(1, 2), []float64{5, 10}, constNoise(2, 1e-6)))
	require.NoError(t, gp.AddSample([]float64{3}, 5, 1e-6))

	chol1 := append([]float64(nil), gp.chol.data...)
	alpha1 := append([]float64(nil), gp.alpha...)

	require.NoError(t, gp.Recompute())
	require.Len(t, gp.chol.data, len(chol1))
	for i := range chol1 {
		assert.InDelta(t, chol1[i], gp.chol.data[i], 1e-9)
	}
	for i := range alpha1 {
		assert.InDelta(t, alpha1[i], gp.alpha[i], 1e-7)
	}
}

func TestAddSampleOnEmptyGP(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.AddSample([]float64{0.5}, 3, 1e-6))
	assert.Equal(t, 1, gp.NbSamples())

	mu, _, err := gp.Query([]float64{0.5})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mu, 1e-3)
}

func TestAddSampleAfterBlacklistRefits(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.ComputeWithBlacklist(scalars(1), []float64{5}, nil, scalars(2), nil))
	require.NoError(t, gp.AddSample([]float64{3}, 7, 1e-6))

	assert.Equal(t, 2, gp.NbSamples())
	mu, _, err := gp.Query([]float64{3})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, mu, 1.0)

	_, sigma2, err := gp.Query([]float64{2})
	require.NoError(t, err)
	assert.Less(t, sigma2, 1e-9, "blacklist must survive the refit")
}

func TestConstantMeanFunc(t *testing.T) {
	gp := NewGP(testKernel())
	gp.SetMeanFunc(func([]float64) float64 { return 100 })
	require.NoError(t, gp.Compute(scalars(1, 2), []float64{105, 110}, nil))

	mu, _, err := gp.Query([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 105, mu, 1.0)

	// Far from the data the posterior falls back toward the mean.
	muFar, _, err := gp.Query([]float64{50})
	require.NoError(t, err)
	assert.InDelta(t, 100, muFar, 1.0)
}

func TestReset(t *testing.T) {
	gp := NewGP(testKernel())
	require.NoError(t, gp.Compute(scalars(1), []float64{5}, nil))
	gp.Reset()
	assert.Equal(t, 0, gp.NbSamples())
	assert.Equal(t, -1, gp.DimIn())

	mu, _, err := gp.Query([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, mu)
}
