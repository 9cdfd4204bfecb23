package optimization

// Params is the flat option record recognized by the optimization core. The
// zero value is not useful; start from DefaultParams and override fields.
type Params struct {
	// InitSamples is the number of initial random samples (init.nb_samples).
	InitSamples int

	// Noise is the default observation-noise variance applied to every
	// sample and blacklisted sample (bayes_opt.noise).
	Noise float64

	// HPPeriod is the hyperparameter re-optimization cadence in iterations;
	// zero or negative disables it (bayes_opt.hp_period).
	HPPeriod int

	// MaxIterations bounds the default stop criterion.
	MaxIterations int

	// GridBins is the grid resolution per axis for grid search
	// (opt_gridsearch.bins).
	GridBins int

	// UCBAlpha is the UCB exploration weight (acqui_ucb.alpha).
	UCBAlpha float64

	// KernelSigma and KernelLengthScale shape the default Matérn 5/2 kernel
	// (kernel.sigma, kernel.l).
	KernelSigma       float64
	KernelLengthScale float64

	// HPRestarts is the number of parallel restarts for hyperparameter
	// optimization.
	HPRestarts int

	// RPROPIterations bounds the gradient-based hyperparameter optimizer.
	RPROPIterations int

	// Seed seeds the process-wide RNG when non-zero.
	Seed int64
}

// DefaultParams returns the recognized defaults.
func DefaultParams() Params {
	return Params{
		InitSamples:       10,
		Noise:             1e-6,
		HPPeriod:          5,
		MaxIterations:     190,
		GridBins:          20,
		UCBAlpha:          0.5,
		KernelSigma:       1.0,
		KernelLengthScale: 0.25,
		HPRestarts:        10,
		RPROPIterations:   300,
	}
}
