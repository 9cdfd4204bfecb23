package config

import (
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		InitSamples       int     `env:"OPT_INIT_SAMPLES" envDefault:"10"`
		Noise             float64 `env:"OPT_NOISE" envDefault:"1e-6"`
		HPPeriod          int     `env:"OPT_HP_PERIOD" envDefault:"5"`
		MaxIterations     int     `env:"OPT_MAX_ITERATIONS" envDefault:"190"`
		GridBins          int     `env:"OPT_GRID_BINS" envDefault:"20"`
		UCBAlpha          float64 `env:"OPT_UCB_ALPHA" envDefault:"0.5"`
		KernelSigma       float64 `env:"OPT_KERNEL_SIGMA" envDefault:"1.0"`
		KernelLengthScale float64 `env:"OPT_KERNEL_LENGTH_SCALE" envDefault:"0.25"`
		HPRestarts        int     `env:"OPT_HP_RESTARTS" envDefault:"10"`
		RPROPIterations   int     `env:"OPT_RPROP_ITERATIONS" envDefault:"300"`
		Seed              int64   `env:"OPT_SEED" envDefault:"0"`
		WorkerCount       int     `env:"OPT_WORKER_COUNT" envDefault:"0"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// Params maps the optimization section onto the core option record.
func (c *Config) Params() optimization.Params {
	return optimization.Params{
		InitSamples:       c.Optimization.InitSamples,
		Noise:             c.Optimization.Noise,
		HPPeriod:          c.Optimization.HPPeriod,
		MaxIterations:     c.Optimization.MaxIterations,
		GridBins:          c.Optimization.GridBins,
		UCBAlpha:          c.Optimization.UCBAlpha,
		KernelSigma:       c.Optimization.KernelSigma,
		KernelLengthScale: c.Optimization.KernelLengthScale,
		HPRestarts:        c.Optimization.HPRestarts,
		RPROPIterations:   c.Optimization.RPROPIterations,
		Seed:              c.Optimization.Seed,
	}
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
