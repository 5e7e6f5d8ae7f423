// Package config loads service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/logging"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// Engine holds the scoring and search parameters.
type Engine struct {
	FeatureWidth      int     `env:"ENGINE_FEATURE_WIDTH" envDefault:"3"`
	Sigma             float64 `env:"ENGINE_SIGMA" envDefault:"0.05"`
	Iterations        int     `env:"ENGINE_ITERATIONS" envDefault:"10"`
	PredictIterations int     `env:"ENGINE_PREDICT_ITERATIONS" envDefault:"5"`
	Seed              int64   `env:"ENGINE_SEED" envDefault:"0"`
}

// OptimizerConfig converts the engine settings for a search optimizer.
func (e Engine) OptimizerConfig() optimization.Config {
	return optimization.Config{
		Iterations: e.Iterations,
		Sigma:      e.Sigma,
		Seed:       e.Seed,
	}
}

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
	Engine   Engine
	Analysis struct {
		Workers int           `env:"ANALYSIS_WORKERS" envDefault:"1"`
		JobTTL  time.Duration `env:"ANALYSIS_JOB_TTL" envDefault:"1h"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing environment").WithComponent("config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects engine and analysis settings outside their domain.
func (c *Config) Validate() error {
	switch {
	case c.Engine.FeatureWidth < scoring.DefaultFeatureWidth:
		return invalid("ENGINE_FEATURE_WIDTH must be at least %d, got %d", scoring.DefaultFeatureWidth, c.Engine.FeatureWidth)
	case c.Engine.Sigma <= 0:
		return invalid("ENGINE_SIGMA must be positive, got %v", c.Engine.Sigma)
	case c.Engine.Iterations <= 0:
		return invalid("ENGINE_ITERATIONS must be positive, got %d", c.Engine.Iterations)
	case c.Engine.PredictIterations <= 0:
		return invalid("ENGINE_PREDICT_ITERATIONS must be positive, got %d", c.Engine.PredictIterations)
	case c.Analysis.Workers <= 0:
		return invalid("ANALYSIS_WORKERS must be positive, got %d", c.Analysis.Workers)
	}
	return nil
}

// LoggingConfig returns the settings for logging.NewLogger.
func (c *Config) LoggingConfig() *logging.Config {
	return &logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrInvalidConfig, format, args...).WithComponent("config")
}
