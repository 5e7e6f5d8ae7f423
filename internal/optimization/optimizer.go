package optimization

import (
	"context"
	"math"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
)

const (
	// DefaultIterations is the search budget used when none is supplied.
	DefaultIterations = 5
	// DefaultSigma is the standard deviation of each coordinate perturbation.
	DefaultSigma = 0.05
)

// Optimizer defines the interface for coordinate refinement algorithms
type Optimizer interface {
	// Optimize refines initial against site for exactly iterations steps.
	// A non-positive iterations uses the configured default.
	Optimize(ctx context.Context, site, initial molecule.Coordinates, iterations int) (*Result, error)

	// Best returns the best coordinates and energy of the latest run
	Best() (molecule.Coordinates, float64)

	// History returns the path of the latest run
	History() []PathEntry

	// Stop cancels an in-flight run
	Stop()
}

// Config contains configuration for an optimizer
type Config struct {
	// Iterations is the default budget for Optimize calls
	Iterations int

	// Sigma is the per-axis perturbation standard deviation
	Sigma float64

	// Seed for the optimizer's own random stream; zero seeds from the clock
	Seed int64
}

// WithDefaults fills zero fields with package defaults.
func (c Config) WithDefaults() Config {
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.Sigma == 0 {
		c.Sigma = DefaultSigma
	}
	return c
}

// Validate rejects values outside their domain.
func (c Config) Validate() error {
	if c.Iterations < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "iterations must be positive, got %d", c.Iterations).
			WithComponent("optimizer")
	}
	if c.Sigma <= 0 || math.IsNaN(c.Sigma) || math.IsInf(c.Sigma, 0) {
		return errors.Wrapf(errors.ErrInvalidConfig, "sigma must be a positive finite number, got %v", c.Sigma).
			WithComponent("optimizer")
	}
	return nil
}

// PathEntry records a single search iteration
type PathEntry struct {
	Iteration     int     `json:"iteration"`
	Energy        float64 `json:"energy"`
	Improvement   float64 `json:"improvement"`
	Electrostatic float64 `json:"electrostatic"`
	VanDerWaals   float64 `json:"van_der_waals"`
}

// Result contains the result of an optimization run
type Result struct {
	OptimizedCoordinates molecule.Coordinates `json:"optimized_coordinates"`
	InitialBindingEnergy float64              `json:"initial_binding_energy"`
	FinalBindingEnergy   float64              `json:"final_binding_energy"`
	Path                 []PathEntry          `json:"optimization_path"`
	ConvergenceScore     float64              `json:"convergence_score"`
	// StabilityScore mirrors ConvergenceScore.
	StabilityScore float64 `json:"stability_score"`
}

// ConvergenceScore is 1 - final/initial, or 0 when initial is zero or not
// finite.
func ConvergenceScore(initial, final float64) float64 {
	if initial == 0 || math.IsInf(initial, 0) || math.IsNaN(initial) {
		return 0
	}
	return 1 - final/initial
}
