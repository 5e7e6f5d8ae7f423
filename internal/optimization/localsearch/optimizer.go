// Package localsearch implements a greedy perturb-and-accept refinement of
// candidate coordinates.
package localsearch

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// maxPrealloc bounds the history capacity reserved up front.
const maxPrealloc = 1024

// Optimizer is a memoryless hill-climb. Every iteration perturbs the current
// best coordinates, scores the result, and keeps it only if its energy is
// strictly lower. The loop always runs the full budget.
//
// An Optimizer owns its random stream and runs one search at a time; Best,
// History and Stop may be called from other goroutines.
type Optimizer struct {
	config    optimization.Config
	evaluator *scoring.Evaluator
	rng       *rand.Rand
	logger    *zap.Logger

	mu         sync.Mutex
	bestCoords molecule.Coordinates
	bestEnergy float64
	history    []optimization.PathEntry
	cancel     context.CancelFunc
}

var _ optimization.Optimizer = (*Optimizer)(nil)

// NewOptimizer creates a local search optimizer scoring with evaluator.
func NewOptimizer(evaluator *scoring.Evaluator, config optimization.Config, logger *zap.Logger) (*Optimizer, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Optimizer{
		config:     config,
		evaluator:  evaluator,
		rng:        rand.New(rand.NewSource(seed)),
		logger:     logger.Named("local_search"),
		bestEnergy: math.Inf(1),
	}, nil
}

// Config returns the optimizer's effective configuration.
func (o *Optimizer) Config() optimization.Config {
	return o.config
}

// Optimize runs the search. The best energy starts at +Inf, so the first
// perturbed candidate is always accepted. The only error is ctx.Err() when
// ctx is cancelled between iterations; an uncancelled run never fails.
func (o *Optimizer) Optimize(ctx context.Context, site, initial molecule.Coordinates, iterations int) (*optimization.Result, error) {
	if iterations <= 0 {
		iterations = o.config.Iterations
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancel = cancel
	o.bestCoords = initial.Clone()
	o.bestEnergy = math.Inf(1)
	o.history = make([]optimization.PathEntry, 0, min(iterations, maxPrealloc))
	o.mu.Unlock()

	best := initial.Clone()
	bestEnergy := math.Inf(1)
	initialEnergy := math.Inf(1)

	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candidate := best.Perturb(o.rng, o.config.Sigma)
		res := o.evaluator.Evaluate(site, candidate)

		if i == 0 {
			initialEnergy = res.BindingEnergy
		}

		// Nothing to improve on before the first acceptance.
		improvement := 0.0
		if !math.IsInf(bestEnergy, 1) {
			improvement = bestEnergy - res.BindingEnergy
		}

		entry := optimization.PathEntry{
			Iteration:     i + 1,
			Energy:        res.BindingEnergy,
			Improvement:   improvement,
			Electrostatic: res.Electrostatic,
			VanDerWaals:   res.VanDerWaals,
		}

		accepted := res.BindingEnergy < bestEnergy
		if accepted {
			best = candidate
			bestEnergy = res.BindingEnergy
		}

		o.mu.Lock()
		o.history = append(o.history, entry)
		if accepted {
			o.bestCoords = best
			o.bestEnergy = bestEnergy
		}
		o.mu.Unlock()

		o.logger.Debug("Search iteration",
			zap.Int("iteration", entry.Iteration),
			zap.Float64("energy", entry.Energy),
			zap.Float64("improvement", entry.Improvement),
			zap.Bool("accepted", accepted),
		)
	}

	convergence := optimization.ConvergenceScore(initialEnergy, bestEnergy)

	o.logger.Info("Search completed",
		zap.Int("iterations", iterations),
		zap.Float64("initial_energy", initialEnergy),
		zap.Float64("final_energy", bestEnergy),
		zap.Float64("convergence", convergence),
	)

	return &optimization.Result{
		OptimizedCoordinates: best.Clone(),
		InitialBindingEnergy: initialEnergy,
		FinalBindingEnergy:   bestEnergy,
		Path:                 o.History(),
		ConvergenceScore:     convergence,
		StabilityScore:       convergence,
	}, nil
}

// Best returns the best coordinates and energy of the latest run.
func (o *Optimizer) Best() (molecule.Coordinates, float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bestCoords.Clone(), o.bestEnergy
}

// History returns a copy of the latest run's path.
func (o *Optimizer) History() []optimization.PathEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]optimization.PathEntry(nil), o.history...)
}

// Stop cancels the in-flight run, if any.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}
