// Package discovery runs candidate structures across disease panels and
// compares the outcome with known reference drugs.
package discovery

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/optimization/localsearch"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// DrugCandidate is the outcome of refining one structure against one target.
type DrugCandidate struct {
	Target               string                   `json:"target"`
	BindingScore         float64                  `json:"binding_score"`
	StabilityScore       float64                  `json:"stability_score"`
	MutationResistance   float64                  `json:"mutation_resistance"`
	SideEffectProfile    float64                  `json:"side_effect_profile"`
	OptimizedCoordinates molecule.Coordinates     `json:"optimized_coordinates"`
	OptimizationHistory  []optimization.PathEntry `json:"optimization_history"`
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWorkers sets how many targets are refined concurrently.
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger.Named("aggregator")
		}
	}
}

// WithProgress registers fn to be called after each target finishes. fn may
// be called from several goroutines.
func WithProgress(fn func(target string)) AggregatorOption {
	return func(a *Aggregator) {
		a.progress = fn
	}
}

// Aggregator refines a candidate once per panel target and scores each
// refined structure for mutation resistance and off-target binding.
type Aggregator struct {
	evaluator *scoring.Evaluator
	panel     *Panel
	config    optimization.Config
	workers   int
	logger    *zap.Logger
	progress  func(target string)
}

// NewAggregator creates an aggregator over panel. Every target gets its own
// optimizer built from config.
func NewAggregator(evaluator *scoring.Evaluator, panel *Panel, config optimization.Config, opts ...AggregatorOption) (*Aggregator, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a := &Aggregator{
		evaluator: evaluator,
		panel:     panel,
		config:    config,
		workers:   1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Panel returns the aggregator's panel.
func (a *Aggregator) Panel() *Panel { return a.panel }

// RunNamed runs the named panel targets. No work starts if any name is
// unknown. An empty names list runs the whole panel.
func (a *Aggregator) RunNamed(ctx context.Context, names []string, initial molecule.Coordinates, iterations int) (map[string]*DrugCandidate, error) {
	targets, err := a.panel.Select(names)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, targets, initial, iterations)
}

// Run refines initial against every site in targets. Targets are seeded in
// sorted-name order from the configured base seed, so results do not depend
// on the worker count. The first failing target cancels the rest.
func (a *Aggregator) Run(ctx context.Context, targets map[string]molecule.Coordinates, initial molecule.Coordinates, iterations int) (map[string]*DrugCandidate, error) {
	names := sortedKeys(targets)

	base := a.config.Seed
	if base == 0 {
		base = time.Now().UnixNano()
	}

	start := time.Now()
	results := make([]*DrugCandidate, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, name := range names {
		i, name := i, name
		cfg := a.config
		cfg.Seed = base + int64(i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.runTarget(gctx, cfg, name, targets[name], initial, iterations)
			if err != nil {
				return err
			}
			results[i] = res
			if a.progress != nil {
				a.progress(name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*DrugCandidate, len(names))
	for i, name := range names {
		out[name] = results[i]
	}

	a.logger.Info("Multi-target run completed",
		zap.String("panel", a.panel.Name()),
		zap.Int("targets", len(names)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (a *Aggregator) runTarget(ctx context.Context, cfg optimization.Config, name string, site, initial molecule.Coordinates, iterations int) (*DrugCandidate, error) {
	opt, err := localsearch.NewOptimizer(a.evaluator, cfg, a.logger.With(zap.String("target", name)))
	if err != nil {
		return nil, errors.Wrap(err, "creating optimizer").WithComponent("aggregator").WithOperation("run")
	}

	res, err := opt.Optimize(ctx, site, initial, iterations)
	if err != nil {
		return nil, err
	}

	return &DrugCandidate{
		Target:               name,
		BindingScore:         res.FinalBindingEnergy,
		StabilityScore:       res.StabilityScore,
		MutationResistance:   a.resistance(res.OptimizedCoordinates),
		SideEffectProfile:    a.sideEffects(res.OptimizedCoordinates),
		OptimizedCoordinates: res.OptimizedCoordinates,
		OptimizationHistory:  res.Path,
	}, nil
}

// resistance is the mean binding energy of coords against every resistance
// site of the panel, not only the target it was refined for.
func (a *Aggregator) resistance(coords molecule.Coordinates) float64 {
	sites := a.panel.resistanceSites
	if len(sites) == 0 {
		return 0
	}
	energies := make([]float64, 0, len(sites))
	for _, name := range sortedKeys(sites) {
		e := a.evaluator.Evaluate(sites[name], coords).BindingEnergy
		if math.IsInf(e, 0) || math.IsNaN(e) {
			a.logger.Debug("Non-finite resistance energy", zap.String("site", name))
		}
		energies = append(energies, scoring.Finite(e))
	}
	return stat.Mean(energies, nil)
}

// sideEffects maps the off-target binding energy into [0, 1).
func (a *Aggregator) sideEffects(coords molecule.Coordinates) float64 {
	e := a.evaluator.Evaluate(a.panel.offTarget, coords).BindingEnergy
	if math.IsInf(e, 0) || math.IsNaN(e) {
		a.logger.Debug("Non-finite off-target energy", zap.String("site", "off_target"))
	}
	return 1 - math.Exp(-scoring.Finite(e))
}
