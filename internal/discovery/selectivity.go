package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization/localsearch"
)

// Selectivity assessments, from best to worst.
const (
	SelectivityExcellent  = "excellent"
	SelectivityGood       = "good"
	SelectivitySuboptimal = "suboptimal"
)

// SelectivityReport compares a structure refined against a mutant site with
// its binding to the panel's unmutated reference.
type SelectivityReport struct {
	OptimizedCoordinates  molecule.Coordinates `json:"optimized_coordinates"`
	MutantBindingEnergy   float64              `json:"mutant_binding_energy"`
	WildTypeBindingEnergy float64              `json:"wildtype_binding_energy"`
	SelectivityRatio      float64              `json:"selectivity_ratio"`
	Assessment            string               `json:"assessment"`
}

// SelectivityRatio is wildType/mutant, or 0 unless both energies are
// positive.
func SelectivityRatio(mutant, wildType float64) float64 {
	if mutant <= 0 || wildType <= 0 {
		return 0
	}
	return wildType / mutant
}

// AssessSelectivity grades a selectivity ratio.
func AssessSelectivity(ratio float64) string {
	switch {
	case ratio > 1.2:
		return SelectivityExcellent
	case ratio > 1.0:
		return SelectivityGood
	default:
		return SelectivitySuboptimal
	}
}

// Selectivity refines initial against mutant, then scores the refined
// structure against the panel reference. The search uses the aggregator's
// base seed.
func (a *Aggregator) Selectivity(ctx context.Context, mutant, initial molecule.Coordinates, iterations int) (*SelectivityReport, error) {
	wildType := a.panel.reference
	if len(wildType) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "panel %q has no reference structure", a.panel.name).
			WithComponent("aggregator").WithOperation("selectivity")
	}

	opt, err := localsearch.NewOptimizer(a.evaluator, a.config, a.logger.With(zap.String("target", "mutant")))
	if err != nil {
		return nil, errors.Wrap(err, "creating optimizer").WithComponent("aggregator").WithOperation("selectivity")
	}
	res, err := opt.Optimize(ctx, mutant, initial, iterations)
	if err != nil {
		return nil, err
	}

	wt := a.evaluator.Evaluate(wildType, res.OptimizedCoordinates).BindingEnergy
	ratio := SelectivityRatio(res.FinalBindingEnergy, wt)

	a.logger.Info("Selectivity assessed",
		zap.String("panel", a.panel.name),
		zap.Float64("mutant_energy", res.FinalBindingEnergy),
		zap.Float64("wildtype_energy", wt),
		zap.Float64("ratio", ratio),
	)

	return &SelectivityReport{
		OptimizedCoordinates:  res.OptimizedCoordinates,
		MutantBindingEnergy:   res.FinalBindingEnergy,
		WildTypeBindingEnergy: wt,
		SelectivityRatio:      ratio,
		Assessment:            AssessSelectivity(ratio),
	}, nil
}
