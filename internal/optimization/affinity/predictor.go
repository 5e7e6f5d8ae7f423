// Package affinity predicts binding affinity by combining a direct score, a
// nested local search and an electron-density overlap.
package affinity

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// Prediction merges the direct binding result, the nested search's
// stability numbers and the density overlap.
type Prediction struct {
	BindingAffinity        float64 `json:"binding_affinity"`
	Confidence             float64 `json:"confidence_score"`
	ElectronDensityOverlap float64 `json:"electron_density_overlap"`
	OptimizedEnergy        float64 `json:"optimized_energy"`
	StabilityScore         float64 `json:"stability_score"`
	ConvergenceScore       float64 `json:"convergence_score"`
	Electrostatic          float64 `json:"electrostatic_contribution"`
	VanDerWaals            float64 `json:"van_der_waals_contribution"`
}

// Predictor owns its search optimizer, so its random stream is independent
// of any search the caller is running.
type Predictor struct {
	evaluator  *scoring.Evaluator
	search     optimization.Optimizer
	iterations int
	logger     *zap.Logger
}

// NewPredictor creates a predictor. iterations is the nested search budget;
// a non-positive value defers to the optimizer's default.
func NewPredictor(evaluator *scoring.Evaluator, search optimization.Optimizer, iterations int, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{
		evaluator:  evaluator,
		search:     search,
		iterations: iterations,
		logger:     logger.Named("affinity"),
	}
}

// PredictWithSearch scores candidate against site and runs a complete nested
// local search from candidate before computing the density overlap.
//
// The nested search costs a full optimizer run per call. Calling this from
// inside another search loop multiplies the work by that loop's budget.
func (p *Predictor) PredictWithSearch(ctx context.Context, site, candidate molecule.Coordinates) (*Prediction, error) {
	binding := p.evaluator.Evaluate(site, candidate)

	refined, err := p.search.Optimize(ctx, site, candidate, p.iterations)
	if err != nil {
		return nil, err
	}

	overlap := scoring.Overlap(p.evaluator.Density(site), p.evaluator.Density(candidate))

	p.logger.Debug("Predicted affinity",
		zap.Float64("overlap", overlap),
		zap.Float64("optimized_energy", refined.FinalBindingEnergy),
		zap.Float64("stability", refined.StabilityScore),
	)

	return &Prediction{
		BindingAffinity:        overlap,
		Confidence:             binding.Confidence,
		ElectronDensityOverlap: overlap,
		OptimizedEnergy:        refined.FinalBindingEnergy,
		StabilityScore:         refined.StabilityScore,
		ConvergenceScore:       refined.ConvergenceScore,
		Electrostatic:          binding.Electrostatic,
		VanDerWaals:            binding.VanDerWaals,
	}, nil
}
