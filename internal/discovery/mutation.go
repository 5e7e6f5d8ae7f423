package discovery

import (
	"math"

	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// Resistance risk levels for a mutation.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// MutationReport describes how a mutation changes an inhibitor's binding.
type MutationReport struct {
	OriginalBindingEnergy float64 `json:"original_binding_energy"`
	MutatedBindingEnergy  float64 `json:"mutated_binding_energy"`
	BindingEnergyChange   float64 `json:"binding_energy_change"`
	StructuralChange      float64 `json:"structural_change_magnitude"`
	ResistanceScore       float64 `json:"resistance_score"`
	ResistanceRisk        string  `json:"resistance_risk"`
}

// MutationImpact scores inhibitor against the original and mutated sites.
// The structural change is the mean absolute difference of the two sites'
// density profiles, the shorter one padded with zeros. The risk level
// follows the structural change alone.
func MutationImpact(evaluator *scoring.Evaluator, original, mutated, inhibitor molecule.Coordinates) *MutationReport {
	before := evaluator.Evaluate(original, inhibitor).BindingEnergy
	after := evaluator.Evaluate(mutated, inhibitor).BindingEnergy

	change := 0.0
	if !math.IsInf(before, 0) && !math.IsInf(after, 0) {
		change = after - before
	}

	structural := densityChange(evaluator.Density(original), evaluator.Density(mutated))

	return &MutationReport{
		OriginalBindingEnergy: before,
		MutatedBindingEnergy:  after,
		BindingEnergyChange:   change,
		StructuralChange:      structural,
		ResistanceScore:       structural * math.Abs(change),
		ResistanceRisk:        mutationRisk(structural),
	}
}

func densityChange(a, b []float64) float64 {
	n := max(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		sum += math.Abs(x - y)
	}
	return sum / float64(n)
}

func mutationRisk(structural float64) string {
	switch {
	case structural > 0.5:
		return RiskHigh
	case structural > 0.2:
		return RiskMedium
	default:
		return RiskLow
	}
}
