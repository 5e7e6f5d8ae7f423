package discovery

import (
	"math"

	"github.com/copyleftdev/qmdock/internal/errors"
)

// Sub-score names and weights for ClinicalPotential.
const (
	BindingEfficiency = "binding_efficiency"
	Stability         = "stability"
	Safety            = "safety"
	ResistanceProfile = "resistance_profile"

	// TypicalResistance is the resistance level of existing drugs.
	TypicalResistance = 0.5
)

var clinicalWeights = map[string]float64{
	BindingEfficiency: 0.4,
	Stability:         0.3,
	Safety:            0.2,
	ResistanceProfile: 0.1,
}

// BreakthroughMetrics compares one candidate against its category's best
// known drug.
type BreakthroughMetrics struct {
	Target                string  `json:"target"`
	BestKnown             float64 `json:"best_known"`
	ImprovementPercentage float64 `json:"improvement_percentage"`
	ClinicalPotential     float64 `json:"clinical_potential"`
	ResistanceAdvantage   float64 `json:"resistance_advantage"`
	VariantCoverage       float64 `json:"variant_coverage"`
}

// Comparator scores candidates against a reference table.
type Comparator struct {
	references *ReferenceTable
}

// NewComparator creates a comparator reading from references.
func NewComparator(references *ReferenceTable) *Comparator {
	return &Comparator{references: references}
}

// References returns the table the comparator reads.
func (c *Comparator) References() *ReferenceTable { return c.references }

// ImprovementPercentage is the relative change of score over bestKnown, in
// percent. A zero bestKnown yields 0.
func ImprovementPercentage(score, bestKnown float64) float64 {
	if bestKnown == 0 {
		return 0
	}
	return (score - bestKnown) / bestKnown * 100
}

// SubScores derives the four clinical sub-scores of a candidate.
func SubScores(d *DrugCandidate) map[string]float64 {
	return map[string]float64{
		BindingEfficiency: d.BindingScore / 10,
		Stability:         d.StabilityScore,
		Safety:            1 - d.SideEffectProfile,
		ResistanceProfile: 1 - d.MutationResistance/10,
	}
}

// ClinicalPotential is the weighted sum of the four sub-scores. Every
// sub-score must be present; missing ones are reported, not defaulted.
func ClinicalPotential(scores map[string]float64) (float64, error) {
	var total float64
	for _, name := range sortedKeys(clinicalWeights) {
		v, ok := scores[name]
		if !ok {
			return 0, errors.Wrapf(errors.ErrMissingSubScore, "%q", name).WithComponent("comparator")
		}
		total += clinicalWeights[name] * v
	}
	return total, nil
}

// ResistanceAdvantage is how far resistance falls below TypicalResistance.
func ResistanceAdvantage(resistance float64) float64 {
	return math.Max(0, TypicalResistance-resistance)
}

// VariantCoverage estimates reach across viral variants.
func VariantCoverage(stability, resistance float64) float64 {
	return stability * (1 - resistance)
}

// Compare scores d against the best known drug in category.
func (c *Comparator) Compare(category string, d *DrugCandidate) (*BreakthroughMetrics, error) {
	best, err := c.references.BestKnown(category)
	if err != nil {
		return nil, err
	}
	potential, err := ClinicalPotential(SubScores(d))
	if err != nil {
		return nil, err
	}
	return &BreakthroughMetrics{
		Target:                d.Target,
		BestKnown:             best,
		ImprovementPercentage: ImprovementPercentage(d.BindingScore, best),
		ClinicalPotential:     potential,
		ResistanceAdvantage:   ResistanceAdvantage(d.MutationResistance),
		VariantCoverage:       VariantCoverage(d.StabilityScore, d.MutationResistance),
	}, nil
}

// Report compares every candidate of a multi-target run, keyed by target.
func (c *Comparator) Report(category string, candidates map[string]*DrugCandidate) (map[string]*BreakthroughMetrics, error) {
	if _, err := c.references.BestKnown(category); err != nil {
		return nil, err
	}
	out := make(map[string]*BreakthroughMetrics, len(candidates))
	for _, name := range sortedKeys(candidates) {
		m, err := c.Compare(category, candidates[name])
		if err != nil {
			return nil, err
		}
		out[name] = m
	}
	return out, nil
}
