package discovery

import (
	"context"

	"github.com/copyleftdev/qmdock/internal/molecule"
)

// Report is a panel run compared against the panel category's reference
// drugs.
type Report struct {
	Panel      string                          `json:"panel"`
	Category   string                          `json:"category"`
	Candidates map[string]*DrugCandidate       `json:"candidates"`
	Metrics    map[string]*BreakthroughMetrics `json:"breakthrough_metrics"`
	Ranking    []string                        `json:"ranking"`
}

// Analyze runs the named targets of agg's panel and compares every
// candidate in the panel's category. Ranking lists targets best first.
func (c *Comparator) Analyze(ctx context.Context, agg *Aggregator, names []string, initial molecule.Coordinates, iterations int) (*Report, error) {
	panel := agg.Panel()
	if _, err := c.references.BestKnown(panel.Category()); err != nil {
		return nil, err
	}

	candidates, err := agg.RunNamed(ctx, names, initial, iterations)
	if err != nil {
		return nil, err
	}
	metrics, err := c.Report(panel.Category(), candidates)
	if err != nil {
		return nil, err
	}

	ranked := Rank(candidates)
	ranking := make([]string, len(ranked))
	for i, d := range ranked {
		ranking[i] = d.Target
	}

	return &Report{
		Panel:      panel.Name(),
		Category:   panel.Category(),
		Candidates: candidates,
		Metrics:    metrics,
		Ranking:    ranking,
	}, nil
}
