package discovery

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
	"github.com/copyleftdev/qmdock/internal/optimization"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

var testScaffold = molecule.Coordinates{
	{0.0, 0.0, 0.1},
	{0.2, 0.1, 0.0},
	{-0.1, 0.2, 0.0},
	{0.1, -0.1, 0.2},
	{-0.2, -0.1, 0.1},
}

func newTestEvaluator(t *testing.T) *scoring.Evaluator {
	t.Helper()
	enc, err := scoring.NewEncoder(scoring.DefaultFeatureWidth)
	require.NoError(t, err)
	return scoring.NewEvaluator(enc)
}

func newTestAggregator(t *testing.T, panel *Panel, seed int64, opts ...AggregatorOption) (*Aggregator, *scoring.Evaluator) {
	t.Helper()
	ev := newTestEvaluator(t)
	agg, err := NewAggregator(ev, panel, optimization.Config{Iterations: 4, Seed: seed}, opts...)
	require.NoError(t, err)
	return agg, ev
}

func TestReferenceTable(t *testing.T) {
	refs := DefaultReferences()

	tests := []struct {
		category string
		want     float64
		wantErr  error
	}{
		{category: "cancer", want: 8.2},
		{category: "covid", want: 7.8},
		{category: "alzheimers", wantErr: errors.ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, err := refs.BestKnown(tt.category)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, []string{"cancer", "covid"}, refs.Categories())
}

func TestReferenceTableIsImmutable(t *testing.T) {
	src := map[string]map[string]float64{"cancer": {"a": 1}}
	refs := NewReferenceTable(src)
	src["cancer"]["a"] = 100

	scores, err := refs.Scores("cancer")
	require.NoError(t, err)
	scores["a"] = 50

	best, err := refs.BestKnown("cancer")
	require.NoError(t, err)
	assert.Equal(t, 1.0, best)
}

func TestPanels(t *testing.T) {
	egfr := EGFRPanel()
	assert.Equal(t, "egfr", egfr.Name())
	assert.Equal(t, "cancer", egfr.Category())
	assert.Equal(t, []string{"C797S", "L858R", "T790M"}, egfr.TargetNames())
	assert.Equal(t, egfr.Targets(), egfr.ResistanceSites())
	assert.Len(t, egfr.OffTarget(), 2)

	spike := SpikePanel()
	assert.Equal(t, []string{"ACE2", "E484K", "N501Y"}, spike.TargetNames())
	assert.Equal(t, egfr.Targets(), spike.ResistanceSites(), "spike resistance is scored on the EGFR mutation sites")

	assert.Len(t, egfr.Reference(), 3)
	assert.Len(t, spike.Reference(), 5)
	assert.Nil(t, NewPanel("kras", "pancreatic", nil, nil, nil).Reference())

	ref := egfr.Reference()
	ref[1] = molecule.Point{9, 9, 9}
	assert.Equal(t, molecule.Point{0.15, 0.1, 0.1}, egfr.Reference()[1])

	sites := egfr.Targets()
	sites["T790M"][0] = molecule.Point{9, 9, 9}
	assert.Equal(t, molecule.Point{0.2, 0.1, 0.1}, egfr.Targets()["T790M"][0])
}

func TestPanelSelect(t *testing.T) {
	p := EGFRPanel()

	got, err := p.Select([]string{"L858R"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	all, err := p.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = p.Select([]string{"L858R", "G12C"})
	assert.ErrorIs(t, err, errors.ErrUnknownTarget)
	assert.Contains(t, err.Error(), "G12C")
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, []string{"egfr", "spike"}, c.Names())

	p, err := c.Panel("spike")
	require.NoError(t, err)
	assert.Equal(t, "covid", p.Category())

	p, err = c.ForCategory("cancer")
	require.NoError(t, err)
	assert.Equal(t, "egfr", p.Name())

	byName, err := c.Panel("egfr")
	require.NoError(t, err)
	assert.Same(t, p, byName, "the catalog builds each panel once")
	assert.NotSame(t, EGFRPanel(), EGFRPanel())

	_, err = c.Panel("kras")
	assert.ErrorIs(t, err, errors.ErrUnknownPanel)
	_, err = c.ForCategory("alzheimers")
	assert.ErrorIs(t, err, errors.ErrUnknownCategory)
}

func TestAggregatorRun(t *testing.T) {
	panel := EGFRPanel()
	agg, ev := newTestAggregator(t, panel, 42)

	got, err := agg.Run(context.Background(), panel.Targets(), testScaffold, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for name, d := range got {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, d.Target)
			assert.Len(t, d.OptimizationHistory, 4)

			var sum float64
			for _, site := range panel.ResistanceSites() {
				sum += scoring.Finite(ev.Evaluate(site, d.OptimizedCoordinates).BindingEnergy)
			}
			assert.InDelta(t, sum/3, d.MutationResistance, 1e-12)

			off := ev.Evaluate(panel.OffTarget(), d.OptimizedCoordinates).BindingEnergy
			assert.InDelta(t, 1-math.Exp(-off), d.SideEffectProfile, 1e-12)

			site := panel.Targets()[name]
			assert.InDelta(t, ev.Evaluate(site, d.OptimizedCoordinates).BindingEnergy, d.BindingScore, 1e-12)
		})
	}
}

func TestAggregatorSpikeResistanceUsesEGFRSites(t *testing.T) {
	agg, ev := newTestAggregator(t, SpikePanel(), 5)

	got, err := agg.RunNamed(context.Background(), []string{"ACE2"}, testScaffold, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := got["ACE2"]
	var sum float64
	for _, site := range EGFRPanel().Targets() {
		sum += ev.Evaluate(site, d.OptimizedCoordinates).BindingEnergy
	}
	assert.InDelta(t, sum/3, d.MutationResistance, 1e-12)
}

func TestAggregatorWorkerCountDoesNotChangeResults(t *testing.T) {
	serial, _ := newTestAggregator(t, EGFRPanel(), 7)
	parallel, _ := newTestAggregator(t, EGFRPanel(), 7, WithWorkers(3))

	a, err := serial.RunNamed(context.Background(), nil, testScaffold, 3)
	require.NoError(t, err)
	b, err := parallel.RunNamed(context.Background(), nil, testScaffold, 3)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestAggregatorRunNamedUnknownTarget(t *testing.T) {
	var calls int
	agg, _ := newTestAggregator(t, EGFRPanel(), 1, WithProgress(func(string) { calls++ }))

	got, err := agg.RunNamed(context.Background(), []string{"T790M", "E484K"}, testScaffold, 2)
	assert.ErrorIs(t, err, errors.ErrUnknownTarget)
	assert.Nil(t, got)
	assert.Zero(t, calls)
}

func TestAggregatorProgress(t *testing.T) {
	done := make(chan string, 3)
	agg, _ := newTestAggregator(t, EGFRPanel(), 1, WithProgress(func(name string) { done <- name }))

	_, err := agg.RunNamed(context.Background(), nil, testScaffold, 1)
	require.NoError(t, err)
	close(done)

	var names []string
	for n := range done {
		names = append(names, n)
	}
	assert.ElementsMatch(t, []string{"T790M", "L858R", "C797S"}, names)
}

func TestAggregatorCancelled(t *testing.T) {
	agg, _ := newTestAggregator(t, EGFRPanel(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := agg.RunNamed(ctx, nil, testScaffold, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

func TestAggregatorCancelStopsRemainingTargets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished []string
	agg, _ := newTestAggregator(t, EGFRPanel(), 1, WithProgress(func(name string) {
		finished = append(finished, name)
		cancel()
	}))

	got, err := agg.RunNamed(ctx, nil, testScaffold, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
	assert.Equal(t, []string{"C797S"}, finished, "targets after the first must not run")
}

func TestNewAggregatorInvalidConfig(t *testing.T) {
	_, err := NewAggregator(newTestEvaluator(t), EGFRPanel(), optimization.Config{Sigma: -1})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestImprovementPercentage(t *testing.T) {
	assert.InDelta(t, 20.0, ImprovementPercentage(9.0, 7.5), 1e-9)
	assert.InDelta(t, -50.0, ImprovementPercentage(4.1, 8.2), 1e-9)
	assert.Zero(t, ImprovementPercentage(3, 0))
}

func TestClinicalPotential(t *testing.T) {
	full := map[string]float64{
		BindingEfficiency: 0.5,
		Stability:         1,
		Safety:            0.5,
		ResistanceProfile: 1,
	}

	got, err := ClinicalPotential(full)
	require.NoError(t, err)
	assert.InDelta(t, 0.4*0.5+0.3+0.2*0.5+0.1, got, 1e-12)

	ones := map[string]float64{BindingEfficiency: 1, Stability: 1, Safety: 1, ResistanceProfile: 1}
	got, err = ClinicalPotential(ones)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)

	for name := range full {
		t.Run("missing "+name, func(t *testing.T) {
			partial := make(map[string]float64)
			for k, v := range full {
				if k != name {
					partial[k] = v
				}
			}
			_, err := ClinicalPotential(partial)
			assert.ErrorIs(t, err, errors.ErrMissingSubScore)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestResistanceAdvantageAndCoverage(t *testing.T) {
	assert.InDelta(t, 0.3, ResistanceAdvantage(0.2), 1e-12)
	assert.Zero(t, ResistanceAdvantage(4.0))
	assert.InDelta(t, 0.4, VariantCoverage(0.8, 0.5), 1e-12)
}

func TestComparatorCompare(t *testing.T) {
	c := NewComparator(DefaultReferences())
	d := &DrugCandidate{
		Target:             "T790M",
		BindingScore:       9.84,
		StabilityScore:     0.2,
		MutationResistance: 0.1,
		SideEffectProfile:  0.9,
	}

	m, err := c.Compare("cancer", d)
	require.NoError(t, err)
	assert.Equal(t, "T790M", m.Target)
	assert.Equal(t, 8.2, m.BestKnown)
	assert.InDelta(t, 20.0, m.ImprovementPercentage, 1e-9)
	want := 0.4*0.984 + 0.3*0.2 + 0.2*0.1 + 0.1*0.99
	assert.InDelta(t, want, m.ClinicalPotential, 1e-12)
	assert.InDelta(t, 0.4, m.ResistanceAdvantage, 1e-12)
	assert.InDelta(t, 0.18, m.VariantCoverage, 1e-12)

	_, err = c.Compare("alzheimers", d)
	assert.ErrorIs(t, err, errors.ErrUnknownCategory)
}

func TestComparatorReport(t *testing.T) {
	c := NewComparator(DefaultReferences())
	candidates := map[string]*DrugCandidate{
		"ACE2":  {Target: "ACE2", BindingScore: 7.8},
		"N501Y": {Target: "N501Y", BindingScore: 3.9},
	}

	report, err := c.Report("covid", candidates)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.InDelta(t, 0.0, report["ACE2"].ImprovementPercentage, 1e-12)
	assert.InDelta(t, -50.0, report["N501Y"].ImprovementPercentage, 1e-12)

	_, err = c.Report("alzheimers", nil)
	assert.ErrorIs(t, err, errors.ErrUnknownCategory)
}

func TestDefaultScaffold(t *testing.T) {
	a := DefaultScaffold()
	require.Len(t, a, 5)
	assert.Equal(t, testScaffold, a)

	a[0] = molecule.Point{1, 1, 1}
	assert.Equal(t, testScaffold, DefaultScaffold())
}

func TestRank(t *testing.T) {
	ranked := Rank(map[string]*DrugCandidate{
		"T790M": {Target: "T790M", BindingScore: 2.0},
		"L858R": {Target: "L858R", BindingScore: 1.0},
		"C797S": {Target: "C797S", BindingScore: 2.0},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, "L858R", ranked[0].Target)
	assert.Equal(t, "C797S", ranked[1].Target)
	assert.Equal(t, "T790M", ranked[2].Target)
	assert.Empty(t, Rank(nil))
}

func TestComparatorAnalyze(t *testing.T) {
	agg, _ := newTestAggregator(t, SpikePanel(), 9)
	c := NewComparator(DefaultReferences())

	report, err := c.Analyze(context.Background(), agg, []string{"ACE2", "E484K"}, testScaffold, 2)
	require.NoError(t, err)

	assert.Equal(t, "spike", report.Panel)
	assert.Equal(t, "covid", report.Category)
	assert.Len(t, report.Candidates, 2)
	require.Len(t, report.Metrics, 2)
	assert.Equal(t, 7.8, report.Metrics["ACE2"].BestKnown)

	require.Len(t, report.Ranking, 2)
	first, second := report.Candidates[report.Ranking[0]], report.Candidates[report.Ranking[1]]
	assert.LessOrEqual(t, first.BindingScore, second.BindingScore)
}

func TestComparatorAnalyzeUnknownCategory(t *testing.T) {
	panel := NewPanel("kras", "pancreatic", EGFRPanel().Targets(), nil, EGFRPanel().OffTarget())
	agg, _ := newTestAggregator(t, panel, 1)

	_, err := NewComparator(DefaultReferences()).Analyze(context.Background(), agg, nil, testScaffold, 1)
	assert.ErrorIs(t, err, errors.ErrUnknownCategory)
}
