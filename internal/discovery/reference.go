package discovery

import (
	"sort"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
)

// ReferenceTable maps a disease category to known drugs and their binding
// scores. It is read-only after construction.
type ReferenceTable struct {
	scores map[string]map[string]float64
}

// NewReferenceTable copies scores into a new table.
func NewReferenceTable(scores map[string]map[string]float64) *ReferenceTable {
	t := &ReferenceTable{scores: make(map[string]map[string]float64, len(scores))}
	for category, drugs := range scores {
		c := make(map[string]float64, len(drugs))
		for name, score := range drugs {
			c[name] = score
		}
		t.scores[category] = c
	}
	return t
}

// DefaultReferences returns the built-in oncology and antiviral reference
// scores.
func DefaultReferences() *ReferenceTable {
	return NewReferenceTable(map[string]map[string]float64{
		"cancer": {
			"osimertinib": 8.2,
			"rociletinib": 7.9,
			"olmutinib":   7.5,
		},
		"covid": {
			"paxlovid":     7.8,
			"remdesivir":   6.9,
			"molnupiravir": 6.5,
		},
	})
}

// BestKnown returns the highest reference score in category.
func (t *ReferenceTable) BestKnown(category string) (float64, error) {
	drugs, ok := t.scores[category]
	if !ok || len(drugs) == 0 {
		return 0, errors.Wrapf(errors.ErrUnknownCategory, "category %q", category).
			WithComponent("reference_table")
	}
	first := true
	var best float64
	for _, score := range drugs {
		if first || score > best {
			best = score
			first = false
		}
	}
	return best, nil
}

// Scores returns a copy of the drug scores for category.
func (t *ReferenceTable) Scores(category string) (map[string]float64, error) {
	drugs, ok := t.scores[category]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownCategory, "category %q", category).
			WithComponent("reference_table")
	}
	out := make(map[string]float64, len(drugs))
	for name, score := range drugs {
		out[name] = score
	}
	return out, nil
}

// Categories lists the table's categories in sorted order.
func (t *ReferenceTable) Categories() []string {
	return sortedKeys(t.scores)
}

// Panel is a fixed set of binding targets for one disease, with the sites
// used to score mutation resistance and the off-target points used for the
// side-effect estimate.
//
// ResistanceSites is usually the panel's own targets. The spike panel keeps
// scoring resistance against the EGFR mutation sites, as the reference
// analysis does.
//
// A panel may also carry the unmutated structure of its protein, which
// selectivity and mutation-impact analyses compare against.
type Panel struct {
	name            string
	category        string
	targets         map[string]molecule.Coordinates
	resistanceSites map[string]molecule.Coordinates
	offTarget       molecule.Coordinates
	reference       molecule.Coordinates
}

// NewPanel copies its inputs into an immutable panel. A nil resistance map
// means the targets themselves.
func NewPanel(name, category string, targets, resistance map[string]molecule.Coordinates, offTarget molecule.Coordinates) *Panel {
	if resistance == nil {
		resistance = targets
	}
	return &Panel{
		name:            name,
		category:        category,
		targets:         cloneSites(targets),
		resistanceSites: cloneSites(resistance),
		offTarget:       offTarget.Clone(),
	}
}

// Name returns the panel name.
func (p *Panel) Name() string { return p.name }

// Category returns the reference category the panel is compared in.
func (p *Panel) Category() string { return p.category }

// TargetNames returns the target names in sorted order.
func (p *Panel) TargetNames() []string { return sortedKeys(p.targets) }

// Targets returns a copy of the target sites.
func (p *Panel) Targets() map[string]molecule.Coordinates { return cloneSites(p.targets) }

// ResistanceSites returns a copy of the sites averaged into mutation
// resistance.
func (p *Panel) ResistanceSites() map[string]molecule.Coordinates {
	return cloneSites(p.resistanceSites)
}

// OffTarget returns a copy of the off-target points.
func (p *Panel) OffTarget() molecule.Coordinates { return p.offTarget.Clone() }

// WithReference returns a copy of p whose unmutated structure is ref.
func (p *Panel) WithReference(ref molecule.Coordinates) *Panel {
	out := *p
	out.targets = cloneSites(p.targets)
	out.resistanceSites = cloneSites(p.resistanceSites)
	out.offTarget = p.offTarget.Clone()
	out.reference = ref.Clone()
	return &out
}

// Reference returns a copy of the unmutated structure, or nil when the panel
// has none.
func (p *Panel) Reference() molecule.Coordinates { return p.reference.Clone() }

// Select returns the named subset of the panel's targets. Any unknown name
// fails the whole selection.
func (p *Panel) Select(names []string) (map[string]molecule.Coordinates, error) {
	if len(names) == 0 {
		return p.Targets(), nil
	}
	out := make(map[string]molecule.Coordinates, len(names))
	for _, name := range names {
		site, ok := p.targets[name]
		if !ok {
			return nil, errors.Wrapf(errors.ErrUnknownTarget, "target %q is not in panel %q", name, p.name).
				WithComponent("panel")
		}
		out[name] = site.Clone()
	}
	return out, nil
}

func offTargetPoints() molecule.Coordinates {
	return molecule.Coordinates{
		{0.1, 0.1, 0.1},
		{-0.1, -0.1, -0.1},
	}
}

func egfrMutations() map[string]molecule.Coordinates {
	return map[string]molecule.Coordinates{
		"T790M": {{0.2, 0.1, 0.1}, {-0.1, 0.2, 0.1}},
		"L858R": {{0.1, -0.1, 0.2}, {-0.2, 0.0, 0.1}},
		"C797S": {{0.0, 0.0, 0.0}, {0.3, 0.2, 0.1}},
	}
}

// EGFRPanel builds the EGFR kinase mutation panel (T790M, L858R, C797S).
// Its reference is the wild-type ATP pocket.
func EGFRPanel() *Panel {
	wildType := molecule.Coordinates{
		{0.0, 0.0, 0.0},
		{0.15, 0.1, 0.1},
		{-0.1, 0.2, 0.1},
	}
	return NewPanel("egfr", "cancer", egfrMutations(), nil, offTargetPoints()).WithReference(wildType)
}

// EGFRMutantPocket returns the T790M-mutant ATP pocket used for selectivity
// against the wild-type reference.
func EGFRMutantPocket() molecule.Coordinates {
	return molecule.Coordinates{
		{0.0, 0.0, 0.0},
		{0.2, 0.1, 0.1},
		{-0.1, 0.2, 0.1},
	}
}

// SpikePanel builds the SARS-CoV-2 spike panel (ACE2, N501Y, E484K). Its
// reference is the receptor-binding domain before mutation.
func SpikePanel() *Panel {
	sites := map[string]molecule.Coordinates{
		"ACE2":  {{0.0, 0.0, 0.0}, {0.2, 0.1, 0.1}},
		"N501Y": {{-0.1, 0.2, 0.1}, {0.1, -0.1, 0.2}},
		"E484K": {{-0.2, 0.0, 0.1}, {0.3, 0.2, 0.1}},
	}
	rbd := molecule.Coordinates{
		{0.0, 0.0, 0.0},
		{0.3, 0.2, 0.1},
		{-0.2, 0.3, 0.1},
		{0.1, -0.2, 0.3},
		{-0.1, 0.1, -0.2},
	}
	return NewPanel("spike", "covid", sites, egfrMutations(), offTargetPoints()).WithReference(rbd)
}

// DefaultScaffold returns the five-point inhibitor scaffold used as the
// starting structure when a caller supplies none.
func DefaultScaffold() molecule.Coordinates {
	return molecule.Coordinates{
		{0.0, 0.0, 0.1},
		{0.2, 0.1, 0.0},
		{-0.1, 0.2, 0.0},
		{0.1, -0.1, 0.2},
		{-0.2, -0.1, 0.1},
	}
}

// Catalog resolves panels by name or by reference category.
type Catalog struct {
	byName     map[string]*Panel
	byCategory map[string]*Panel
}

// NewCatalog indexes panels. A later panel with the same name or category
// replaces an earlier one.
func NewCatalog(panels ...*Panel) *Catalog {
	c := &Catalog{
		byName:     make(map[string]*Panel, len(panels)),
		byCategory: make(map[string]*Panel, len(panels)),
	}
	for _, p := range panels {
		c.byName[p.name] = p
		c.byCategory[p.category] = p
	}
	return c
}

// DefaultCatalog builds the EGFR and spike panels. Callers build it once and
// share it.
func DefaultCatalog() *Catalog {
	return NewCatalog(EGFRPanel(), SpikePanel())
}

// Panel looks a panel up by name.
func (c *Catalog) Panel(name string) (*Panel, error) {
	p, ok := c.byName[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownPanel, "panel %q", name).WithComponent("catalog")
	}
	return p, nil
}

// ForCategory looks a panel up by reference category.
func (c *Catalog) ForCategory(category string) (*Panel, error) {
	p, ok := c.byCategory[category]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownCategory, "category %q", category).WithComponent("catalog")
	}
	return p, nil
}

// Names lists panel names in sorted order.
func (c *Catalog) Names() []string { return sortedKeys(c.byName) }

func cloneSites(in map[string]molecule.Coordinates) map[string]molecule.Coordinates {
	out := make(map[string]molecule.Coordinates, len(in))
	for name, site := range in {
		out[name] = site.Clone()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
