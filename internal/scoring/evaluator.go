// Package scoring turns pairs of coordinate sets into binding-energy scores.
//
// The evaluator is deterministic and never fails: degenerate input (empty
// sets, zero-length points) is resolved locally and always yields a
// well-formed EnergyResult. All randomness lives in the optimizers built on
// top of it.
package scoring

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/qmdock/internal/molecule"
)

// EnergyFloor keeps -log(p) finite when the ground-state probability is zero.
const EnergyFloor = 1e-10

// EnergyResult is the outcome of scoring a candidate against a site.
type EnergyResult struct {
	// BindingEnergy is -log(Confidence + EnergyFloor); lower is better.
	BindingEnergy float64 `json:"binding_energy"`
	// Confidence is the ground-state probability, in [0, 1].
	Confidence float64 `json:"confidence_score"`
	// Electrostatic and VanDerWaals split the probability mass into two
	// interleaved classes. They sum to 1, or are both 0.
	Electrostatic float64 `json:"electrostatic_component"`
	VanDerWaals   float64 `json:"van_der_waals_component"`
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the evaluator's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger.Named("evaluator")
		}
	}
}

// WithCounter counts every evaluation on c.
func WithCounter(c prometheus.Counter) Option {
	return func(e *Evaluator) { e.counter = c }
}

// Evaluator scores coordinate sets. It is safe for concurrent use.
type Evaluator struct {
	encoder *Encoder
	logger  *zap.Logger
	counter prometheus.Counter
}

// NewEvaluator creates an evaluator over the given encoder.
func NewEvaluator(encoder *Encoder, opts ...Option) *Evaluator {
	e := &Evaluator{
		encoder: encoder,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encoder returns the encoder used by e.
func (e *Evaluator) Encoder() *Encoder { return e.encoder }

// Evaluate scores candidate against site. Both sets are encoded and layered
// onto one register, site first; the binding energy is the negative log of
// the probability that the whole register stays in its ground state.
func (e *Evaluator) Evaluate(site, candidate molecule.Coordinates) EnergyResult {
	if e.counter != nil {
		e.counter.Inc()
	}

	if len(site) == 0 || len(candidate) == 0 {
		e.logger.Debug("Degenerate input, scoring from floor",
			zap.Int("site_atoms", len(site)),
			zap.Int("candidate_atoms", len(candidate)),
		)
		return EnergyResult{BindingEnergy: -math.Log(EnergyFloor)}
	}

	siteFeatures := e.encoder.Encode(site)
	candFeatures := e.encoder.Encode(candidate)

	reg := newRegister(max(len(siteFeatures), len(candFeatures)))
	reg.layer(siteFeatures)
	reg.layer(candFeatures)

	amp := reg.amplitude(0)
	confidence := clamp01(amp * amp)

	electrostatic, vdw := reg.parity()
	if total := electrostatic + vdw; total > 0 {
		electrostatic /= total
		vdw /= total
	}

	res := EnergyResult{
		BindingEnergy: -math.Log(confidence + EnergyFloor),
		Confidence:    confidence,
		Electrostatic: electrostatic,
		VanDerWaals:   vdw,
	}

	e.logger.Debug("Scored candidate",
		zap.Int("site_atoms", len(site)),
		zap.Int("candidate_atoms", len(candidate)),
		zap.Float64("binding_energy", res.BindingEnergy),
		zap.Float64("confidence", res.Confidence),
	)
	return res
}

// Density returns the normalised probability mass of the first len(c)*Width
// basis states of c's own encoding. An empty set, or one whose mass vanishes,
// yields zeros.
func (e *Evaluator) Density(c molecule.Coordinates) []float64 {
	features := e.encoder.Encode(c)
	reg := newRegister(len(features))
	reg.layer(features)

	density := make([]float64, len(features))
	for k := range density {
		amp := reg.amplitude(uint64(k))
		density[k] = amp * amp
	}

	if total := floats.Sum(density); total > 0 {
		floats.Scale(1/total, density)
	}
	return density
}

// Overlap is the dot product of two densities truncated to the shorter one.
func Overlap(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	return floats.Dot(a[:n], b[:n])
}

// Finite substitutes 0 for non-finite values so one degenerate evaluation
// cannot poison a sum or mean.
func Finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
