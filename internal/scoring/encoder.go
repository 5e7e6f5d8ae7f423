package scoring

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/molecule"
)

// DefaultFeatureWidth is the number of feature slots per atom.
const DefaultFeatureWidth = 3

// Encoder maps a coordinate set onto a flat feature vector of rotation
// angles, Width slots per atom. The first three slots of each atom hold the
// unit-normalised x, y, z scaled into [-π/2, π/2]; remaining slots are zero.
type Encoder struct {
	width int
}

// NewEncoder returns an encoder with the given per-atom width. Zero selects
// DefaultFeatureWidth; anything below three cannot hold a point.
func NewEncoder(width int) (*Encoder, error) {
	if width == 0 {
		width = DefaultFeatureWidth
	}
	if width < 3 {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "feature width %d is below 3", width).
			WithComponent("encoder")
	}
	return &Encoder{width: width}, nil
}

// Width returns the per-atom feature width.
func (e *Encoder) Width() int { return e.width }

// Encode returns the feature vector for c, of length len(c)*Width.
// A zero point encodes to zero angles.
func (e *Encoder) Encode(c molecule.Coordinates) []float64 {
	out := make([]float64, len(c)*e.width)
	for i, p := range c {
		norm := floats.Norm(p[:], 2)
		if norm == 0 {
			continue
		}
		base := i * e.width
		for axis := 0; axis < 3; axis++ {
			out[base+axis] = math.Pi / 2 * (p[axis] / norm)
		}
	}
	return out
}
