// Package molecule defines the coordinate sets the scoring engine works on.
//
// A Coordinates value is an ordered list of 3D points. Order is significant:
// index i maps to a fixed semantic role (binding-pocket residue, scaffold
// atom, ...). Values are treated as immutable once handed to the engine;
// Perturb always returns a fresh set.
package molecule

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/qmdock/internal/errors"
)

// Point is a single atom or residue position.
type Point [3]float64

// UnmarshalJSON accepts exactly three finite numbers.
func (p *Point) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "point: %v", err).WithComponent("molecule")
	}
	if len(v) != 3 {
		return errors.Wrapf(errors.ErrInvalidInput, "point: expected 3 components, got %d", len(v)).
			WithComponent("molecule")
	}
	for axis, x := range v {
		if !finite(x) {
			return errors.Wrapf(errors.ErrInvalidInput, "point axis %d: %v is not finite", axis, x).
				WithComponent("molecule")
		}
		p[axis] = x
	}
	return nil
}

// Coordinates is an ordered coordinate set.
type Coordinates []Point

// Clone returns a deep copy of c. A nil set clones to nil.
func (c Coordinates) Clone() Coordinates {
	if c == nil {
		return nil
	}
	out := make(Coordinates, len(c))
	copy(out, c)
	return out
}

// Perturb returns a new set with independent zero-mean Gaussian noise of
// standard deviation sigma added to every axis of every point. Draws are
// taken in point order, x then y then z, so a seeded rng reproduces the
// exact same perturbation.
func (c Coordinates) Perturb(rng *rand.Rand, sigma float64) Coordinates {
	out := make(Coordinates, len(c))
	for i, p := range c {
		for axis := 0; axis < 3; axis++ {
			out[i][axis] = p[axis] + rng.NormFloat64()*sigma
		}
	}
	return out
}

// FromDense reads an N×3 matrix back into a coordinate set.
func FromDense(m mat.Matrix) (Coordinates, error) {
	if m == nil {
		return nil, nil
	}
	r, cols := m.Dims()
	if cols != 3 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "coordinate matrix must have 3 columns, got %d", cols).
			WithComponent("molecule")
	}
	out := make(Coordinates, r)
	for i := 0; i < r; i++ {
		for axis := 0; axis < 3; axis++ {
			v := m.At(i, axis)
			if !finite(v) {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "point %d axis %d: %v is not finite", i, axis, v).
					WithComponent("molecule")
			}
			out[i][axis] = v
		}
	}
	return out, nil
}

// Equal reports whether a and b hold exactly the same points.
func Equal(a, b Coordinates) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Parse reads an inline coordinate list of the form "x,y,z;x,y,z".
// Whitespace around numbers is ignored; an empty string is an empty set.
// NaN and infinite components are rejected.
func Parse(s string) (Coordinates, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Coordinates{}, nil
	}
	parts := strings.Split(s, ";")
	out := make(Coordinates, 0, len(parts))
	for i, part := range parts {
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "point %d: expected 3 components, got %d", i, len(fields)).
				WithComponent("molecule")
		}
		var p Point
		for axis, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "point %d axis %d: %v", i, axis, err).
					WithComponent("molecule")
			}
			if !finite(v) {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "point %d axis %d: %v is not finite", i, axis, v).
					WithComponent("molecule")
			}
			p[axis] = v
		}
		out = append(out, p)
	}
	return out, nil
}

// String renders c in the inline form accepted by Parse.
func (c Coordinates) String() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = fmt.Sprintf("%g,%g,%g", p[0], p[1], p[2])
	}
	return strings.Join(parts, ";")
}
