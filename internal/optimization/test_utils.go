package optimization

import (
	"math"
	"testing"

	"github.com/copyleftdev/qmdock/internal/molecule"
)

// AssertCoordinatesInDelta checks that two coordinate sets agree point by
// point within tol.
func AssertCoordinatesInDelta(t *testing.T, got, want molecule.Coordinates, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		for axis := 0; axis < 3; axis++ {
			if math.Abs(got[i][axis]-want[i][axis]) > tol {
				t.Fatalf("at point %d axis %d: got %v, want %v (tolerance %v)", i, axis, got[i][axis], want[i][axis], tol)
			}
		}
	}
}

// AssertPathConsistent checks the invariants every finished run must hold:
// one entry per iteration, 1-based and in order, and a final energy equal to
// the path minimum.
func AssertPathConsistent(t *testing.T, res *Result, iterations int) {
	t.Helper()

	if len(res.Path) != iterations {
		t.Fatalf("path length: got %d, want %d", len(res.Path), iterations)
	}

	lowest := math.Inf(1)
	for i, entry := range res.Path {
		if entry.Iteration != i+1 {
			t.Fatalf("entry %d has iteration %d", i, entry.Iteration)
		}
		lowest = math.Min(lowest, entry.Energy)
	}
	if res.FinalBindingEnergy != lowest {
		t.Fatalf("final energy %v is not the path minimum %v", res.FinalBindingEnergy, lowest)
	}
}
