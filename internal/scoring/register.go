package scoring

import "math"

// qubit holds the real amplitudes of |0> and |1>. Every gate used by the
// encoding (X and Y-rotations) keeps amplitudes real.
type qubit [2]float64

// register is a product state: the joint amplitude of a basis state is the
// product of per-qubit amplitudes, which keeps evaluation linear in the
// number of qubits instead of exponential.
type register []qubit

func newRegister(n int) register {
	r := make(register, n)
	for i := range r {
		r[i] = qubit{1, 0}
	}
	return r
}

// layer applies one encoded set: each addressed qubit is flipped and then
// rotated about Y by its feature angle. Layers stack on the same qubits, so
// a second set interferes with the first wherever both are present.
func (r register) layer(angles []float64) {
	for q, theta := range angles {
		a0, a1 := r[q][1], r[q][0]
		c, s := math.Cos(theta/2), math.Sin(theta/2)
		r[q] = qubit{c*a0 - s*a1, s*a0 + c*a1}
	}
}

// amplitude returns the joint amplitude of basis state k, qubit 0 being the
// most significant bit.
func (r register) amplitude(k uint64) float64 {
	n := len(r)
	amp := 1.0
	for q := range r {
		bit := (k >> uint(n-1-q)) & 1
		amp *= r[q][bit]
	}
	return amp
}

// parity returns the probability mass on even and odd basis indices. Index
// parity is decided by the last qubit alone.
func (r register) parity() (even, odd float64) {
	if len(r) == 0 {
		return 0, 0
	}
	rest := 1.0
	for _, q := range r[:len(r)-1] {
		rest *= q[0]*q[0] + q[1]*q[1]
	}
	last := r[len(r)-1]
	return last[0] * last[0] * rest, last[1] * last[1] * rest
}
