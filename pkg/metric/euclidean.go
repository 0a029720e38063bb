package metric

import (
	"math"
	"math/rand"
)

// Euclidean implements squared-distance splits: hyperplanes carry an
// offset term T so the split plane need not pass through the origin.
type Euclidean struct{}

func (Euclidean) Name() string { return "e" }

// Distance computes sum((a-b)^2), matching annoylib.h's Euclidean::distance.
func (Euclidean) Distance(a, b []float32) float32 {
	var d float32
	for z := range a {
		diff := a[z] - b[z]
		d += diff * diff
	}
	return d
}

func (Euclidean) Margin(h Hyperplane, y []float32) float32 {
	dot := h.T
	for z := range h.V {
		dot += h.V[z] * y[z]
	}
	return dot
}

// Side routes y to the left child when its margin is negative, mirroring
// annoylib.h's Euclidean split loop (dot < 0 -> left).
func (m Euclidean) Side(h Hyperplane, y []float32, rng *rand.Rand) bool {
	dot := m.Margin(h, y)
	if dot == 0 {
		return rng.Int63()&1 == 0
	}
	return dot < 0
}

// Split picks two random distinct members, builds the plain difference of
// their vectors as the normal, computes the midpoint offset T, and routes
// every member by Side against the resulting hyperplane.
func (m Euclidean) Split(vecs [][]float32, rng *rand.Rand) (Hyperplane, []int, []int) {
	count := len(vecs)
	i, j := pickPivots(count, rng)
	f := len(vecs[0])

	iv, jv := vecs[i], vecs[j]
	v := make([]float32, f)
	var t float32
	for z := 0; z < f; z++ {
		d := iv[z] - jv[z]
		v[z] = d
		t += -d * (iv[z] + jv[z]) / 2
	}
	h := Hyperplane{V: v, T: t}

	var left, right []int
	for w, vec := range vecs {
		if m.Side(h, vec, rng) {
			left = append(left, w)
		} else {
			right = append(right, w)
		}
	}
	return h, left, right
}

// NormalizedDistance reports sqrt(d), matching annoylib.h's
// Euclidean::normalized_distance (the raw distance is squared).
func (Euclidean) NormalizedDistance(d float32) float32 {
	if d < 0 {
		d = 0
	}
	return float32(math.Sqrt(float64(d)))
}
