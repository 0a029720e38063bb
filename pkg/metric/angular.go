package metric

import (
	"math"
	"math/rand"
)

// Angular implements the 2-2cos distance kernel: members are compared by
// the cosine of the angle between them, and split hyperplanes pass
// through the origin (no offset term).
type Angular struct{}

func (Angular) Name() string { return "a" }

// Distance computes 2 - 2*cos(a, b), matching annoylib.h's Angular::distance.
func (Angular) Distance(a, b []float32) float32 {
	var pp, qq, pq float32
	for z := range a {
		pp += a[z] * a[z]
		qq += b[z] * b[z]
		pq += a[z] * b[z]
	}
	ppqq := pp * qq
	if ppqq > 0 {
		return 2.0 - 2.0*pq/float32(math.Sqrt(float64(ppqq)))
	}
	return 2.0
}

// Margin returns the dot product of y with the hyperplane normal; the
// offset term is always zero for Angular splits.
func (Angular) Margin(h Hyperplane, y []float32) float32 {
	var dot float32
	for z := range h.V {
		dot += h.V[z] * y[z]
	}
	return dot
}

func (m Angular) Side(h Hyperplane, y []float32, rng *rand.Rand) bool {
	dot := m.Margin(h, y)
	if dot != 0 {
		return dot > 0
	}
	return rng.Int63()&1 == 0
}

// Split picks two random distinct members, builds the normalized
// difference of their unit vectors as the hyperplane normal, and routes
// every member by Side against it.
func (m Angular) Split(vecs [][]float32, rng *rand.Rand) (Hyperplane, []int, []int) {
	count := len(vecs)
	i, j := pickPivots(count, rng)
	f := len(vecs[0])

	iv, jv := vecs[i], vecs[j]
	iNorm, jNorm := vecNorm(iv), vecNorm(jv)
	if iNorm == 0 {
		iNorm = 1
	}
	if jNorm == 0 {
		jNorm = 1
	}

	v := make([]float32, f)
	for z := 0; z < f; z++ {
		v[z] = iv[z]/iNorm - jv[z]/jNorm
	}
	n := vecNorm(v)
	if n > 0 {
		for z := range v {
			v[z] /= n
		}
	}
	h := Hyperplane{V: v, T: 0}

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

// NormalizedDistance reports sqrt(d), converting the raw 2-2cos distance
// into the externally visible angular distance.
func (Angular) NormalizedDistance(d float32) float32 {
	if d < 0 {
		d = 0
	}
	return float32(math.Sqrt(float64(d)))
}
