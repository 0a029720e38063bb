// Package metric implements the two distance kernels the forest can be
// built over — Angular (cosine) and Euclidean — behind a common interface
// so the writer and reader packages never branch on which one is active.
package metric

import (
	"math"
	"math/rand"

	"annforest/pkg/errs"
)

// Hyperplane is the subset of a node record a Metric needs to compute a
// margin against: a normal vector v, an offset t (unused by Angular), and
// for Side's exact-zero tie-break, nothing else — the coin flip uses the
// caller's rng, not the hyperplane.
type Hyperplane struct {
	V []float32
	T float32
}

// Metric is the pluggable distance/split kernel a forest is built over.
// Angular and Euclidean are the only two implementations; both are
// stateless and safe for concurrent use.
type Metric interface {
	// Distance returns the raw (non-normalized) distance between two
	// vectors of equal length.
	Distance(a, b []float32) float32

	// Margin returns the signed distance of y from the hyperplane h.
	// Positive/negative determines which child subtree y routes to.
	Margin(h Hyperplane, y []float32) float32

	// Side reports whether y routes to the left child of h. Ties
	// (margin exactly zero) are broken with rng.
	Side(h Hyperplane, y []float32, rng *rand.Rand) bool

	// Split picks two random distinct members of vecs and builds the
	// hyperplane equidistant between them, returning it along with the
	// left/right partition of every member's index.
	Split(vecs [][]float32, rng *rand.Rand) (h Hyperplane, left, right []int)

	// NormalizedDistance converts a raw Distance() value into the
	// metric's externally reported distance (e.g. sqrt for Angular).
	NormalizedDistance(d float32) float32

	// Name returns the metric's one-character tag ("a" or "e"), the
	// same tag ForName accepts.
	Name() string
}

// ForName resolves a persisted single-character tag ('a' or 'e') to a
// Metric implementation.
func ForName(tag byte) (Metric, error) {
	switch tag {
	case 'a':
		return Angular{}, nil
	case 'e':
		return Euclidean{}, nil
	default:
		return nil, errs.ErrUnknownMetric
	}
}

// pickPivots samples two distinct random indices in [0, count), following
// the original annoylib.h create_split/split idiom: draw i in [0,count),
// draw j in [0,count-1), then bump j past i so i != j.
func pickPivots(count int, rng *rand.Rand) (i, j int) {
	i = rng.Intn(count)
	j = rng.Intn(count - 1)
	if j >= i {
		j++
	}
	return i, j
}

func vecNorm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}
