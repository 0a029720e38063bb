package annforest

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"annforest/pkg/config"
)

func newIndex(t *testing.T, f, k, trees int, metricName string) *Index {
	t.Helper()
	opts := config.DefaultOptions(f)
	opts.Directory = t.TempDir()
	opts.K = k
	opts.TreeCount = trees
	opts.Metric = metricName
	ix, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

// Scenario A — empty query.
func TestScenarioA_EmptyQuery(t *testing.T) {
	ix := newIndex(t, 3, 10, 1, "angular")
	ids, _, err := ix.GetNNSByVector([]float32{1, 0, 0}, 5, -1, false)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no results on an empty forest, got %v", ids)
	}
}

// Scenario B — single point.
func TestScenarioB_SinglePoint(t *testing.T) {
	ix := newIndex(t, 2, 2, 2, "euclidean")
	if err := ix.AddItem(7, []float32{0.0, 0.0}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	ids, dists, err := ix.GetNNSByVector([]float32{3.0, 4.0}, 1, -1, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("expected [7], got %v", ids)
	}
	if math.Abs(float64(dists[0])-5.0) > 1e-4 {
		t.Errorf("expected distance 5.0, got %f", dists[0])
	}
}

// Scenario C — forced split.
func TestScenarioC_ForcedSplit(t *testing.T) {
	ix := newIndex(t, 2, 2, 1, "euclidean")
	ix.rng = rand.New(rand.NewSource(1))

	for _, p := range []struct {
		id  int32
		vec []float32
	}{
		{0, []float32{0, 0}},
		{1, []float32{1, 0}},
		{2, []float32{10, 0}},
	} {
		if err := ix.AddItem(p.id, p.vec); err != nil {
			t.Fatalf("add item %d: %v", p.id, err)
		}
	}

	n, err := ix.GetNItems()
	if err != nil {
		t.Fatalf("get n items: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 items tracked, got %d", n)
	}

	// All three ids must be reachable with a large enough search budget.
	ids, _, err := ix.GetNNSByVector([]float32{5, 0}, 3, 100, false)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected all 3 ids reachable after the forced split, got %v", ids)
	}

	ids, dists, err := ix.GetNNSByVector([]float32{9.9, 0}, 1, -1, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected nearest neighbor of [9.9,0] to be item 2, got %v", ids)
	}
	// Euclidean.NormalizedDistance takes sqrt, so the reported distance
	// is sqrt(0.01) = 0.1, not the raw squared distance.
	if math.Abs(float64(dists[0])-0.1) > 1e-3 {
		t.Errorf("expected distance 0.1, got %f", dists[0])
	}
}

// Scenario D — angular orthogonality.
func TestScenarioD_AngularOrthogonality(t *testing.T) {
	ix := newIndex(t, 2, 1, 1, "angular")
	if err := ix.AddItem(0, []float32{1, 0}); err != nil {
		t.Fatalf("add item 0: %v", err)
	}
	if err := ix.AddItem(1, []float32{0, 1}); err != nil {
		t.Fatalf("add item 1: %v", err)
	}

	d, err := ix.GetDistance(0, 1)
	if err != nil {
		t.Fatalf("get distance: %v", err)
	}
	if math.Abs(float64(d)-2.0) > 1e-4 {
		t.Errorf("expected distance ~2.0 for orthogonal vectors, got %f", d)
	}

	ids, _, err := ix.GetNNSByVector([]float32{1, 0.01}, 1, -1, false)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(ids) != 1 || ids[0] != 0 {
		t.Fatalf("expected nearest neighbor of [1,0.01] to be item 0, got %v", ids)
	}
}

// Scenario E — exhaustive equals exact.
func TestScenarioE_ExhaustiveEqualsExact(t *testing.T) {
	const f, k, trees, numItems = 4, 3, 3, 50
	ix := newIndex(t, f, k, trees, "euclidean")

	rng := rand.New(rand.NewSource(123))
	vectors := make(map[int32][]float32, numItems)
	for i := int32(0); i < numItems; i++ {
		v := randVec(rng, f)
		vectors[i] = v
		if err := ix.AddItem(i, v); err != nil {
			t.Fatalf("add item %d: %v", i, err)
		}
	}

	for q := 0; q < 10; q++ {
		query := randVec(rng, f)

		got, _, err := ix.GetNNSByVector(query, 5, numItems*trees, false)
		if err != nil {
			t.Fatalf("query %d: %v", q, err)
		}

		want := bruteForceTopN(vectors, query, 5)
		if len(got) != len(want) {
			t.Fatalf("query %d: result count %d != exact %d", q, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("query %d: position %d got id %d want id %d", q, i, got[i], want[i])
			}
		}
	}
}

func bruteForceTopN(vectors map[int32][]float32, query []float32, n int) []int32 {
	type scored struct {
		id int32
		d  float32
	}
	var all []scored
	var m euclideanDist
	for id, v := range vectors {
		all = append(all, scored{id: id, d: m.distance(query, v)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].d != all[j].d {
			return all[i].d < all[j].d
		}
		return all[i].id < all[j].id
	})
	if n > len(all) {
		n = len(all)
	}
	ids := make([]int32, n)
	for i := 0; i < n; i++ {
		ids[i] = all[i].id
	}
	return ids
}

type euclideanDist struct{}

func (euclideanDist) distance(a, b []float32) float32 {
	var d float32
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

// Scenario F — reopen.
func TestScenarioF_Reopen(t *testing.T) {
	const f, k, trees, numItems = 4, 3, 3, 50
	dir := t.TempDir()

	opts := config.DefaultOptions(f)
	opts.Directory = dir
	opts.K = k
	opts.TreeCount = trees
	opts.Metric = "euclidean"

	ix, err := Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rng := rand.New(rand.NewSource(456))
	queries := make([][]float32, 10)
	for i := range queries {
		queries[i] = randVec(rng, f)
	}
	for i := int32(0); i < numItems; i++ {
		if err := ix.AddItem(i, randVec(rng, f)); err != nil {
			t.Fatalf("add item %d: %v", i, err)
		}
	}

	firstRun := make([][]int32, len(queries))
	for i, q := range queries {
		ids, _, err := ix.GetNNSByVector(q, 5, numItems*trees, false)
		if err != nil {
			t.Fatalf("query %d before reopen: %v", i, err)
		}
		firstRun[i] = ids
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	roOpts := opts
	roOpts.ReadOnly = true
	reopened, err := Open(roOpts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i, q := range queries {
		ids, _, err := reopened.GetNNSByVector(q, 5, numItems*trees, false)
		if err != nil {
			t.Fatalf("query %d after reopen: %v", i, err)
		}
		if len(ids) != len(firstRun[i]) {
			t.Fatalf("query %d: result count changed after reopen: %d vs %d", i, len(ids), len(firstRun[i]))
		}
		for j := range ids {
			if ids[j] != firstRun[i][j] {
				t.Errorf("query %d position %d: got %d, want %d (bit-identical reopen expected)", i, j, ids[j], firstRun[i][j])
			}
		}
	}
}
