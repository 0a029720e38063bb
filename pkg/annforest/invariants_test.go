package annforest

import (
	"math"
	"math/rand"
	"testing"

	"annforest/pkg/config"
	"annforest/pkg/forest"
	"annforest/pkg/forestrecord"
	"annforest/pkg/kvstore"
)

// Invariant 1 — root stability: after create(T), node ids 0..T-1 exist
// as empty leaves, and no other node exists yet.
func TestInvariantRootStability(t *testing.T) {
	env := openRawEnv(t)
	const trees = 4
	if err := forest.Create(env, trees); err != nil {
		t.Fatalf("create: %v", err)
	}

	rtxn, err := env.BeginRead()
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	defer rtxn.Discard()

	for i := int32(0); i < trees; i++ {
		buf, ok, err := rtxn.Get(kvstore.Tree, i)
		if err != nil || !ok {
			t.Fatalf("root %d missing: ok=%v err=%v", i, ok, err)
		}
		rec, err := forestrecord.DecodeNode(buf)
		if err != nil {
			t.Fatalf("decode root %d: %v", i, err)
		}
		if !rec.Leaf || len(rec.Items) != 0 {
			t.Errorf("root %d: expected empty leaf, got %+v", i, rec)
		}
	}
	last, ok, err := rtxn.LastKey(kvstore.Tree)
	if err != nil {
		t.Fatalf("last key: %v", err)
	}
	if !ok || last != trees-1 {
		t.Errorf("expected last tree key %d, got %d", trees-1, last)
	}
}

func openRawEnv(t *testing.T) *kvstore.Env {
	t.Helper()
	env, err := kvstore.OpenWrite(t.TempDir(), 126, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

// Invariant 3 — leaf capacity: every leaf has at most K items immediately
// after any completed AddItem.
func TestInvariantLeafCapacity(t *testing.T) {
	const f, k, trees = 2, 3, 2
	ix := newIndex(t, f, k, trees, "euclidean")
	rng := rand.New(rand.NewSource(99))

	for i := int32(0); i < 40; i++ {
		if err := ix.AddItem(i, randVec(rng, f)); err != nil {
			t.Fatalf("add item %d: %v", i, err)
		}
		assertAllLeavesWithinCapacity(t, ix, trees, k)
	}
}

func assertAllLeavesWithinCapacity(t *testing.T, ix *Index, trees, k int) {
	t.Helper()
	rtxn, err := ix.env.BeginRead()
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	defer rtxn.Discard()

	var walk func(id int32)
	walk = func(id int32) {
		buf, ok, err := rtxn.Get(kvstore.Tree, id)
		if err != nil || !ok {
			t.Fatalf("node %d missing: ok=%v err=%v", id, ok, err)
		}
		rec, err := forestrecord.DecodeNode(buf)
		if err != nil {
			t.Fatalf("decode node %d: %v", id, err)
		}
		if rec.Leaf {
			if len(rec.Items) > k {
				t.Errorf("leaf %d has %d items, exceeds K=%d", id, len(rec.Items), k)
			}
			return
		}
		walk(rec.Left)
		walk(rec.Right)
	}
	for i := int32(0); i < int32(trees); i++ {
		walk(i)
	}
}

// Invariant 6 — round-trip: GetItem(AddItem(id, v)) == v bit-exactly.
func TestInvariantRoundTripExact(t *testing.T) {
	ix := newIndex(t, 3, 4, 1, "euclidean")
	want := []float32{1.5, -2.25, 100.0}
	if err := ix.AddItem(1, want); err != nil {
		t.Fatalf("add item: %v", err)
	}
	got, err := ix.GetItem(1)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v want %v (expected bit-exact round trip)", i, got, want)
		}
	}
}

// Invariant 7 — distance symmetry and positivity.
func TestInvariantDistanceSymmetryAndPositivity(t *testing.T) {
	ix := newIndex(t, 3, 4, 1, "euclidean")
	a := []float32{1, 2, 3}
	b := []float32{4, -1, 0}
	if err := ix.AddItem(0, a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := ix.AddItem(1, b); err != nil {
		t.Fatalf("add b: %v", err)
	}

	dab, err := ix.GetDistance(0, 1)
	if err != nil {
		t.Fatalf("distance a,b: %v", err)
	}
	dba, err := ix.GetDistance(1, 0)
	if err != nil {
		t.Fatalf("distance b,a: %v", err)
	}
	if dab != dba {
		t.Errorf("expected symmetric distance, got %f vs %f", dab, dba)
	}
	if dab < 0 {
		t.Errorf("expected non-negative distance, got %f", dab)
	}

	daa, err := ix.GetDistance(0, 0)
	if err != nil {
		t.Fatalf("distance a,a: %v", err)
	}
	if math.Abs(float64(daa)) > 1e-6 {
		t.Errorf("expected ~0 self-distance, got %f", daa)
	}
}

// Invariant 8 — query soundness: every id returned belongs to the index
// and its reported distance equals D.distance(query, raw(id)).
func TestInvariantQuerySoundness(t *testing.T) {
	const f = 3
	ix := newIndex(t, f, 4, 2, "euclidean")
	rng := rand.New(rand.NewSource(17))
	for i := int32(0); i < 30; i++ {
		if err := ix.AddItem(i, randVec(rng, f)); err != nil {
			t.Fatalf("add item %d: %v", i, err)
		}
	}

	query := randVec(rng, f)
	ids, dists, err := ix.GetNNSByVector(query, 5, 90, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for i, id := range ids {
		raw, err := ix.GetItem(id)
		if err != nil {
			t.Fatalf("get item %d: %v", id, err)
		}
		want := ix.metric.Distance(query, raw)
		want = ix.metric.NormalizedDistance(want)
		if math.Abs(float64(dists[i]-want)) > 1e-4 {
			t.Errorf("result %d: reported distance %f != recomputed %f", i, dists[i], want)
		}
	}
}

// Invariant 10 — determinism: same seed, same insertion order, same
// queries yield identical results across two independently built
// indexes.
func TestInvariantDeterminism(t *testing.T) {
	const f, k, trees, n = 3, 3, 2, 25
	build := func() *Index {
		ix := newIndex(t, f, k, trees, "euclidean")
		rng := rand.New(rand.NewSource(2024))
		ix.rng = rand.New(rand.NewSource(2024))
		for i := int32(0); i < n; i++ {
			if err := ix.AddItem(i, randVec(rng, f)); err != nil {
				t.Fatalf("add item %d: %v", i, err)
			}
		}
		return ix
	}

	ixA := build()
	ixB := build()

	queryRng := rand.New(rand.NewSource(7))
	query := randVec(queryRng, f)

	idsA, distsA, err := ixA.GetNNSByVector(query, 5, 0, true)
	if err != nil {
		t.Fatalf("query A: %v", err)
	}
	idsB, distsB, err := ixB.GetNNSByVector(query, 5, 0, true)
	if err != nil {
		t.Fatalf("query B: %v", err)
	}

	if len(idsA) != len(idsB) {
		t.Fatalf("result length differs: %d vs %d", len(idsA), len(idsB))
	}
	for i := range idsA {
		if idsA[i] != idsB[i] || distsA[i] != distsB[i] {
			t.Errorf("result %d differs: (%d,%f) vs (%d,%f)", i, idsA[i], distsA[i], idsB[i], distsB[i])
		}
	}
}

var _ = config.Options{}
