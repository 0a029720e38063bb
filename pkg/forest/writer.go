// Package forest implements the online-insertable random-projection
// forest: writer (Create, AddItem, the recursive split/insert) and
// reader (priority-queue multi-tree search). The algorithm follows the
// original Annoy/LMDB source's _add_item_to_tree and _get_all_nns
// exactly; the Go shape (a writer struct carrying one open transaction,
// a candidate-list reader) is grounded on the teacher's
// pkg/hnsw/incremental.go and pkg/hnsw/search.go.
package forest

import (
	"fmt"
	"math/rand"

	"annforest/pkg/errs"
	"annforest/pkg/forestrecord"
	"annforest/pkg/kvstore"
	"annforest/pkg/metric"
)

// Create writes t empty leaf roots at ids 0..t-1 in one write
// transaction, matching the original's init_roots.
func Create(env *kvstore.Env, t int) error {
	wtxn, err := env.BeginWrite()
	if err != nil {
		return fmt.Errorf("forest: create: %w", err)
	}
	defer wtxn.Abort()

	for i := 0; i < t; i++ {
		root := forestrecord.NodeRecord{Index: int32(i), Leaf: true, Left: -1, Right: -1}
		if err := wtxn.Put(kvstore.Tree, int32(i), forestrecord.EncodeNode(root)); err != nil {
			return fmt.Errorf("forest: create: %w", err)
		}
	}
	return wtxn.Commit()
}

// writer carries the state a single AddItem call's recursive insert
// needs, so the recursion never re-opens a transaction — spec.md's "all
// writes within a single add_item are atomic".
type writer struct {
	txn    *kvstore.WTxn
	metric metric.Metric
	rng    *rand.Rand
	k      int
	log    Logger
}

// AddItem implements spec.md §4.4: one write transaction puts the raw
// vector, then inserts it into every one of the T root trees, then
// commits.
func AddItem(env *kvstore.Env, k int, m metric.Metric, rng *rand.Rand, logger Logger, treeCount int, id int32, vec []float32) error {
	if logger == nil {
		logger = NopLogger{}
	}
	wtxn, err := env.BeginWrite()
	if err != nil {
		return fmt.Errorf("forest: add item: %w", err)
	}
	defer wtxn.Abort()

	rec := forestrecord.VectorRecord{ID: id, Data: vec}
	if err := wtxn.Put(kvstore.Raw, id, forestrecord.EncodeVector(rec)); err != nil {
		return fmt.Errorf("forest: add item: %w", err)
	}

	w := &writer{txn: wtxn, metric: m, rng: rng, k: k, log: logger}
	for i := 0; i < treeCount; i++ {
		if err := w.insert(int32(i), id, vec); err != nil {
			return fmt.Errorf("forest: add item: %w", err)
		}
	}

	return wtxn.Commit()
}

// insert recursively routes (id, vec) into the subtree rooted at
// nodeIndex, splitting a leaf that has reached capacity k.
func (w *writer) insert(nodeIndex int32, id int32, vec []float32) error {
	buf, ok, err := w.txn.Get(kvstore.Tree, nodeIndex)
	if err != nil {
		return fmt.Errorf("%w", errs.ErrStoreUnavailable)
	}
	if !ok {
		return fmt.Errorf("forest: node %d: %w", nodeIndex, errs.ErrCorruptRecord)
	}
	node, err := forestrecord.DecodeNode(buf)
	if err != nil {
		return err
	}

	if node.Leaf && len(node.Items) < w.k {
		node.Items = append(node.Items, id)
		return w.txn.Put(kvstore.Tree, nodeIndex, forestrecord.EncodeNode(node))
	}

	if node.Leaf && len(node.Items) >= w.k {
		vecs := make([][]float32, len(node.Items))
		for i, itemID := range node.Items {
			v, err := w.getRaw(itemID)
			if err != nil {
				return err
			}
			vecs[i] = v
		}

		h, leftIdx, rightIdx := w.metric.Split(vecs, w.rng)
		leftItems := make([]int32, len(leftIdx))
		for i, idx := range leftIdx {
			leftItems[i] = node.Items[idx]
		}
		rightItems := make([]int32, len(rightIdx))
		for i, idx := range rightIdx {
			rightItems[i] = node.Items[idx]
		}

		leftID, err := w.allocNode(forestrecord.NodeRecord{Leaf: true, Items: leftItems, Left: -1, Right: -1})
		if err != nil {
			return err
		}
		rightID, err := w.allocNode(forestrecord.NodeRecord{Leaf: true, Items: rightItems, Left: -1, Right: -1})
		if err != nil {
			return err
		}

		node = forestrecord.NodeRecord{
			Index: nodeIndex,
			Leaf:  false,
			V:     h.V,
			T:     h.T,
			Left:  leftID,
			Right: rightID,
		}
		if err := w.txn.Put(kvstore.Tree, nodeIndex, forestrecord.EncodeNode(node)); err != nil {
			return err
		}
		w.log.Splitf("forest: split node %d into left=%d (%d items) right=%d (%d items)",
			nodeIndex, leftID, len(leftItems), rightID, len(rightItems))
	}

	goLeft := w.metric.Side(metric.Hyperplane{V: node.V, T: node.T}, vec, w.rng)
	if goLeft {
		return w.insert(node.Left, id, vec)
	}
	return w.insert(node.Right, id, vec)
}

// allocNode assigns a fresh node id (LastKey(tree)+1) and writes rec at
// it. Two successive calls inside the same WTxn see each other's Put
// because badger exposes same-transaction writes to later reads —
// kvstore's documented resolution of spec.md's child-id allocation
// race (see DESIGN.md).
func (w *writer) allocNode(rec forestrecord.NodeRecord) (int32, error) {
	last, ok, err := w.txn.LastKey(kvstore.Tree)
	if err != nil {
		return 0, fmt.Errorf("%w", errs.ErrStoreUnavailable)
	}
	var next int32
	if ok {
		next = last + 1
	}
	rec.Index = next
	if err := w.txn.Put(kvstore.Tree, next, forestrecord.EncodeNode(rec)); err != nil {
		return 0, err
	}
	return next, nil
}

func (w *writer) getRaw(id int32) ([]float32, error) {
	buf, ok, err := w.txn.Get(kvstore.Raw, id)
	if err != nil {
		return nil, fmt.Errorf("%w", errs.ErrStoreUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("forest: item %d: %w", id, errs.ErrNotFound)
	}
	rec, err := forestrecord.DecodeVector(buf)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}
