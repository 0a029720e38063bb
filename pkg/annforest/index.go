// Package annforest is the top-level facade over the forest/kvstore/
// metric packages — Open, AddItem, the GetNNS family, Close — grounded
// on the teacher's pkg/turdb/db.go facade shape: one struct holding the
// storage handle and a closed-guard, delegating every real operation to
// a subordinate package.
package annforest

import (
	"fmt"
	"math/rand"
	"sync"

	"annforest/pkg/config"
	"annforest/pkg/errs"
	"annforest/pkg/forest"
	"annforest/pkg/forestrecord"
	"annforest/pkg/kvstore"
	"annforest/pkg/metric"
)

// Index is an open forest: its distance metric, its storage environment,
// and the tree count fixed at Create time.
type Index struct {
	mu sync.RWMutex

	opts      config.Options
	metric    metric.Metric
	env       *kvstore.Env
	treeCount int
	rng       *rand.Rand
	logger    forest.Logger
	closed    bool
}

// Open opens (or creates, if opts.Directory has no existing forest) an
// Index per opts. When the store is writable and its roots are absent,
// Open runs forest.Create and persists the §3.1 header record. When the
// store already has a header record, the caller's opts are validated
// against it unless opts.SkipHeaderCheck is set.
func Open(opts config.Options) (*Index, error) {
	if opts.F <= 0 || opts.K <= 0 || opts.TreeCount <= 0 {
		return nil, fmt.Errorf("annforest: open: %w", errs.ErrInvalidInput)
	}

	m, err := metric.ForName(opts.MetricTag())
	if err != nil {
		return nil, fmt.Errorf("annforest: open: %w", err)
	}

	var env *kvstore.Env
	if opts.ReadOnly {
		env, err = kvstore.OpenRead(opts.Directory, opts.MaxReaders)
	} else {
		env, err = kvstore.OpenWrite(opts.Directory, opts.MaxReaders, opts.MapSize)
	}
	if err != nil {
		return nil, fmt.Errorf("annforest: open: %w", err)
	}

	ix := &Index{
		opts:      opts,
		metric:    m,
		env:       env,
		treeCount: opts.TreeCount,
		rng:       rand.New(rand.NewSource(1)),
		logger:    forest.NopLogger{},
	}

	if err := ix.ensureHeader(); err != nil {
		env.Close()
		return nil, err
	}

	return ix, nil
}

// Verbose switches the index's diagnostic sink between a no-op and a
// log/slog-backed Logger (forest.SlogLogger using slog.Default()).
func (ix *Index) Verbose(on bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if on {
		ix.logger = forest.SlogLogger{L: defaultSlog()}
	} else {
		ix.logger = forest.NopLogger{}
	}
}

// AddItem adds one item, opening and committing its own write
// transaction (spec.md §4.4). It is an error to call AddItem on an index
// opened ReadOnly.
func (ix *Index) AddItem(id int32, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return errs.ErrClosed
	}
	if len(vec) != ix.opts.F {
		return fmt.Errorf("annforest: add item %d: %w", id, errs.ErrInvalidInput)
	}
	return forest.AddItem(ix.env, ix.opts.K, ix.metric, ix.rng, ix.logger, ix.treeCount, id, vec)
}

// AddItemBatch adds every (id, vector) pair in order, each still
// committing in its own write transaction — a convenience wrapper
// grounded on the original Python binding's add_item_batch, not a new
// transaction shape (SPEC_FULL.md §11).
func (ix *Index) AddItemBatch(ids []int32, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("annforest: add item batch: %w", errs.ErrInvalidInput)
	}
	for i := range ids {
		if err := ix.AddItem(ids[i], vecs[i]); err != nil {
			return fmt.Errorf("annforest: add item batch at index %d: %w", i, err)
		}
	}
	return nil
}

// Build is a no-op retained for API parity with the original binding,
// which defers all indexing work to AddItem; spec.md has no explicit
// build phase.
func (ix *Index) Build(q int) error { return nil }

// Save is a no-op: the index is already persisted in the KV store after
// every AddItem, unlike the original's in-memory-then-save workflow.
func (ix *Index) Save(path string) error { return nil }

// Load is a no-op for the same reason as Save.
func (ix *Index) Load(path string) error { return nil }

// Unload is a no-op: there is no separate in-memory working set to
// release ahead of Close.
func (ix *Index) Unload() error { return nil }

// Reinitialize is a no-op: nothing to reset between builds since there
// is no build phase.
func (ix *Index) Reinitialize() error { return nil }

// GetDistance returns the metric's distance between two stored items.
func (ix *Index) GetDistance(i, j int32) (float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return 0, errs.ErrClosed
	}
	vi, err := ix.getItemLocked(i)
	if err != nil {
		return 0, err
	}
	vj, err := ix.getItemLocked(j)
	if err != nil {
		return 0, err
	}
	return ix.metric.Distance(vi, vj), nil
}

// GetItem returns the raw stored vector for id.
func (ix *Index) GetItem(id int32) ([]float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, errs.ErrClosed
	}
	return ix.getItemLocked(id)
}

func (ix *Index) getItemLocked(id int32) ([]float32, error) {
	rtxn, err := ix.env.BeginRead()
	if err != nil {
		return nil, fmt.Errorf("annforest: get item %d: %w", id, err)
	}
	defer rtxn.Discard()

	buf, ok, err := rtxn.Get(kvstore.Raw, id)
	if err != nil {
		return nil, fmt.Errorf("annforest: get item %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("annforest: item %d: %w", id, errs.ErrNotFound)
	}
	rec, err := forestrecord.DecodeVector(buf)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// GetNNSByItem returns up to n approximate nearest neighbor ids of the
// stored item id. distances is nil unless withDist is true.
func (ix *Index) GetNNSByItem(id int32, n, searchK int, withDist bool) ([]int32, []float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, nil, errs.ErrClosed
	}
	ids, dists, err := forest.QueryByItem(ix.env, ix.metric, ix.treeCount, n, searchK, id)
	if err != nil {
		return nil, nil, err
	}
	if !withDist {
		dists = nil
	}
	return ids, dists, nil
}

// GetNNSByVector returns up to n approximate nearest neighbor ids of an
// arbitrary query vector. distances is nil unless withDist is true.
func (ix *Index) GetNNSByVector(v []float32, n, searchK int, withDist bool) ([]int32, []float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, nil, errs.ErrClosed
	}
	if len(v) != ix.opts.F {
		return nil, nil, fmt.Errorf("annforest: query: %w", errs.ErrInvalidInput)
	}
	ids, dists, err := forest.QueryByVector(ix.env, ix.metric, ix.treeCount, n, searchK, v)
	if err != nil {
		return nil, nil, err
	}
	if !withDist {
		dists = nil
	}
	return ids, dists, nil
}

// GetNItems returns one past the largest item id ever added (matching
// the original's get_n_items = max id + 1), or 0 if nothing was added.
func (ix *Index) GetNItems() (int32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return 0, errs.ErrClosed
	}
	rtxn, err := ix.env.BeginRead()
	if err != nil {
		return 0, fmt.Errorf("annforest: get n items: %w", err)
	}
	defer rtxn.Discard()

	last, ok, err := rtxn.LastKey(kvstore.Raw)
	if err != nil {
		return 0, fmt.Errorf("annforest: get n items: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return last + 1, nil
}

// DisplayNode formats a tree node for diagnostic inspection.
func (ix *Index) DisplayNode(i int32) (string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return "", errs.ErrClosed
	}
	rtxn, err := ix.env.BeginRead()
	if err != nil {
		return "", fmt.Errorf("annforest: display node %d: %w", i, err)
	}
	defer rtxn.Discard()

	buf, ok, err := rtxn.Get(kvstore.Tree, i)
	if err != nil {
		return "", fmt.Errorf("annforest: display node %d: %w", i, err)
	}
	if !ok {
		return "", fmt.Errorf("annforest: node %d: %w", i, errs.ErrNotFound)
	}
	node, err := forestrecord.DecodeNode(buf)
	if err != nil {
		return "", err
	}
	if node.Leaf {
		return fmt.Sprintf("node %d: leaf items=%v", node.Index, node.Items), nil
	}
	return fmt.Sprintf("node %d: internal left=%d right=%d t=%f", node.Index, node.Left, node.Right, node.T), nil
}

// DisplayRaw formats a raw item vector for diagnostic inspection.
func (ix *Index) DisplayRaw(id int32) (string, error) {
	v, err := ix.GetItem(id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("item %d: %v", id, v), nil
}

// Close releases the underlying store handle. It is an error to call
// Close more than once.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return errs.ErrClosed
	}
	ix.closed = true
	return ix.env.Close()
}
