package forest

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"annforest/pkg/errs"
	"annforest/pkg/forestrecord"
	"annforest/pkg/kvstore"
	"annforest/pkg/metric"
)

// pqItem is one candidate node awaiting expansion, ranked by d — the
// running upper bound the original source propagates via
// min(d, ±margin) as the descent proceeds deeper into the forest.
type pqItem struct {
	d    float32
	node int32
}

// maxHeap is a container/heap max-heap over pqItem.d, matching the
// original's std::priority_queue<pair<T,S>> (max by default). No pack
// example ships a priority-queue library (see DESIGN.md); container/heap
// over this small concrete struct mirrors the teacher's own preference
// for concrete types over generic containers.
type maxHeap []pqItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].d > h[j].d }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(pqItem)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// QueryByVector implements spec.md §4.5's priority-queue multi-tree
// search. search_k is the candidate budget; if non-positive it defaults
// to n*treeCount as in the original. Results are returned sorted by true
// distance to v: at most n of them, fewer when the forest holds fewer
// items or the searchK budget gathers fewer candidates.
func QueryByVector(env *kvstore.Env, m metric.Metric, treeCount, n, searchK int, v []float32) ([]int32, []float32, error) {
	rtxn, err := env.BeginRead()
	if err != nil {
		return nil, nil, fmt.Errorf("forest: query: %w", err)
	}
	defer rtxn.Discard()

	if searchK <= 0 {
		searchK = n * treeCount
	}

	pq := &maxHeap{}
	heap.Init(pq)
	for i := 0; i < treeCount; i++ {
		heap.Push(pq, pqItem{d: float32(math.Inf(1)), node: int32(i)})
	}

	seen := make(map[int32]bool)
	var candidates []int32

	for len(candidates) < searchK && pq.Len() > 0 {
		top := heap.Pop(pq).(pqItem)

		buf, ok, err := rtxn.Get(kvstore.Tree, top.node)
		if err != nil {
			return nil, nil, fmt.Errorf("forest: query: %w", err)
		}
		if !ok {
			continue
		}
		node, err := forestrecord.DecodeNode(buf)
		if err != nil {
			return nil, nil, err
		}

		if node.Leaf {
			for _, id := range node.Items {
				if !seen[id] {
					seen[id] = true
					candidates = append(candidates, id)
				}
			}
			continue
		}

		margin := m.Margin(metric.Hyperplane{V: node.V, T: node.T}, v)
		heap.Push(pq, pqItem{d: minf(top.d, margin), node: node.Right})
		heap.Push(pq, pqItem{d: minf(top.d, -margin), node: node.Left})
	}

	type scored struct {
		id int32
		d  float32
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		cbuf, ok, err := rtxn.Get(kvstore.Raw, id)
		if err != nil {
			return nil, nil, fmt.Errorf("forest: query: %w", err)
		}
		if !ok {
			continue
		}
		rec, err := forestrecord.DecodeVector(cbuf)
		if err != nil {
			return nil, nil, err
		}
		scoredList = append(scoredList, scored{id: id, d: m.Distance(v, rec.Data)})
	}

	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].d < scoredList[j].d })

	p := n
	if p > len(scoredList) {
		p = len(scoredList)
	}
	ids := make([]int32, p)
	dists := make([]float32, p)
	for i := 0; i < p; i++ {
		ids[i] = scoredList[i].id
		dists[i] = m.NormalizedDistance(scoredList[i].d)
	}
	return ids, dists, nil
}

// QueryByItem reads the raw vector for id and delegates to
// QueryByVector, matching the original's get_nns_by_item.
func QueryByItem(env *kvstore.Env, m metric.Metric, treeCount, n, searchK int, id int32) ([]int32, []float32, error) {
	rtxn, err := env.BeginRead()
	if err != nil {
		return nil, nil, fmt.Errorf("forest: query: %w", err)
	}
	buf, ok, err := rtxn.Get(kvstore.Raw, id)
	rtxn.Discard()
	if err != nil {
		return nil, nil, fmt.Errorf("forest: query: %w", err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("forest: item %d: %w", id, errs.ErrNotFound)
	}
	rec, err := forestrecord.DecodeVector(buf)
	if err != nil {
		return nil, nil, err
	}
	return QueryByVector(env, m, treeCount, n, searchK, rec.Data)
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
