// Package hotindex implements the per-principal approximate
// nearest-neighbour shard described in spec.md §4.2. The graph itself —
// HNSWNode, Insert, Search, the gob wire format — is adapted directly
// from the teacher library's pkg/index/hnsw.go, generalized to be owned
// per-shard by a ShardManager (shard.go) instead of process-global.
package hotindex

import (
	"container/heap"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"
)

// node is one point in the HNSW graph.
type node struct {
	Slot      int
	Vector    []float32
	Level     int
	Neighbors [][]int
	Deleted   bool
}

// hnsw is a single principal's HNSW graph. It does not lock itself;
// callers (ShardManager) hold the per-principal lock.
type hnsw struct {
	M              int
	MaxM           int
	EfConstruction int
	dim            int

	Nodes      []*node // indexed by Slot, nil entries never occur (soft delete only)
	EntryPoint int     // -1 when empty

	rng *rand.Rand
}

func newHNSW(dim, m, efConstruction int) *hnsw {
	seed := time.Now().UnixNano()
	return &hnsw{
		M:              m,
		MaxM:           m * 2,
		EfConstruction: efConstruction,
		dim:            dim,
		EntryPoint:     -1,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// distance is Euclidean (L2) distance, the square root of the summed
// squared differences, matching the library
// distance convention pinned by spec.md §9's Open Question resolution.
func distance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

func (h *hnsw) selectLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 {
		level++
		if level > 16 {
			break
		}
	}
	return level
}

// insert adds vector to the graph and returns the pre-insertion node
// count (the slot just assigned), per spec.md §4.2's Add contract.
func (h *hnsw) insert(vector []float32) int {
	slot := len(h.Nodes)
	level := h.selectLevel()
	n := &node{
		Slot:      slot,
		Vector:    vector,
		Level:     level,
		Neighbors: make([][]int, level+1),
	}
	for i := range n.Neighbors {
		n.Neighbors[i] = []int{}
	}
	h.Nodes = append(h.Nodes, n)

	if h.EntryPoint == -1 {
		h.EntryPoint = slot
		return slot
	}

	entry := h.Nodes[h.EntryPoint]
	curr := []int{h.EntryPoint}
	for lc := entry.Level; lc > level; lc-- {
		curr = h.searchLayerClosest(vector, curr, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := h.M
		if lc == 0 {
			m = h.MaxM
		}
		candidates := h.searchLayer(vector, curr, h.EfConstruction, lc)
		neighbors := h.selectNeighbors(vector, candidates, m)
		n.Neighbors[lc] = neighbors

		for _, nb := range neighbors {
			h.addConnection(nb, slot, lc)
			nbNode := h.Nodes[nb]
			maxConn := h.M
			if lc == 0 {
				maxConn = h.MaxM
			}
			if lc < len(nbNode.Neighbors) && len(nbNode.Neighbors[lc]) > maxConn {
				nbNode.Neighbors[lc] = h.selectNeighbors(nbNode.Vector, nbNode.Neighbors[lc], maxConn)
			}
		}
		curr = neighbors
	}

	if level > h.Nodes[h.EntryPoint].Level {
		h.EntryPoint = slot
	}

	return slot
}

type heapItem struct {
	slot int
	dist float32
}

type distHeap []*heapItem

func (d distHeap) Len() int            { return len(d) }
func (d distHeap) Less(i, j int) bool  { return d[i].dist < d[j].dist }
func (d distHeap) Swap(i, j int)       { d[i], d[j] = d[j], d[i] }
func (d *distHeap) Push(x interface{}) { *d = append(*d, x.(*heapItem)) }
func (d *distHeap) Pop() interface{} {
	old := *d
	n := len(old)
	item := old[n-1]
	*d = old[:n-1]
	return item
}

func (h *hnsw) searchLayer(query []float32, entry []int, ef int, layer int) []int {
	visited := make(map[int]bool, ef*2)
	candidates := &distHeap{}
	nearest := &distHeap{} // max-heap via negated distance

	for _, p := range entry {
		d := distance(query, h.Nodes[p].Vector)
		heap.Push(candidates, &heapItem{p, d})
		heap.Push(nearest, &heapItem{p, -d})
		visited[p] = true
	}

	for candidates.Len() > 0 {
		if nearest.Len() > 0 {
			lowerBound := (*candidates)[0].dist
			if lowerBound > -(*nearest)[0].dist {
				break
			}
		}
		cur := heap.Pop(candidates).(*heapItem)
		curNode := h.Nodes[cur.slot]
		if layer >= len(curNode.Neighbors) {
			continue
		}
		for _, nb := range curNode.Neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := distance(query, h.Nodes[nb].Vector)
			if nearest.Len() < ef || d < -(*nearest)[0].dist {
				heap.Push(candidates, &heapItem{nb, d})
				heap.Push(nearest, &heapItem{nb, -d})
				if nearest.Len() > ef {
					heap.Pop(nearest)
				}
			}
		}
	}

	result := make([]int, 0, nearest.Len())
	for nearest.Len() > 0 {
		result = append(result, heap.Pop(nearest).(*heapItem).slot)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (h *hnsw) searchLayerClosest(query []float32, entry []int, num, layer int) []int {
	c := h.searchLayer(query, entry, num, layer)
	if len(c) > num {
		return c[:num]
	}
	return c
}

func (h *hnsw) selectNeighbors(query []float32, candidates []int, m int) []int {
	if len(candidates) <= m {
		out := make([]int, len(candidates))
		copy(out, candidates)
		return out
	}
	type pair struct {
		slot int
		dist float32
	}
	pairs := make([]pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = pair{c, distance(query, h.Nodes[c].Vector)}
	}
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	out := make([]int, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		out = append(out, pairs[i].slot)
	}
	return out
}

func (h *hnsw) addConnection(from, to, layer int) {
	fromNode := h.Nodes[from]
	if layer >= len(fromNode.Neighbors) {
		return
	}
	for _, nb := range fromNode.Neighbors[layer] {
		if nb == to {
			return
		}
	}
	fromNode.Neighbors[layer] = append(fromNode.Neighbors[layer], to)
}

// search returns at most min(k, live node count) (slot, distance) pairs,
// ordered nearest-first, using the library distances directly (no
// exact-rerank on reconstructed vectors — see spec.md §9's Open Question).
func (h *hnsw) search(query []float32, k, ef int) ([]int, []float32) {
	if h.EntryPoint == -1 {
		return []int{}, []float32{}
	}

	entry := h.Nodes[h.EntryPoint]
	curr := []int{h.EntryPoint}
	for layer := entry.Level; layer > 0; layer-- {
		curr = h.searchLayerClosest(query, curr, 1, layer)
	}

	candidates := h.searchLayer(query, curr, ef, 0)

	type result struct {
		slot int
		dist float32
	}
	results := make([]result, 0, len(candidates))
	for _, c := range candidates {
		n := h.Nodes[c]
		if n.Deleted {
			continue
		}
		results = append(results, result{c, distance(query, n.Vector)})
	}
	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].dist < results[i].dist {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if k > len(results) {
		k = len(results)
	}
	slots := make([]int, k)
	dists := make([]float32, k)
	for i := 0; i < k; i++ {
		slots[i] = results[i].slot
		dists[i] = results[i].dist
	}
	return slots, dists
}

func (h *hnsw) delete(slot int) bool {
	if slot < 0 || slot >= len(h.Nodes) {
		return false
	}
	h.Nodes[slot].Deleted = true
	if h.EntryPoint == slot {
		h.EntryPoint = -1
		for i, n := range h.Nodes {
			if !n.Deleted {
				h.EntryPoint = i
				break
			}
		}
	}
	return true
}

func (h *hnsw) size() int {
	n := 0
	for _, node := range h.Nodes {
		if !node.Deleted {
			n++
		}
	}
	return n
}

// gobShard is the on-disk representation used by Save/Load, kept
// independent of the in-memory hnsw struct's unexported fields so the
// wire format stays stable.
type gobShard struct {
	M              int
	MaxM           int
	EfConstruction int
	Dim            int
	EntryPoint     int
	Nodes          []*node
}

func (h *hnsw) save(w io.Writer) error {
	enc := gob.NewEncoder(w)
	g := gobShard{
		M:              h.M,
		MaxM:           h.MaxM,
		EfConstruction: h.EfConstruction,
		Dim:            h.dim,
		EntryPoint:     h.EntryPoint,
		Nodes:          h.Nodes,
	}
	if err := enc.Encode(&g); err != nil {
		return fmt.Errorf("encode shard: %w", err)
	}
	return nil
}

func (h *hnsw) load(r io.Reader) error {
	dec := gob.NewDecoder(r)
	var g gobShard
	if err := dec.Decode(&g); err != nil {
		return fmt.Errorf("decode shard: %w", err)
	}
	h.M = g.M
	h.MaxM = g.MaxM
	h.EfConstruction = g.EfConstruction
	h.dim = g.Dim
	h.EntryPoint = g.EntryPoint
	h.Nodes = g.Nodes
	return nil
}
