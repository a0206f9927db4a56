// Package graphindex implements a multi-layer proximity graph ANN index
// (HNSW-style), adapted from the teacher's pkg/index/hnsw.go: greedy
// descent from an entry point, best-first search per layer bounded by ef,
// and neighbor pruning that keeps the nearest candidates.
package graphindex

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/distance"
)

// Quantizer optionally compresses stored vectors, trading memory for a
// decode step on every distance computation against a quantized node.
type Quantizer interface {
	Encode(vec []float32) ([]byte, error)
	Decode(encoded []byte) ([]float32, error)
}

type nodeState int

const (
	stateLive nodeState = iota
	stateTombstoned
)

type node struct {
	id        hybridann.VectorID
	vector    []float32
	quantized []byte
	level     int
	neighbors [][]hybridann.VectorID
	state     nodeState
}

// Config holds the parameters governing graph shape and insertion cost.
type Config struct {
	MaxDegree       int   // M: max bidirectional links per node above layer 0
	MaxDegreeLayer0 int   // max links at layer 0 (typically 2*MaxDegree)
	EfConstruction  int   // beam width used while inserting
	RngSeed         int64 // deterministic level assignment when non-zero
}

// DefaultConfig returns reasonable defaults matching the teacher's
// NewHNSW(M=16, efConstruction=200, ...) call sites.
func DefaultConfig() Config {
	return Config{MaxDegree: 16, MaxDegreeLayer0: 32, EfConstruction: 200, RngSeed: 0}
}

// Index is a graph ANN index over fixed-dimension embeddings.
type Index struct {
	cfg       Config
	dist      distance.Func
	quantizer Quantizer

	mu         sync.RWMutex
	nodes      map[hybridann.VectorID]*node
	entryPoint hybridann.VectorID
	hasEntry   bool
	dimension  int
	dimSet     bool
	rng        *rand.Rand
}

// New creates an empty graph index using dist as the distance metric.
func New(cfg Config, dist distance.Func) *Index {
	seed := cfg.RngSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Index{
		cfg:   cfg,
		dist:  dist,
		nodes: make(map[hybridann.VectorID]*node),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// SetQuantizer installs an optional compression codec; vectors inserted
// afterward are stored quantized instead of raw.
func (ix *Index) SetQuantizer(q Quantizer) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.quantizer = q
}

func (ix *Index) selectLevel() int {
	level := 0
	for ix.rng.Float64() < 0.5 {
		level++
		if level > 16 {
			break
		}
	}
	return level
}

func (ix *Index) distanceTo(query []float32, n *node) float32 {
	if n.vector != nil {
		return ix.dist(query, n.vector)
	}
	if n.quantized != nil && ix.quantizer != nil {
		vec, err := ix.quantizer.Decode(n.quantized)
		if err == nil {
			return ix.dist(query, vec)
		}
	}
	return float32(1e38)
}

// Insert adds id/vec to the index. It fails with ErrDuplicateVector if id
// is already present (live or tombstoned — a tombstoned id must wait for
// Vacuum before it can be reinserted) and ErrDimensionMismatch if vec's
// length differs from the index's established dimension.
func (ix *Index) Insert(id hybridann.VectorID, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dimSet && len(vec) != ix.dimension {
		return hybridann.WrapError("graphindex.insert", hybridann.ErrDimensionMismatch)
	}
	if _, exists := ix.nodes[id]; exists {
		return hybridann.WrapError("graphindex.insert", hybridann.ErrDuplicateVector)
	}
	if !ix.dimSet {
		ix.dimension = len(vec)
		ix.dimSet = true
	}

	var quantized []byte
	stored := vec
	if ix.quantizer != nil {
		if q, err := ix.quantizer.Encode(vec); err == nil {
			quantized = q
			stored = nil
		}
	}

	level := ix.selectLevel()
	n := &node{id: id, vector: stored, quantized: quantized, level: level, neighbors: make([][]hybridann.VectorID, level+1)}
	for i := 0; i <= level; i++ {
		n.neighbors[i] = make([]hybridann.VectorID, 0)
	}
	ix.nodes[id] = n

	if !ix.hasEntry {
		ix.entryPoint = id
		ix.hasEntry = true
		return nil
	}

	currNearest := []hybridann.VectorID{ix.entryPoint}
	entryNode := ix.nodes[ix.entryPoint]
	for lc := entryNode.level; lc > level; lc-- {
		currNearest = ix.searchLayerClosest(vec, currNearest, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := ix.cfg.MaxDegree
		if lc == 0 {
			m = ix.cfg.MaxDegreeLayer0
		}

		candidates := ix.searchLayer(vec, currNearest, ix.cfg.EfConstruction, lc)
		neighbors := ix.selectNeighborsHeuristic(vec, candidates, m)

		n.neighbors[lc] = neighbors
		for _, nb := range neighbors {
			ix.addConnection(nb, id, lc)

			nbNode := ix.nodes[nb]
			maxConn := ix.cfg.MaxDegree
			if lc == 0 {
				maxConn = ix.cfg.MaxDegreeLayer0
			}
			if lc < len(nbNode.neighbors) && len(nbNode.neighbors[lc]) > maxConn {
				nbVec := nbNode.vector
				if nbVec == nil && nbNode.quantized != nil && ix.quantizer != nil {
					nbVec, _ = ix.quantizer.Decode(nbNode.quantized)
				}
				if nbVec != nil {
					nbNode.neighbors[lc] = ix.selectNeighborsHeuristic(nbVec, nbNode.neighbors[lc], maxConn)
				}
			}
		}
		currNearest = neighbors
	}

	if level > ix.nodes[ix.entryPoint].level {
		ix.entryPoint = id
	}
	return nil
}

type heapItem struct {
	id   hybridann.VectorID
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any)         { *h = append(*h, x.(*heapItem)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs best-first search bounded by ef within a single
// layer, grounded on the teacher's dual candidates/dynamicList heap-pair
// pattern in pkg/index/hnsw.go.
func (ix *Index) searchLayer(query []float32, entryPoints []hybridann.VectorID, ef int, layer int) []hybridann.VectorID {
	visited := make(map[hybridann.VectorID]bool)
	candidates := &distHeap{}
	dynamicList := &distHeap{}

	for _, p := range entryPoints {
		d := ix.distanceTo(query, ix.nodes[p])
		heap.Push(candidates, &heapItem{id: p, dist: d})
		heap.Push(dynamicList, &heapItem{id: p, dist: -d})
		visited[p] = true
	}

	for candidates.Len() > 0 {
		if dynamicList.Len() > 0 {
			lowerBound := (*candidates)[0].dist
			if lowerBound > -(*dynamicList)[0].dist {
				break
			}
		}
		current := heap.Pop(candidates).(*heapItem)
		currentNode := ix.nodes[current.id]
		if layer >= len(currentNode.neighbors) {
			continue
		}
		for _, nb := range currentNode.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := ix.distanceTo(query, ix.nodes[nb])
			if d < -(*dynamicList)[0].dist || dynamicList.Len() < ef {
				heap.Push(candidates, &heapItem{id: nb, dist: d})
				heap.Push(dynamicList, &heapItem{id: nb, dist: -d})
				if dynamicList.Len() > ef {
					heap.Pop(dynamicList)
				}
			}
		}
	}

	result := make([]hybridann.VectorID, 0, dynamicList.Len())
	for dynamicList.Len() > 0 {
		item := heap.Pop(dynamicList).(*heapItem)
		result = append(result, item.id)
	}
	for i := 0; i < len(result)/2; i++ {
		result[i], result[len(result)-1-i] = result[len(result)-1-i], result[i]
	}
	return result
}

func (ix *Index) searchLayerClosest(query []float32, entryPoints []hybridann.VectorID, num int, layer int) []hybridann.VectorID {
	candidates := ix.searchLayer(query, entryPoints, num, layer)
	if len(candidates) > num {
		return candidates[:num]
	}
	return candidates
}

// selectNeighborsHeuristic keeps the m candidates closest to query, by
// ascending-distance truncation as in the teacher. Candidates are not
// compared with each other, so no diversity check is applied.
func (ix *Index) selectNeighborsHeuristic(query []float32, candidates []hybridann.VectorID, m int) []hybridann.VectorID {
	if len(candidates) <= m {
		return candidates
	}
	type distPair struct {
		id   hybridann.VectorID
		dist float32
	}
	pairs := make([]distPair, len(candidates))
	for i, c := range candidates {
		pairs[i] = distPair{id: c, dist: ix.distanceTo(query, ix.nodes[c])}
	}
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	result := make([]hybridann.VectorID, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		result = append(result, pairs[i].id)
	}
	return result
}

func (ix *Index) addConnection(from, to hybridann.VectorID, layer int) {
	fromNode, exists := ix.nodes[from]
	if !exists || layer >= len(fromNode.neighbors) {
		return
	}
	for _, nb := range fromNode.neighbors[layer] {
		if nb == to {
			return
		}
	}
	fromNode.neighbors[layer] = append(fromNode.neighbors[layer], to)
}

// Search returns up to k nearest ids to query, ascending by distance,
// excluding tombstoned nodes. Returns an empty result, not an error, on
// an empty index. Requesting more than the live count returns all live
// nodes. A higher ef never yields a worse (higher) average distance than
// a lower ef on the same dataset.
func (ix *Index) Search(query []float32, k, ef int) ([]hybridann.VectorID, []float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.dimSet && len(query) != ix.dimension {
		return nil, nil, hybridann.WrapError("graphindex.search", hybridann.ErrDimensionMismatch)
	}
	if !ix.hasEntry {
		return []hybridann.VectorID{}, []float32{}, nil
	}
	if ef < k {
		ef = k
	}

	entryNode := ix.nodes[ix.entryPoint]
	currNearest := []hybridann.VectorID{ix.entryPoint}
	for layer := entryNode.level; layer > 0; layer-- {
		currNearest = ix.searchLayerClosest(query, currNearest, 1, layer)
	}

	candidates := ix.searchLayer(query, currNearest, ef, 0)

	type result struct {
		id   hybridann.VectorID
		dist float32
	}
	results := make([]result, 0, len(candidates))
	for _, c := range candidates {
		n, exists := ix.nodes[c]
		if exists && n.state != stateTombstoned {
			results = append(results, result{id: c, dist: ix.distanceTo(query, n)})
		}
	}
	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].dist < results[i].dist {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	limit := k
	if limit > len(results) {
		limit = len(results)
	}
	ids := make([]hybridann.VectorID, limit)
	dists := make([]float32, limit)
	for i := 0; i < limit; i++ {
		ids[i] = results[i].id
		dists[i] = results[i].dist
	}
	return ids, dists, nil
}

// MarkDeleted tombstones id. Fails with ErrVectorNotFound if id was
// never inserted; idempotent on an id already tombstoned.
func (ix *Index) MarkDeleted(id hybridann.VectorID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n, exists := ix.nodes[id]
	if !exists {
		return hybridann.WrapError("graphindex.mark_deleted", hybridann.ErrVectorNotFound)
	}
	if n.state == stateTombstoned {
		return nil
	}
	n.state = stateTombstoned

	if ix.hasEntry && ix.entryPoint == id {
		ix.promoteEntryPointLocked()
	}
	return nil
}

func (ix *Index) promoteEntryPointLocked() {
	for nid, n := range ix.nodes {
		if n.state != stateTombstoned {
			ix.entryPoint = nid
			ix.hasEntry = true
			return
		}
	}
	ix.hasEntry = false
}

// IsDeleted reports whether id is currently tombstoned.
func (ix *Index) IsDeleted(id hybridann.VectorID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n, exists := ix.nodes[id]
	return exists && n.state == stateTombstoned
}

// VectorOf returns id's raw vector (decoding through the installed
// Quantizer when the node is stored quantized), used by the hybrid
// coordinator's migration path to carry a vector across to the
// partitioned side without requiring the caller to have kept a copy.
func (ix *Index) VectorOf(id hybridann.VectorID) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n, exists := ix.nodes[id]
	if !exists {
		return nil, false
	}
	return ix.vectorOf(n), true
}

// InsertItem pairs an id with its vector for BatchInsert.
type InsertItem struct {
	ID     hybridann.VectorID
	Vector []float32
}

// BatchResult aggregates per-item outcomes for a batch operation.
type BatchResult struct {
	Successful int
	Failed     int
	Errors     []hybridann.ItemError
}

// BatchInsert inserts every item, collecting a typed error for each
// failure instead of aborting the batch.
func (ix *Index) BatchInsert(items []InsertItem) BatchResult {
	var res BatchResult
	for _, item := range items {
		if err := ix.Insert(item.ID, item.Vector); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, hybridann.ItemError{ID: item.ID.String(), Err: err})
			continue
		}
		res.Successful++
	}
	return res
}

// BatchDelete marks every id deleted, collecting a typed error for each
// failure instead of aborting the batch.
func (ix *Index) BatchDelete(ids []hybridann.VectorID) BatchResult {
	var res BatchResult
	for _, id := range ids {
		if err := ix.MarkDeleted(id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, hybridann.ItemError{ID: id.String(), Err: err})
			continue
		}
		res.Successful++
	}
	return res
}

// Vacuum physically removes tombstoned nodes, rewires neighbor lists to
// drop references to them, promotes a new entry point if needed, and
// returns the number of nodes removed.
func (ix *Index) Vacuum() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for id, n := range ix.nodes {
		if n.state == stateTombstoned {
			delete(ix.nodes, id)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	for _, n := range ix.nodes {
		for lc := range n.neighbors {
			n.neighbors[lc] = filterRemoved(n.neighbors[lc], ix.nodes)
		}
	}

	if ix.hasEntry {
		if _, ok := ix.nodes[ix.entryPoint]; !ok {
			ix.promoteEntryPointLocked()
		}
	}
	return removed
}

func filterRemoved(ids []hybridann.VectorID, nodes map[hybridann.VectorID]*node) []hybridann.VectorID {
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// ActiveCount returns the number of non-tombstoned nodes.
func (ix *Index) ActiveCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	count := 0
	for _, n := range ix.nodes {
		if n.state != stateTombstoned {
			count++
		}
	}
	return count
}

// Size returns the total node count, including tombstoned nodes not yet
// vacuumed.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Stats reports index composition, grounded on the teacher's HNSW.Stats.
func (ix *Index) Stats() map[string]any {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.nodes)
	active := 0
	edges := 0
	maxLevel := 0
	levelDist := make(map[int]int)

	for _, n := range ix.nodes {
		if n.state != stateTombstoned {
			active++
			if n.level > maxLevel {
				maxLevel = n.level
			}
			levelDist[n.level]++
			for _, nbs := range n.neighbors {
				edges += len(nbs)
			}
		}
	}
	avg := 0.0
	if active > 0 {
		avg = float64(edges) / float64(active)
	}
	return map[string]any{
		"total_nodes":        total,
		"active_nodes":       active,
		"tombstoned_nodes":   total - active,
		"total_edges":        edges,
		"avg_edges_per_node": avg,
		"max_level":          maxLevel,
		"level_distribution": levelDist,
		"entry_point":        fmt.Sprintf("%v", ix.entryPoint),
		"max_degree":         ix.cfg.MaxDegree,
		"ef_construction":    ix.cfg.EfConstruction,
	}
}
