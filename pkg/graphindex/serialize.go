package graphindex

import (
	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/distance"
)

// NodeDoc is the persisted-structure form of a single node: its level,
// per-layer neighbor lists, and tombstone flag. Vectors travel
// separately (in persisted chunks), joined back in by id on load.
type NodeDoc struct {
	ID         hybridann.VectorID
	Level      int
	Neighbors  [][]hybridann.VectorID
	Tombstoned bool
}

// ExportNodes snapshots every node (live and tombstoned, vacuumed nodes
// are already gone) for structural persistence.
func (ix *Index) ExportNodes() []NodeDoc {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs := make([]NodeDoc, 0, len(ix.nodes))
	for _, n := range ix.nodes {
		neighbors := make([][]hybridann.VectorID, len(n.neighbors))
		for lc, nbs := range n.neighbors {
			cp := make([]hybridann.VectorID, len(nbs))
			copy(cp, nbs)
			neighbors[lc] = cp
		}
		docs = append(docs, NodeDoc{
			ID:         n.id,
			Level:      n.level,
			Neighbors:  neighbors,
			Tombstoned: n.state == stateTombstoned,
		})
	}
	return docs
}

// ExportVectors returns every node's raw vector, decoding quantized
// nodes through the installed Quantizer, keyed by id (live and
// tombstoned alike) for chunked persistence.
func (ix *Index) ExportVectors() map[hybridann.VectorID][]float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[hybridann.VectorID][]float32, len(ix.nodes))
	for id, n := range ix.nodes {
		out[id] = ix.vectorOf(n)
	}
	return out
}

// EntryPoint returns the current entry point id and whether one exists.
func (ix *Index) EntryPoint() (hybridann.VectorID, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.entryPoint, ix.hasEntry
}

// Dimension returns the index's established dimension and whether one
// has been established yet.
func (ix *Index) Dimension() (int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension, ix.dimSet
}

// LoadIndex reconstructs an Index directly from a prior ExportNodes
// snapshot and a joined id→vector map, bypassing Insert so the restored
// graph has the exact same shape (levels, neighbor lists, entry point)
// it was saved with rather than one Insert would reconstruct from
// scratch with fresh randomness.
func LoadIndex(cfg Config, dist distance.Func, dimension int, entryPoint hybridann.VectorID, hasEntry bool, docs []NodeDoc, vectors map[hybridann.VectorID][]float32) *Index {
	ix := New(cfg, dist)
	ix.dimension = dimension
	ix.dimSet = dimension > 0
	ix.entryPoint = entryPoint
	ix.hasEntry = hasEntry

	for _, d := range docs {
		state := stateLive
		if d.Tombstoned {
			state = stateTombstoned
		}
		ix.nodes[d.ID] = &node{
			id:        d.ID,
			vector:    vectors[d.ID],
			level:     d.Level,
			neighbors: d.Neighbors,
			state:     state,
		}
	}
	return ix
}
