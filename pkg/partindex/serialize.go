package partindex

import (
	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/distance"
)

// EntryDoc is the persisted-structure form of a single entry: which
// cluster it was assigned to and its tombstone flag. Vectors travel
// separately (in persisted chunks), joined back in by id on load.
type EntryDoc struct {
	ID         hybridann.VectorID
	Cluster    int
	Tombstoned bool
}

// ExportCentroids returns the trained centroid vectors.
func (ix *Index) ExportCentroids() [][]float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([][]float32, len(ix.centroids))
	for i, c := range ix.centroids {
		cp := make([]float32, len(c))
		copy(cp, c)
		out[i] = cp
	}
	return out
}

// ExportEntries snapshots every entry's cluster assignment and
// tombstone state for structural persistence.
func (ix *Index) ExportEntries() []EntryDoc {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	byID := make(map[hybridann.VectorID]int, len(ix.entries))
	for cluster, ids := range ix.invlists {
		for _, id := range ids {
			byID[id] = cluster
		}
	}

	docs := make([]EntryDoc, 0, len(ix.entries))
	for id, e := range ix.entries {
		docs = append(docs, EntryDoc{ID: id, Cluster: byID[id], Tombstoned: e.state == stateTombstoned})
	}
	return docs
}

// ExportVectors returns every entry's raw vector keyed by id (live and
// tombstoned alike) for chunked persistence.
func (ix *Index) ExportVectors() map[hybridann.VectorID][]float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[hybridann.VectorID][]float32, len(ix.entries))
	for id, e := range ix.entries {
		out[id] = e.vector
	}
	return out
}

// LoadIndex reconstructs a trained Index directly from exported
// centroids, entry/cluster assignments, and a joined id→vector map,
// restoring the exact inverted-list layout rather than retraining.
func LoadIndex(cfg Config, dist distance.Func, dimension int, centroids [][]float32, docs []EntryDoc, vectors map[hybridann.VectorID][]float32) *Index {
	ix := New(cfg, dist)
	ix.dimension = dimension
	ix.dimSet = dimension > 0
	ix.centroids = centroids
	ix.invlists = make([][]hybridann.VectorID, len(centroids))
	for i := range ix.invlists {
		ix.invlists[i] = []hybridann.VectorID{}
	}
	ix.trained = len(centroids) > 0

	for _, d := range docs {
		state := stateLive
		if d.Tombstoned {
			state = stateTombstoned
		}
		ix.entries[d.ID] = &entry{id: d.ID, vector: vectors[d.ID], state: state}
		if d.Cluster >= 0 && d.Cluster < len(ix.invlists) {
			ix.invlists[d.Cluster] = append(ix.invlists[d.Cluster], d.ID)
		}
	}
	return ix
}
