package persist

import (
	"context"
	"encoding/json"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/blobstore"
	"github.com/liliang-cn/hybridann/pkg/chunkstore"
	"github.com/liliang-cn/hybridann/pkg/distance"
	"github.com/liliang-cn/hybridann/pkg/graphindex"
	"github.com/liliang-cn/hybridann/pkg/partindex"
)

// LoadedIndexes is the reconstructed form SourceIndexes travels as after
// a round trip through LoadIndexChunked.
type LoadedIndexes struct {
	Graph       *graphindex.Index
	Partitioned *partindex.Index
	Tombstones  map[hybridann.VectorID]bool
	Manifest    Manifest
}

// LoadIndexChunked reads the manifest at basePath, rejects it if its
// version exceeds CurrentVersion, loads both structure documents and
// every chunk eagerly through loader, and reconstructs both sub-indices
// exactly as they were saved (no re-insertion, so levels/neighbor
// lists/cluster assignments are preserved bit-for-bit).
func LoadIndexChunked(ctx context.Context, loader *chunkstore.ChunkLoader, store blobstore.Store, basePath string, graphCfg graphindex.Config, partCfg partindex.Config, dist distance.Func) (*LoadedIndexes, error) {
	raw, err := store.Get(ctx, manifestPath(basePath))
	if err != nil {
		return nil, hybridann.WrapError("persist.load", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, hybridann.WrapError("persist.load", hybridann.ErrCorruption)
	}
	if manifest.Version > CurrentVersion {
		return nil, hybridann.WrapError("persist.load", hybridann.ErrVersionUnsupported)
	}
	if manifest.Version < MinSupportedVersion {
		return nil, hybridann.WrapError("persist.load", hybridann.ErrVersionUnsupported)
	}

	vectors := make(map[hybridann.VectorID][]float32)
	for _, cd := range manifest.Chunks {
		chunk, err := loader.LoadChunk(ctx, cd.Path)
		if err != nil {
			return nil, hybridann.WrapError("persist.load", err)
		}
		for _, e := range chunk.Entries {
			vectors[e.ID] = e.Vector
		}
	}

	tombstones := make(map[hybridann.VectorID]bool, len(manifest.DeletedVectors))
	for _, hexID := range manifest.DeletedVectors {
		id, err := idFromHex(hexID)
		if err != nil {
			return nil, err
		}
		tombstones[id] = true
	}

	var graphIdx *graphindex.Index
	if manifest.GraphStructure != nil {
		graphIdx, err = loadGraphStructure(manifest.GraphStructure, graphCfg, dist, vectors)
		if err != nil {
			return nil, err
		}
	} else {
		graphIdx = graphindex.New(graphCfg, dist)
	}

	var partIdx *partindex.Index
	if manifest.PartitionedStructure != nil {
		partIdx, err = loadPartStructure(manifest.PartitionedStructure, partCfg, dist, vectors)
		if err != nil {
			return nil, err
		}
	} else {
		partIdx = partindex.New(partCfg, dist)
	}

	return &LoadedIndexes{Graph: graphIdx, Partitioned: partIdx, Tombstones: tombstones, Manifest: manifest}, nil
}

func loadGraphStructure(doc *GraphStructureDoc, cfg graphindex.Config, dist distance.Func, vectors map[hybridann.VectorID][]float32) (*graphindex.Index, error) {
	var entryPoint hybridann.VectorID
	if doc.HasEntry {
		id, err := idFromHex(doc.EntryPoint)
		if err != nil {
			return nil, err
		}
		entryPoint = id
	}

	docs := make([]graphindex.NodeDoc, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		id, err := idFromHex(n.ID)
		if err != nil {
			return nil, err
		}
		neighbors := make([][]hybridann.VectorID, len(n.Neighbors))
		for lc, row := range n.Neighbors {
			ids := make([]hybridann.VectorID, len(row))
			for i, hexID := range row {
				nid, err := idFromHex(hexID)
				if err != nil {
					return nil, err
				}
				ids[i] = nid
			}
			neighbors[lc] = ids
		}
		docs = append(docs, graphindex.NodeDoc{ID: id, Level: n.Level, Neighbors: neighbors, Tombstoned: n.Tombstoned})
	}

	return graphindex.LoadIndex(cfg, dist, doc.Dimension, entryPoint, doc.HasEntry, docs, vectors), nil
}

func loadPartStructure(doc *PartitionedStructureDoc, cfg partindex.Config, dist distance.Func, vectors map[hybridann.VectorID][]float32) (*partindex.Index, error) {
	docs := make([]partindex.EntryDoc, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		id, err := idFromHex(e.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, partindex.EntryDoc{ID: id, Cluster: e.Cluster, Tombstoned: e.Tombstoned})
	}
	return partindex.LoadIndex(cfg, dist, doc.Dimension, doc.Centroids, docs, vectors), nil
}
