package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/blobstore"
	"github.com/liliang-cn/hybridann/pkg/chunkstore"
	"github.com/liliang-cn/hybridann/pkg/graphindex"
	"github.com/liliang-cn/hybridann/pkg/partindex"
)

// DefaultChunkSize is the target vector count per chunk (spec.md §3:
// "target size ~10,000 vectors").
const DefaultChunkSize = 10000

// SourceIndexes bundles the two sub-indices and the hybrid-level
// tombstone set that SaveIndexChunked writes out together.
type SourceIndexes struct {
	Graph       *graphindex.Index
	Partitioned *partindex.Index
	Tombstones  map[hybridann.VectorID]bool
}

func manifestPath(basePath string) string { return basePath + "/manifest.json" }
func chunkPath(basePath, chunkID string) string {
	return basePath + "/chunks/" + chunkID + ".bin"
}
func graphStructurePath(basePath string) string { return basePath + "/graph_structure.json" }
func partStructurePath(basePath string) string  { return basePath + "/partitioned_structure.json" }

// SaveIndexChunked partitions every live+tombstoned vector from both
// sub-indices into ≤chunkSize chunks, writes each under basePath,
// serializes both structure documents, and writes a root manifest at
// CurrentVersion. Chunk ids are sequence numbers (chunk-000000,
// chunk-000001, ...), not content hashes, so a later save under the same
// basePath writes to the same chunk paths and overwrites the previous
// save's chunks.
func SaveIndexChunked(ctx context.Context, src SourceIndexes, store blobstore.Store, basePath string, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	vectors := make(map[hybridann.VectorID][]float32)
	if src.Graph != nil {
		for id, v := range src.Graph.ExportVectors() {
			vectors[id] = v
		}
	}
	if src.Partitioned != nil {
		for id, v := range src.Partitioned.ExportVectors() {
			vectors[id] = v
		}
	}

	ids := make([]hybridann.VectorID, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })

	var chunkDescs []ChunkDescriptor
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunkID := fmt.Sprintf("chunk-%06d", start/chunkSize)
		c := &chunkstore.Chunk{
			ChunkID:   chunkID,
			RangeLow:  uint64(start),
			RangeHigh: uint64(end - 1),
		}
		for _, id := range ids[start:end] {
			c.Entries = append(c.Entries, chunkstore.ChunkEntry{ID: id, Vector: vectors[id]})
		}
		data, err := chunkstore.EncodeChunk(c)
		if err != nil {
			return hybridann.WrapError("persist.save", err)
		}
		path := chunkPath(basePath, chunkID)
		if err := store.Put(ctx, path, data); err != nil {
			return hybridann.WrapError("persist.save", err)
		}
		chunkDescs = append(chunkDescs, ChunkDescriptor{ID: chunkID, Path: path, Count: len(c.Entries)})
	}

	var graphStruct *GraphStructureDoc
	if src.Graph != nil {
		graphStruct = exportGraphStructure(src.Graph)
		data, err := json.Marshal(graphStruct)
		if err != nil {
			return hybridann.WrapError("persist.save", err)
		}
		if err := store.Put(ctx, graphStructurePath(basePath), data); err != nil {
			return hybridann.WrapError("persist.save", err)
		}
	}

	var partStruct *PartitionedStructureDoc
	if src.Partitioned != nil {
		partStruct = exportPartStructure(src.Partitioned)
		data, err := json.Marshal(partStruct)
		if err != nil {
			return hybridann.WrapError("persist.save", err)
		}
		if err := store.Put(ctx, partStructurePath(basePath), data); err != nil {
			return hybridann.WrapError("persist.save", err)
		}
	}

	deleted := make([]string, 0, len(src.Tombstones))
	for id, d := range src.Tombstones {
		if d {
			deleted = append(deleted, id.Hex())
		}
	}
	sort.Strings(deleted)

	manifest := Manifest{
		Version:              CurrentVersion,
		ChunkSize:            chunkSize,
		TotalVectors:         len(ids),
		Chunks:               chunkDescs,
		GraphStructure:       graphStruct,
		PartitionedStructure: partStruct,
		DeletedVectors:       deleted,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return hybridann.WrapError("persist.save", err)
	}
	if err := store.Put(ctx, manifestPath(basePath), data); err != nil {
		return hybridann.WrapError("persist.save", err)
	}
	return nil
}

func exportGraphStructure(ix *graphindex.Index) *GraphStructureDoc {
	dim, _ := ix.Dimension()
	entry, hasEntry := ix.EntryPoint()
	docs := ix.ExportNodes()

	nodes := make([]GraphNodeDoc, 0, len(docs))
	for _, d := range docs {
		neighbors := make([][]string, len(d.Neighbors))
		for lc, nbs := range d.Neighbors {
			row := make([]string, len(nbs))
			for i, nb := range nbs {
				row[i] = nb.Hex()
			}
			neighbors[lc] = row
		}
		nodes = append(nodes, GraphNodeDoc{
			ID:         d.ID.Hex(),
			Level:      d.Level,
			Neighbors:  neighbors,
			Tombstoned: d.Tombstoned,
		})
	}
	entryHex := ""
	if hasEntry {
		entryHex = entry.Hex()
	}
	return &GraphStructureDoc{Dimension: dim, EntryPoint: entryHex, HasEntry: hasEntry, Nodes: nodes}
}

func exportPartStructure(ix *partindex.Index) *PartitionedStructureDoc {
	centroids := ix.ExportCentroids()
	docs := ix.ExportEntries()

	entries := make([]PartitionedEntryDoc, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, PartitionedEntryDoc{ID: d.ID.Hex(), Cluster: d.Cluster, Tombstoned: d.Tombstoned})
	}
	dim := 0
	if len(centroids) > 0 {
		dim = len(centroids[0])
	}
	return &PartitionedStructureDoc{Dimension: dim, Centroids: centroids, Entries: entries}
}

// idFromHex parses a hex-encoded VectorID, returning ErrCorruption on a
// malformed string so a corrupted structure document fails the whole
// load instead of silently dropping entries.
func idFromHex(hexStr string) (hybridann.VectorID, error) {
	var id hybridann.VectorID
	if err := id.UnmarshalText([]byte(hexStr)); err != nil {
		return id, hybridann.WrapError("persist.decode_id", hybridann.ErrCorruption)
	}
	return id, nil
}
