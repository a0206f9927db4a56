// Package persist implements chunked save/load of a hybrid index's two
// sub-indices against a blobstore.Store collaborator, following a
// versioned manifest format.
package persist

// CurrentVersion is the manifest version this build writes.
const CurrentVersion = 3

// MinSupportedVersion is the oldest manifest version this build can
// still read; absent fields introduced after that version default to
// empty rather than failing the load.
const MinSupportedVersion = 2

// ChunkDescriptor references one persisted chunk blob.
type ChunkDescriptor struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// GraphNodeDoc is the JSON form of a single graph node's structure.
type GraphNodeDoc struct {
	ID         string     `json:"id"`
	Level      int        `json:"level"`
	Neighbors  [][]string `json:"neighbors"`
	Tombstoned bool       `json:"tombstoned"`
}

// GraphStructureDoc is the JSON form of the graph index's structure.
type GraphStructureDoc struct {
	Dimension  int            `json:"dimension"`
	EntryPoint string         `json:"entry_point"`
	HasEntry   bool           `json:"has_entry"`
	Nodes      []GraphNodeDoc `json:"nodes"`
}

// PartitionedEntryDoc is the JSON form of a single partitioned-index
// entry's cluster assignment.
type PartitionedEntryDoc struct {
	ID         string `json:"id"`
	Cluster    int    `json:"cluster"`
	Tombstoned bool   `json:"tombstoned"`
}

// PartitionedStructureDoc is the JSON form of the partitioned index's
// structure.
type PartitionedStructureDoc struct {
	Dimension int                   `json:"dimension"`
	Centroids [][]float32           `json:"centroids"`
	Entries   []PartitionedEntryDoc `json:"entries"`
}

// Manifest is the versioned root document describing a saved hybrid
// index: its chunks, both sub-indices' structures, and the tombstone
// set. Current version = 3; a version > CurrentVersion is rejected by
// the loader and a version ≥ MinSupportedVersion is accepted with
// absent fields (e.g. DeletedVectors in a v2 manifest) defaulting to
// empty.
type Manifest struct {
	Version              int                      `json:"version"`
	ChunkSize            int                      `json:"chunk_size"`
	TotalVectors         int                      `json:"total_vectors"`
	Chunks               []ChunkDescriptor        `json:"chunks"`
	GraphStructure       *GraphStructureDoc       `json:"graph_structure"`
	PartitionedStructure *PartitionedStructureDoc `json:"partitioned_structure"`
	DeletedVectors       []string                 `json:"deleted_vectors,omitempty"`
}
