package hybrid

import (
	"context"
	"time"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/blobstore"
	"github.com/liliang-cn/hybridann/pkg/chunkstore"
	"github.com/liliang-cn/hybridann/pkg/persist"
)

// DefaultChunkCacheSize bounds how many decoded chunks LoadCoordinator
// keeps resident, matching chunkstore's per-chunk-count LRU capacity
// convention.
const DefaultChunkCacheSize = 64

// Save writes both sub-indices and the hybrid tombstone set under
// basePath via persist.SaveIndexChunked, using chunkSize as the target
// vector count per chunk (0 selects persist.DefaultChunkSize).
func (c *Coordinator) Save(ctx context.Context, store blobstore.Store, basePath string, chunkSize int) error {
	c.mu.RLock()
	tombstones := make(map[hybridann.VectorID]bool, len(c.tombstones))
	for id, d := range c.tombstones {
		tombstones[id] = d
	}
	c.mu.RUnlock()

	src := persist.SourceIndexes{Graph: c.Graph, Partitioned: c.Partitioned, Tombstones: tombstones}
	if err := persist.SaveIndexChunked(ctx, src, store, basePath, chunkSize); err != nil {
		return hybridann.WrapError("hybrid.save", err)
	}
	c.log.Info("hybrid index saved", "base_path", basePath)
	return nil
}

// LoadCoordinator reconstructs a Coordinator from a prior Save, replaying
// both sub-indices' exact saved structure (not a re-insertion) and
// restoring the hybrid tombstone set and timestamp-routing map. Original
// insertion timestamps are not persisted, so LoadCoordinator seeds the
// timestamp map with the load time for every id that was on the graph
// side (kept recent) and a point beyond RecencyThreshold for ids on the
// partitioned side (kept historical) — this preserves each id's side
// across a save/load round trip. A graph node tombstoned by migration
// (tombstoned there but absent from the hybrid tombstone set) is
// located on the partitioned side, where its live copy is.
func LoadCoordinator(ctx context.Context, store blobstore.Store, basePath string, cfg Config) (*Coordinator, error) {
	if cfg.Metric == nil {
		cfg.Metric = DefaultConfig().Metric
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}

	cache, err := chunkstore.NewChunkCache(DefaultChunkCacheSize)
	if err != nil {
		return nil, hybridann.WrapError("hybrid.load", err)
	}
	loader := chunkstore.NewChunkLoader(store, cache, chunkstore.DefaultLoaderConfig())

	loaded, err := persist.LoadIndexChunked(ctx, loader, store, basePath, cfg.GraphConfig, cfg.PartitionedConfig, cfg.Metric)
	if err != nil {
		return nil, hybridann.WrapError("hybrid.load", err)
	}

	c := &Coordinator{
		cfg:         cfg,
		log:         cfg.Logger,
		Graph:       loaded.Graph,
		Partitioned: loaded.Partitioned,
		timestamps:  make(map[hybridann.VectorID]time.Time),
		location:    make(map[hybridann.VectorID]side),
		tombstones:  loaded.Tombstones,
	}

	now := time.Now()
	historicalTS := now.Add(-cfg.RecencyThreshold - time.Hour)
	for _, doc := range c.Graph.ExportNodes() {
		if doc.Tombstoned && !c.tombstones[doc.ID] {
			continue
		}
		c.location[doc.ID] = sideGraph
		c.timestamps[doc.ID] = now
	}
	for id := range c.Partitioned.ExportVectors() {
		if _, already := c.location[id]; already {
			continue
		}
		c.location[id] = sidePartitioned
		c.timestamps[id] = historicalTS
	}

	c.initialized = c.Partitioned.Trained()
	c.everInserted = len(c.location) > 0
	if loaded.Manifest.GraphStructure != nil && loaded.Manifest.GraphStructure.Dimension > 0 {
		c.dimension = loaded.Manifest.GraphStructure.Dimension
		c.dimSet = true
	} else if loaded.Manifest.PartitionedStructure != nil && loaded.Manifest.PartitionedStructure.Dimension > 0 {
		c.dimension = loaded.Manifest.PartitionedStructure.Dimension
		c.dimSet = true
	}

	if cfg.AutoMigrate {
		c.startAutoMigrate()
	}
	c.log.Info("hybrid index loaded", "base_path", basePath, "active_count", c.ActiveCount())
	return c, nil
}
