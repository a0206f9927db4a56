// Package hybrid implements the recency-partitioned dual-index
// coordinator: new vectors land in a graph ANN index tuned for
// low-latency high-recall queries, vectors past a configurable age
// migrate into a partitioned ANN index tuned for compact memory and
// scalable recall, and a unified query path fans out to both and
// merges results. Grounded on original_source/bindings/node/src/
// session.rs's VectorDBSession, which wraps a single HybridIndex this
// package now implements in full.
package hybrid

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/graphindex"
	"github.com/liliang-cn/hybridann/pkg/logging"
	"github.com/liliang-cn/hybridann/pkg/partindex"
	"github.com/liliang-cn/hybridann/pkg/quantization"
)

// side identifies which sub-index currently holds a live id.
type side int

const (
	sideGraph side = iota
	sidePartitioned
)

// Coordinator owns a graph sub-index, a partitioned sub-index, the
// timestamp-routing map, and the hybrid-level tombstone set (the union
// of both sides' deletions, authoritative for query exclusion even
// before a sub-index has been vacuumed).
type Coordinator struct {
	cfg Config
	log logging.Logger

	Graph       *graphindex.Index
	Partitioned *partindex.Index

	mu           sync.RWMutex
	timestamps   map[hybridann.VectorID]time.Time
	location     map[hybridann.VectorID]side
	tombstones   map[hybridann.VectorID]bool
	initialized  bool
	everInserted bool
	dimension    int
	dimSet       bool

	stopAuto chan struct{}
	autoWG   sync.WaitGroup
}

// New constructs a Coordinator with empty sub-indices. Call Initialize
// before inserting, since the partitioned side requires trained
// centroids.
func New(cfg Config) *Coordinator {
	if cfg.Metric == nil {
		cfg.Metric = DefaultConfig().Metric
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.SearchOverfetchFactor < 1 {
		cfg.SearchOverfetchFactor = DefaultConfig().SearchOverfetchFactor
	}
	if cfg.FilterOverfetchFactor < 1 {
		cfg.FilterOverfetchFactor = DefaultConfig().FilterOverfetchFactor
	}
	c := &Coordinator{
		cfg:         cfg,
		log:         cfg.Logger,
		Graph:       graphindex.New(cfg.GraphConfig, cfg.Metric),
		Partitioned: partindex.New(cfg.PartitionedConfig, cfg.Metric),
		timestamps:  make(map[hybridann.VectorID]time.Time),
		location:    make(map[hybridann.VectorID]side),
		tombstones:  make(map[hybridann.VectorID]bool),
	}
	if cfg.AutoMigrate {
		c.startAutoMigrate()
	}
	return c
}

// Initialize trains the partitioned sub-index's centroids from
// trainingSet and establishes the coordinator's dimension. It is
// idempotent: calling it again before any vector has been inserted
// replaces the centroids; calling it again after an insert fails with
// ErrAlreadyInitialized.
func (c *Coordinator) Initialize(ctx context.Context, trainingSet [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && c.everInserted {
		return hybridann.WrapError("hybrid.initialize", hybridann.ErrAlreadyInitialized)
	}
	if err := c.Partitioned.Train(trainingSet); err != nil {
		return hybridann.WrapError("hybrid.initialize", err)
	}
	if len(trainingSet) > 0 {
		c.dimension = len(trainingSet[0])
		c.dimSet = true
	}
	if c.cfg.EnableQuantization && len(trainingSet) > 0 {
		pq, err := quantization.NewProductQuantizer(c.dimension, c.cfg.QuantizerSubspaces, c.cfg.QuantizerCentroids)
		if err != nil {
			return hybridann.WrapError("hybrid.initialize", err)
		}
		if err := pq.Train(trainingSet); err != nil {
			return hybridann.WrapError("hybrid.initialize", err)
		}
		c.Graph.SetQuantizer(pq)
		c.log.Info("quantizer trained", "subspaces", c.cfg.QuantizerSubspaces, "centroids", c.cfg.QuantizerCentroids)
	}
	c.initialized = true
	c.log.Info("hybrid index initialized", "n_training", len(trainingSet))
	return nil
}

// Close stops any background migration goroutine started by
// AutoMigrate. Safe to call on a Coordinator that never started one.
func (c *Coordinator) Close() {
	c.mu.Lock()
	stop := c.stopAuto
	c.stopAuto = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		c.autoWG.Wait()
	}
}

func (c *Coordinator) startAutoMigrate() {
	c.stopAuto = make(chan struct{})
	stop := c.stopAuto
	c.autoWG.Add(1)
	go func() {
		defer c.autoWG.Done()
		ticker := time.NewTicker(c.cfg.MigrationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				res := c.Migrate(context.Background(), c.cfg.MigrationBatchSize)
				if res.Migrated > 0 || res.Failed > 0 {
					c.log.Info("auto migration tick", "migrated", res.Migrated, "failed", res.Failed)
				}
			}
		}
	}()
}

// Insert adds id/vec using the current time as its timestamp.
func (c *Coordinator) Insert(ctx context.Context, id hybridann.VectorID, vec []float32) error {
	return c.InsertWithTimestamp(ctx, id, vec, time.Now())
}

// InsertWithTimestamp routes id/vec to the graph side if now-ts is
// within RecencyThreshold, otherwise to the partitioned side, and
// records its timestamp for future routing decisions (migration,
// Delete's side lookup). Fails with ErrDuplicateVector if id is already
// known anywhere (live on either side, or tombstoned pending vacuum).
func (c *Coordinator) InsertWithTimestamp(ctx context.Context, id hybridann.VectorID, vec []float32, ts time.Time) error {
	c.mu.Lock()
	if _, exists := c.location[id]; exists {
		c.mu.Unlock()
		return hybridann.WrapError("hybrid.insert", hybridann.ErrDuplicateVector)
	}
	if c.tombstones[id] {
		c.mu.Unlock()
		return hybridann.WrapError("hybrid.insert", hybridann.ErrDuplicateVector)
	}
	if c.dimSet && len(vec) != c.dimension {
		c.mu.Unlock()
		return hybridann.WrapError("hybrid.insert", hybridann.ErrDimensionMismatch)
	}
	c.mu.Unlock()

	recent := time.Since(ts) <= c.cfg.RecencyThreshold
	var (
		err error
		loc side
	)
	if recent {
		err = c.Graph.Insert(id, vec)
		loc = sideGraph
	} else {
		err = c.Partitioned.Insert(id, vec)
		loc = sidePartitioned
	}
	if err != nil {
		return hybridann.WrapError("hybrid.insert", err)
	}

	c.mu.Lock()
	c.timestamps[id] = ts
	c.location[id] = loc
	c.everInserted = true
	if !c.dimSet {
		c.dimension = len(vec)
		c.dimSet = true
	}
	c.mu.Unlock()
	return nil
}

// Delete locates id via the timestamp-routing map, tombstones it on
// whichever side holds it, and adds it to the hybrid tombstone set.
// Idempotent: deleting an id already tombstoned succeeds without
// effect. Returns ErrVectorNotFound only when id is wholly unknown.
func (c *Coordinator) Delete(ctx context.Context, id hybridann.VectorID) error {
	c.mu.Lock()
	if c.tombstones[id] {
		c.mu.Unlock()
		return nil
	}
	loc, exists := c.location[id]
	if !exists {
		c.mu.Unlock()
		return hybridann.WrapError("hybrid.delete", hybridann.ErrVectorNotFound)
	}
	c.mu.Unlock()

	var err error
	switch loc {
	case sideGraph:
		err = c.Graph.MarkDeleted(id)
	case sidePartitioned:
		err = c.Partitioned.MarkDeleted(id)
	}
	if err != nil {
		return hybridann.WrapError("hybrid.delete", err)
	}

	c.mu.Lock()
	c.tombstones[id] = true
	c.mu.Unlock()
	return nil
}

// BatchDeleteResult aggregates per-item outcomes for BatchDelete.
type BatchDeleteResult struct {
	Successful int
	Failed     int
	Errors     []hybridann.ItemError
}

// BatchDelete deletes every id, collecting a typed error per failure
// instead of aborting the batch.
func (c *Coordinator) BatchDelete(ctx context.Context, ids []hybridann.VectorID) BatchDeleteResult {
	var res BatchDeleteResult
	for _, id := range ids {
		if err := c.Delete(ctx, id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, hybridann.ItemError{ID: id.String(), Err: err})
			continue
		}
		res.Successful++
	}
	return res
}

// IsDeleted reports whether id is in the hybrid tombstone set.
func (c *Coordinator) IsDeleted(id hybridann.VectorID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tombstones[id]
}

// ActiveCount returns the number of live ids across both sides,
// excluding anything in the hybrid tombstone set.
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for id := range c.location {
		if !c.tombstones[id] {
			count++
		}
	}
	return count
}

// VacuumResult reports how many tombstoned entries each side removed.
type VacuumResult struct {
	GraphRemoved       int
	PartitionedRemoved int
	TotalRemoved       int
}

// Vacuum compacts both sub-indices, dropping every hybrid-level
// tombstone whose id was physically removed from its side.
func (c *Coordinator) Vacuum(ctx context.Context) VacuumResult {
	graphRemoved := c.Graph.Vacuum()
	partRemoved := c.Partitioned.Vacuum()

	// Both sub-indices' Vacuum physically removes every entry they had
	// tombstoned, so every id this coordinator had tombstoned is now
	// gone from its side's structures; drop the matching bookkeeping
	// and clear the hybrid tombstone set entirely.
	c.mu.Lock()
	for id := range c.tombstones {
		delete(c.location, id)
		delete(c.timestamps, id)
	}
	c.tombstones = make(map[hybridann.VectorID]bool)
	c.mu.Unlock()

	c.log.Info("vacuum complete", "graph_removed", graphRemoved, "partitioned_removed", partRemoved)
	return VacuumResult{
		GraphRemoved:       graphRemoved,
		PartitionedRemoved: partRemoved,
		TotalRemoved:       graphRemoved + partRemoved,
	}
}

// Stats reports composition of both sub-indices alongside coordinator
// bookkeeping, grounded on the teacher's per-index Stats() convention.
func (c *Coordinator) Stats() map[string]any {
	c.mu.RLock()
	tombstones := len(c.tombstones)
	tracked := len(c.location)
	c.mu.RUnlock()
	active := c.ActiveCount()
	approxBytes := uint64(active) * uint64(c.dimension) * 4
	return map[string]any{
		"graph":              c.Graph.Stats(),
		"partitioned":        c.Partitioned.Stats(),
		"active_count":       active,
		"tracked_ids":        tracked,
		"hybrid_tombstones":  tombstones,
		"approx_vector_bytes": approxBytes,
		"approx_size_human":  humanize.Bytes(approxBytes),
	}
}

func sortedIDs(ids []hybridann.VectorID) []hybridann.VectorID {
	out := make([]hybridann.VectorID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
