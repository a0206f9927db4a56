package hybrid

import (
	"context"
	"time"

	"github.com/liliang-cn/hybridann"
)

// MigrateResult reports how many vectors moved from the graph side to
// the partitioned side in one Migrate call.
type MigrateResult struct {
	Migrated int
	Failed   int
	Errors   []hybridann.ItemError
}

// Migrate moves up to limit vectors whose age now exceeds
// RecencyThreshold from the graph side to the partitioned side. Per
// spec.md §4.4, each candidate is migrated in three steps: (a) insert
// into the partitioned side, (b) tombstone it in the graph, (c) update
// the timestamp-routing map. If (b) fails after (a) succeeded, the
// partitioned insert is compensated with an inverse delete; if that
// compensation also fails the id is left migrated-but-not-tombstoned
// and reported in Errors — search-time dedup (smaller-distance-wins)
// still prevents it from ever appearing twice.
func (c *Coordinator) Migrate(ctx context.Context, limit int) MigrateResult {
	candidates := c.migrationCandidates(limit)

	var res MigrateResult
	for _, id := range candidates {
		vec, ok := c.Graph.VectorOf(id)
		if !ok {
			continue
		}

		if err := c.Partitioned.Insert(id, vec); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, hybridann.ItemError{ID: id.String(), Err: hybridann.WrapError("hybrid.migrate.insert", err)})
			continue
		}

		if err := c.Graph.MarkDeleted(id); err != nil {
			if compErr := c.Partitioned.MarkDeleted(id); compErr != nil {
				c.log.Error("migration compensation failed, id left duplicated pending manual vacuum",
					"id", id.String(), "mark_deleted_err", err, "compensation_err", compErr)
				res.Failed++
				res.Errors = append(res.Errors, hybridann.ItemError{ID: id.String(), Err: hybridann.WrapError("hybrid.migrate.compensate", compErr)})
				continue
			}
			res.Failed++
			res.Errors = append(res.Errors, hybridann.ItemError{ID: id.String(), Err: hybridann.WrapError("hybrid.migrate.tombstone", err)})
			continue
		}

		c.mu.Lock()
		c.location[id] = sidePartitioned
		c.mu.Unlock()
		res.Migrated++
	}

	if res.Migrated > 0 || res.Failed > 0 {
		c.log.Info("migration tick complete", "migrated", res.Migrated, "failed", res.Failed)
	}
	return res
}

// migrationCandidates returns up to limit ids currently on the graph
// side whose age exceeds RecencyThreshold, in deterministic (hex)
// order so repeated ticks make steady forward progress rather than
// racing on map iteration order.
func (c *Coordinator) migrationCandidates(limit int) []hybridann.VectorID {
	c.mu.RLock()
	now := time.Now()
	var eligible []hybridann.VectorID
	for id, loc := range c.location {
		if loc != sideGraph || c.tombstones[id] {
			continue
		}
		ts, ok := c.timestamps[id]
		if !ok || now.Sub(ts) <= c.cfg.RecencyThreshold {
			continue
		}
		eligible = append(eligible, id)
	}
	c.mu.RUnlock()

	eligible = sortedIDs(eligible)
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}
