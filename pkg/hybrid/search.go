package hybrid

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/metadata"
)

// Result pairs an id with its distance to the query, ascending by
// distance with id-hex as the deterministic tie-breaker (spec.md §5's
// merge determinism guarantee).
type Result struct {
	ID       hybridann.VectorID
	Distance float32
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID.Hex() < results[j].ID.Hex()
	})
}

func overfetchK(k int, factor float64) int {
	if factor < 1 {
		factor = 1
	}
	n := int(math.Ceil(float64(k) * factor))
	if n < k {
		n = k
	}
	return n
}

// sideResult carries one sub-index's search output back to Search.
type sideResult struct {
	ids   []hybridann.VectorID
	dists []float32
	err   error
}

// Search fans out to both sub-indices concurrently, each overfetching
// by SearchOverfetchFactor, merges by distance, drops any id in the
// hybrid tombstone set, deduplicates by id keeping the smaller distance
// (the case a mid-migration id briefly exists on both sides), and
// truncates to k. Returns an empty slice, not an error, when both sides
// are empty. Honors ctx's deadline: if it expires before both sides
// have returned, Search returns hybridann.ErrDeadlineExceeded together
// with whatever ranked results were ready, never a silently truncated
// success.
func (c *Coordinator) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	overfetch := overfetchK(k, c.cfg.SearchOverfetchFactor)

	graphCh := make(chan sideResult, 1)
	partCh := make(chan sideResult, 1)

	// errgroup fans out the dual-sided search concurrently; each arm
	// reports through its own channel rather than a shared variable so
	// the deadline-exceeded partial-read path below never races with a
	// still-running goroutine.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, dists, err := c.Graph.Search(query, overfetch, c.cfg.GraphConfig.EfConstruction)
		graphCh <- sideResult{ids: ids, dists: dists, err: err}
		return nil
	})
	g.Go(func() error {
		if !c.Partitioned.Trained() {
			partCh <- sideResult{}
			return nil
		}
		ids, dists, err := c.Partitioned.Search(query, overfetch)
		partCh <- sideResult{ids: ids, dists: dists, err: err}
		return nil
	})

	var graph, part sideResult
	var haveGraph, havePart bool
	for !haveGraph || !havePart {
		select {
		case graph = <-graphCh:
			haveGraph = true
		case part = <-partCh:
			havePart = true
		case <-ctx.Done():
			merged := c.mergeResults(graph.ids, graph.dists, part.ids, part.dists)
			if len(merged) > k {
				merged = merged[:k]
			}
			return merged, hybridann.WrapError("hybrid.search", hybridann.ErrDeadlineExceeded)
		}
	}
	if graph.err != nil {
		return nil, hybridann.WrapError("hybrid.search", graph.err)
	}
	if part.err != nil {
		return nil, hybridann.WrapError("hybrid.search", part.err)
	}

	merged := c.mergeResults(graph.ids, graph.dists, part.ids, part.dists)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (c *Coordinator) mergeResults(graphIDs []hybridann.VectorID, graphDists []float32, partIDs []hybridann.VectorID, partDists []float32) []Result {
	c.mu.RLock()
	tombstones := c.tombstones
	best := make(map[hybridann.VectorID]float32, len(graphIDs)+len(partIDs))
	for i, id := range graphIDs {
		if tombstones[id] {
			continue
		}
		if d, ok := best[id]; !ok || graphDists[i] < d {
			best[id] = graphDists[i]
		}
	}
	for i, id := range partIDs {
		if tombstones[id] {
			continue
		}
		if d, ok := best[id]; !ok || partDists[i] < d {
			best[id] = partDists[i]
		}
	}
	c.mu.RUnlock()

	out := make([]Result, 0, len(best))
	for id, d := range best {
		out = append(out, Result{ID: id, Distance: d})
	}
	sortResults(out)
	return out
}

// MetadataLookup resolves an id's metadata for SearchWithFilter. It
// returns ok=false when the id has no known metadata, in which case the
// candidate is treated as failing every non-trivial predicate (per
// spec.md §4.7's "missing field yields false").
type MetadataLookup func(id hybridann.VectorID) (meta map[string]any, ok bool)

// SearchWithFilter overfetches by FilterOverfetchFactor, ranks by
// distance exactly as Search does, resolves each candidate's metadata
// via lookup, retains only candidates whose metadata satisfies filter,
// and truncates to k. Filter evaluation happens after distance ranking,
// never during graph or cluster traversal (spec.md §4.4, §9).
func (c *Coordinator) SearchWithFilter(ctx context.Context, query []float32, k int, filter *metadata.Filter, lookup MetadataLookup) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	overfetch := overfetchK(k, c.cfg.FilterOverfetchFactor)
	ranked, err := c.Search(ctx, query, overfetch)
	if err != nil && len(ranked) == 0 {
		return nil, err
	}

	out := make([]Result, 0, k)
	for _, r := range ranked {
		meta, _ := lookup(r.ID)
		if filter.Evaluate(meta) {
			out = append(out, r)
			if len(out) == k {
				break
			}
		}
	}
	return out, err
}
