// Package partindex implements a partitioned (inverted-file) ANN index:
// vectors are assigned to the nearest of a fixed set of trained
// centroids, and a query probes the n_probe nearest clusters. Adapted
// from the teacher's pkg/index/ivf.go.
package partindex

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/distance"
)

type entryState int

const (
	stateLive entryState = iota
	stateTombstoned
)

type entry struct {
	id     hybridann.VectorID
	vector []float32
	state  entryState
}

// Config holds training and search parameters.
type Config struct {
	NClusters     int   // number of centroids to train
	NProbe        int   // clusters searched per query
	TrainSize     int   // minimum training-set size required
	MaxIterations int   // Lloyd's-algorithm iteration cap
	RngSeed       int64 // deterministic centroid seeding when non-zero
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{NClusters: 100, NProbe: 10, TrainSize: 100, MaxIterations: 20, RngSeed: 0}
}

// Index is a trained partitioned ANN index.
type Index struct {
	cfg  Config
	dist distance.Func

	mu        sync.RWMutex
	dimension int
	dimSet    bool
	centroids [][]float32
	invlists  [][]hybridann.VectorID
	entries   map[hybridann.VectorID]*entry
	trained   bool
	rng       *rand.Rand
}

// New creates an untrained partitioned index.
func New(cfg Config, dist distance.Func) *Index {
	seed := cfg.RngSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Index{
		cfg:     cfg,
		dist:    dist,
		entries: make(map[hybridann.VectorID]*entry),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Train learns NClusters centroids via k-means++ seeding followed by
// Lloyd's algorithm, then resets the inverted lists. Fails if
// trainingSet is smaller than cfg.TrainSize.
func (ix *Index) Train(trainingSet [][]float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(trainingSet) < ix.cfg.TrainSize {
		return hybridann.WrapError("partindex.train", hybridann.ErrInvalidConfig)
	}
	if len(trainingSet) < ix.cfg.NClusters {
		return hybridann.WrapError("partindex.train", hybridann.ErrInvalidConfig)
	}

	centroids, err := ix.kMeans(trainingSet, ix.cfg.NClusters, ix.cfg.MaxIterations)
	if err != nil {
		return hybridann.WrapError("partindex.train", err)
	}

	ix.dimension = len(trainingSet[0])
	ix.dimSet = true
	ix.centroids = centroids
	ix.invlists = make([][]hybridann.VectorID, ix.cfg.NClusters)
	for i := range ix.invlists {
		ix.invlists[i] = []hybridann.VectorID{}
	}
	ix.entries = make(map[hybridann.VectorID]*entry)
	ix.trained = true
	return nil
}

// Insert assigns id/vec to its nearest centroid's inverted list. Fails
// with ErrNotTrained before Train has run, and ErrDimensionMismatch on a
// wrong-length vector.
func (ix *Index) Insert(id hybridann.VectorID, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.trained {
		return hybridann.WrapError("partindex.insert", hybridann.ErrNotTrained)
	}
	if len(vec) != ix.dimension {
		return hybridann.WrapError("partindex.insert", hybridann.ErrDimensionMismatch)
	}
	if _, exists := ix.entries[id]; exists {
		return hybridann.WrapError("partindex.insert", hybridann.ErrDuplicateVector)
	}

	cluster := ix.nearestCentroid(vec)
	e := &entry{id: id, vector: vec, state: stateLive}
	ix.entries[id] = e
	ix.invlists[cluster] = append(ix.invlists[cluster], id)
	return nil
}

func (ix *Index) nearestCentroid(vec []float32) int {
	minDist := float32(math.MaxFloat32)
	minIdx := 0
	for i, c := range ix.centroids {
		d := ix.dist(vec, c)
		if d < minDist {
			minDist = d
			minIdx = i
		}
	}
	return minIdx
}

// Search selects the n_probe nearest clusters to query, scans their
// union, and returns the k lowest-distance live entries. When n_probe
// >= n_clusters this degenerates to an exhaustive scan.
func (ix *Index) Search(query []float32, k int) ([]hybridann.VectorID, []float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.trained {
		return nil, nil, hybridann.WrapError("partindex.search", hybridann.ErrNotTrained)
	}
	if len(query) != ix.dimension {
		return nil, nil, hybridann.WrapError("partindex.search", hybridann.ErrDimensionMismatch)
	}

	type cd struct {
		idx  int
		dist float32
	}
	centroidDists := make([]cd, len(ix.centroids))
	for i, c := range ix.centroids {
		centroidDists[i] = cd{i, ix.dist(query, c)}
	}
	sort.Slice(centroidDists, func(i, j int) bool { return centroidDists[i].dist < centroidDists[j].dist })

	nprobe := ix.cfg.NProbe
	if nprobe > len(ix.centroids) {
		nprobe = len(ix.centroids)
	}

	type result struct {
		id   hybridann.VectorID
		dist float32
	}
	var candidates []result
	for i := 0; i < nprobe; i++ {
		clusterIdx := centroidDists[i].idx
		for _, id := range ix.invlists[clusterIdx] {
			e := ix.entries[id]
			if e.state == stateTombstoned {
				continue
			}
			candidates = append(candidates, result{id: id, dist: ix.dist(query, e.vector)})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id.Hex() < candidates[j].id.Hex()
	})

	topK := k
	if topK > len(candidates) {
		topK = len(candidates)
	}
	ids := make([]hybridann.VectorID, topK)
	dists := make([]float32, topK)
	for i := 0; i < topK; i++ {
		ids[i] = candidates[i].id
		dists[i] = candidates[i].dist
	}
	return ids, dists, nil
}

// MarkDeleted tombstones id. Fails with ErrVectorNotFound if absent;
// idempotent on an already-tombstoned id.
func (ix *Index) MarkDeleted(id hybridann.VectorID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, exists := ix.entries[id]
	if !exists {
		return hybridann.WrapError("partindex.mark_deleted", hybridann.ErrVectorNotFound)
	}
	e.state = stateTombstoned
	return nil
}

// IsDeleted reports whether id is currently tombstoned.
func (ix *Index) IsDeleted(id hybridann.VectorID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, exists := ix.entries[id]
	return exists && e.state == stateTombstoned
}

// BatchDelete marks every id deleted, collecting a typed error per
// failure rather than aborting.
func (ix *Index) BatchDelete(ids []hybridann.VectorID) (successful, failed int, errs []hybridann.ItemError) {
	for _, id := range ids {
		if err := ix.MarkDeleted(id); err != nil {
			failed++
			errs = append(errs, hybridann.ItemError{ID: id.String(), Err: err})
			continue
		}
		successful++
	}
	return
}

// Vacuum physically removes tombstoned entries from the inverted lists
// and the entry map, returning the count removed.
func (ix *Index) Vacuum() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for id, e := range ix.entries {
		if e.state == stateTombstoned {
			delete(ix.entries, id)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	for i, list := range ix.invlists {
		kept := list[:0:0]
		for _, id := range list {
			if _, ok := ix.entries[id]; ok {
				kept = append(kept, id)
			}
		}
		ix.invlists[i] = kept
	}
	return removed
}

// ActiveCount returns the number of non-tombstoned entries.
func (ix *Index) ActiveCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	count := 0
	for _, e := range ix.entries {
		if e.state != stateTombstoned {
			count++
		}
	}
	return count
}

// Size returns the total entry count, including tombstoned entries not
// yet vacuumed.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Trained reports whether Train has completed successfully.
func (ix *Index) Trained() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.trained
}

// Stats reports cluster-size distribution and index composition,
// grounded on the teacher's IVFIndex.Stats.
func (ix *Index) Stats() map[string]any {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := map[string]any{
		"n_clusters": ix.cfg.NClusters,
		"dimension":  ix.dimension,
		"n_entries":  len(ix.entries),
		"n_probe":    ix.cfg.NProbe,
		"trained":    ix.trained,
	}
	if len(ix.invlists) == 0 {
		return stats
	}
	minSize, maxSize, total := len(ix.invlists[0]), len(ix.invlists[0]), 0
	for _, list := range ix.invlists {
		if len(list) < minSize {
			minSize = len(list)
		}
		if len(list) > maxSize {
			maxSize = len(list)
		}
		total += len(list)
	}
	stats["min_cluster_size"] = minSize
	stats["max_cluster_size"] = maxSize
	stats["avg_cluster_size"] = float64(total) / float64(len(ix.invlists))
	return stats
}

// kMeans runs k-means++ seeding followed by Lloyd's algorithm, stopping
// early once assignments stop changing. Duplicate training vectors are
// tolerated and never cause an infinite loop since iteration is bounded
// by maxIters regardless of convergence.
func (ix *Index) kMeans(vectors [][]float32, k int, maxIters int) ([][]float32, error) {
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	centroids[0] = append([]float32(nil), vectors[ix.rng.Intn(len(vectors))]...)

	for i := 1; i < k; i++ {
		distances := make([]float32, len(vectors))
		var totalDist float32
		for j, v := range vectors {
			minDist := float32(math.MaxFloat32)
			for c := 0; c < i; c++ {
				d := ix.dist(v, centroids[c])
				if d < minDist {
					minDist = d
				}
			}
			distances[j] = minDist * minDist
			totalDist += distances[j]
		}

		r := ix.rng.Float32() * totalDist
		var cumSum float32
		chosen := false
		for j, d := range distances {
			cumSum += d
			if cumSum >= r {
				centroids[i] = append([]float32(nil), vectors[j]...)
				chosen = true
				break
			}
		}
		if !chosen {
			centroids[i] = append([]float32(nil), vectors[len(vectors)-1]...)
		}
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, v := range vectors {
			minDist := float32(math.MaxFloat32)
			minIdx := 0
			for j, c := range centroids {
				d := ix.dist(v, c)
				if d < minDist {
					minDist = d
					minIdx = j
				}
			}
			if assignments[i] != minIdx {
				changed = true
				assignments[i] = minIdx
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		for i := range centroids {
			centroids[i] = make([]float32, dim)
		}
		for i, v := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for d := 0; d < dim; d++ {
				centroids[cluster][d] += v[d]
			}
		}
		for i := range centroids {
			if counts[i] > 0 {
				for d := 0; d < dim; d++ {
					centroids[i][d] /= float32(counts[i])
				}
			}
		}
	}

	return centroids, nil
}
