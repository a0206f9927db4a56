package partindex

import (
	"math/rand"
	"testing"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/distance"
)

func genVectors(n, dim int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for d := range v {
			v[d] = r.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return vecs
}

func newTrainedIndex(t *testing.T, nClusters, trainSize, dim int) *Index {
	t.Helper()
	cfg := Config{NClusters: nClusters, NProbe: 3, TrainSize: trainSize, MaxIterations: 10, RngSeed: 5}
	ix := New(cfg, distance.Euclidean)
	if err := ix.Train(genVectors(trainSize, dim, 1)); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	return ix
}

func TestInsertBeforeTrainFails(t *testing.T) {
	cfg := DefaultConfig()
	ix := New(cfg, distance.Euclidean)
	err := ix.Insert(hybridann.VectorIDFromString("a"), []float32{1, 2, 3})
	if err == nil {
		t.Fatal("expected NotTrained error before training")
	}
}

func TestTrainTooFewVectors(t *testing.T) {
	cfg := Config{NClusters: 10, NProbe: 3, TrainSize: 20, MaxIterations: 5}
	ix := New(cfg, distance.Euclidean)
	err := ix.Train(genVectors(5, 8, 1))
	if err == nil {
		t.Fatal("expected training failure with too few vectors")
	}
}

func TestInsertAndSearch(t *testing.T) {
	ix := newTrainedIndex(t, 5, 50, 8)
	vecs := genVectors(30, 8, 2)
	ids := make([]hybridann.VectorID, len(vecs))
	for i, v := range vecs {
		ids[i] = hybridann.VectorIDFromString(string(rune('a' + i)))
		if err := ix.Insert(ids[i], v); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	resultIDs, dists, err := ix.Search(vecs[0], 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(resultIDs) != 5 || len(dists) != 5 {
		t.Fatalf("expected 5 results, got %d", len(resultIDs))
	}
	for i := 1; i < len(dists); i++ {
		if dists[i] < dists[i-1] {
			t.Fatal("results not sorted ascending by distance")
		}
	}
}

func TestExhaustiveScanWhenNProbeExceedsClusters(t *testing.T) {
	cfg := Config{NClusters: 4, NProbe: 100, TrainSize: 40, MaxIterations: 10, RngSeed: 3}
	ix := New(cfg, distance.Euclidean)
	if err := ix.Train(genVectors(40, 6, 9)); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	vecs := genVectors(20, 6, 10)
	for i, v := range vecs {
		_ = ix.Insert(hybridann.VectorIDFromString(string(rune('a'+i))), v)
	}
	ids, _, err := ix.Search(vecs[0], 20)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(ids) != 20 {
		t.Fatalf("expected exhaustive scan to return all 20, got %d", len(ids))
	}
}

func TestMarkDeletedExcludesFromSearch(t *testing.T) {
	ix := newTrainedIndex(t, 4, 40, 6)
	vecs := genVectors(10, 6, 4)
	ids := make([]hybridann.VectorID, len(vecs))
	for i, v := range vecs {
		ids[i] = hybridann.VectorIDFromString(string(rune('a' + i)))
		_ = ix.Insert(ids[i], v)
	}
	if err := ix.MarkDeleted(ids[0]); err != nil {
		t.Fatalf("mark deleted failed: %v", err)
	}
	results, _, _ := ix.Search(vecs[0], 10)
	for _, r := range results {
		if r == ids[0] {
			t.Fatal("tombstoned id returned by search")
		}
	}
}

func TestVacuumRemovesTombstones(t *testing.T) {
	ix := newTrainedIndex(t, 4, 40, 6)
	vecs := genVectors(10, 6, 4)
	ids := make([]hybridann.VectorID, len(vecs))
	for i, v := range vecs {
		ids[i] = hybridann.VectorIDFromString(string(rune('a' + i)))
		_ = ix.Insert(ids[i], v)
	}
	_ = ix.MarkDeleted(ids[0])
	removed := ix.Vacuum()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if ix.ActiveCount() != 9 {
		t.Fatalf("expected 9 active after vacuum, got %d", ix.ActiveCount())
	}
}

func TestBatchDeleteAggregatesErrors(t *testing.T) {
	ix := newTrainedIndex(t, 4, 40, 6)
	vecs := genVectors(5, 6, 4)
	ids := make([]hybridann.VectorID, len(vecs))
	for i, v := range vecs {
		ids[i] = hybridann.VectorIDFromString(string(rune('a' + i)))
		_ = ix.Insert(ids[i], v)
	}

	successful, failed, errs := ix.BatchDelete([]hybridann.VectorID{ids[0], hybridann.VectorIDFromString("ghost")})
	if successful != 1 || failed != 1 {
		t.Fatalf("expected 1 success 1 failure, got successful=%d failed=%d", successful, failed)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestDuplicateTrainingVectorsDoNotLoop(t *testing.T) {
	cfg := Config{NClusters: 3, NProbe: 2, TrainSize: 10, MaxIterations: 10, RngSeed: 1}
	ix := New(cfg, distance.Euclidean)
	vecs := make([][]float32, 10)
	for i := range vecs {
		vecs[i] = []float32{1, 2, 3}
	}
	if err := ix.Train(vecs); err != nil {
		t.Fatalf("expected training with duplicates to succeed, got %v", err)
	}
}
