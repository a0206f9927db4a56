package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/graphindex"
	"github.com/liliang-cn/hybridann/pkg/partindex"
)

const dim = 384

func trainingVectors(n int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = 0.01 * float32(i+j)
		}
		vecs[i] = v
	}
	return vecs
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RecencyThreshold = time.Hour
	cfg.GraphConfig = graphindex.Config{MaxDegree: 8, MaxDegreeLayer0: 16, EfConstruction: 50, RngSeed: 7}
	cfg.PartitionedConfig = partindex.Config{NClusters: 5, NProbe: 3, TrainSize: 50, MaxIterations: 10, RngSeed: 7}
	return cfg
}

// TestBasicLifecycle mirrors spec.md §8 scenario 1.
func TestBasicLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	if err := c.Initialize(ctx, trainingVectors(100)); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	now := time.Now()
	recentIDs := make([]hybridann.VectorID, 10)
	for i := 0; i < 10; i++ {
		recentIDs[i] = hybridann.VectorIDFromString("recent_" + string(rune('0'+i)))
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = 0.01 * float32(i+j)
		}
		if err := c.InsertWithTimestamp(ctx, recentIDs[i], vec, now.Add(-10*time.Minute)); err != nil {
			t.Fatalf("insert recent_%d failed: %v", i, err)
		}
	}
	historicalIDs := make([]hybridann.VectorID, 10)
	for i := 0; i < 10; i++ {
		historicalIDs[i] = hybridann.VectorIDFromString("historical_" + string(rune('0'+i)))
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = 0.01 * float32(i+j)
		}
		if err := c.InsertWithTimestamp(ctx, historicalIDs[i], vec, now.Add(-30*24*time.Hour)); err != nil {
			t.Fatalf("insert historical_%d failed: %v", i, err)
		}
	}

	if got := c.ActiveCount(); got != 20 {
		t.Fatalf("expected active_count 20, got %d", got)
	}

	if err := c.Delete(ctx, recentIDs[5]); err != nil {
		t.Fatalf("delete recent_5 failed: %v", err)
	}
	if err := c.Delete(ctx, historicalIDs[5]); err != nil {
		t.Fatalf("delete historical_5 failed: %v", err)
	}
	if got := c.ActiveCount(); got != 18 {
		t.Fatalf("expected active_count 18 after deletes, got %d", got)
	}

	query := make([]float32, dim)
	for j := range query {
		query[j] = 0.01 * float32(j)
	}
	results, err := c.Search(ctx, query, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	for _, r := range results {
		if r.ID == recentIDs[5] || r.ID == historicalIDs[5] {
			t.Fatalf("search returned deleted id %v", r.ID)
		}
	}

	vr := c.Vacuum(ctx)
	if vr.GraphRemoved != 1 || vr.PartitionedRemoved != 1 || vr.TotalRemoved != 2 {
		t.Fatalf("unexpected vacuum result: %+v", vr)
	}
	if got := c.ActiveCount(); got != 18 {
		t.Fatalf("expected active_count 18 after vacuum, got %d", got)
	}
}

// TestBatchDeleteWithUnknownID mirrors spec.md §8 scenario 2.
func TestBatchDeleteWithUnknownID(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	if err := c.Initialize(ctx, trainingVectors(60)); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	a := hybridann.VectorIDFromString("a")
	b := hybridann.VectorIDFromString("b")
	nonexistent := hybridann.VectorIDFromString("nonexistent")
	_ = c.Insert(ctx, a, trainingVectors(1)[0])
	_ = c.Insert(ctx, b, trainingVectors(1)[0])

	res := c.BatchDelete(ctx, []hybridann.VectorID{a, b, nonexistent})
	if res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 successful/1 failed, got %+v", res)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	_ = c.Initialize(ctx, trainingVectors(60))
	id := hybridann.VectorIDFromString("dup")
	vec := trainingVectors(1)[0]
	if err := c.Insert(ctx, id, vec); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := c.Insert(ctx, id, vec); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	_ = c.Initialize(ctx, trainingVectors(60))
	id := hybridann.VectorIDFromString("x")
	_ = c.Insert(ctx, id, trainingVectors(1)[0])

	if err := c.Delete(ctx, id); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := c.Delete(ctx, id); err != nil {
		t.Fatalf("second delete on already-tombstoned id should succeed, got %v", err)
	}
}

func TestReinsertAfterVacuumSucceeds(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	_ = c.Initialize(ctx, trainingVectors(60))
	id := hybridann.VectorIDFromString("reinsert")
	vec := trainingVectors(1)[0]

	if err := c.Insert(ctx, id, vec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := c.Delete(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := c.Insert(ctx, id, vec); err == nil {
		t.Fatal("expected reinsert before vacuum to fail")
	}
	c.Vacuum(ctx)
	if err := c.Insert(ctx, id, vec); err != nil {
		t.Fatalf("reinsert after vacuum should succeed, got %v", err)
	}
	results, err := c.Search(ctx, vec, 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 || results[0].ID != id {
		t.Fatalf("expected reinserted id to be searchable, got %+v", results)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	c := New(testConfig())
	results, err := c.Search(context.Background(), make([]float32, dim), 5)
	if err != nil {
		t.Fatalf("search on empty index should not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestQuantizedGraphSideRemainsSearchable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.EnableQuantization = true
	cfg.QuantizerSubspaces = 8
	cfg.QuantizerCentroids = 16
	c := New(cfg)
	if err := c.Initialize(ctx, trainingVectors(60)); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	id := hybridann.VectorIDFromString("quantized")
	vec := trainingVectors(1)[0]
	if err := c.Insert(ctx, id, vec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	results, err := c.Search(ctx, vec, 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 || results[0].ID != id {
		t.Fatalf("expected quantized id to remain searchable, got %+v", results)
	}
}

func TestAlreadyInitializedAfterInsert(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	_ = c.Initialize(ctx, trainingVectors(60))
	_ = c.Insert(ctx, hybridann.VectorIDFromString("one"), trainingVectors(1)[0])

	if err := c.Initialize(ctx, trainingVectors(60)); err == nil {
		t.Fatal("expected AlreadyInitialized after an insert")
	}
}
