package graphindex

import (
	"testing"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/distance"
)

func vec(vals ...float32) []float32 { return vals }

func newTestIndex() *Index {
	cfg := Config{MaxDegree: 4, MaxDegreeLayer0: 8, EfConstruction: 32, RngSeed: 7}
	return New(cfg, distance.Euclidean)
}

func TestInsertAndSearchEmpty(t *testing.T) {
	ix := newTestIndex()
	ids, dists, err := ix.Search(vec(1, 2, 3), 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 || len(dists) != 0 {
		t.Fatalf("expected empty results on empty index, got %d", len(ids))
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	ix := newTestIndex()
	id := hybridann.VectorIDFromString("a")
	if err := ix.Insert(id, vec(1, 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ix.Insert(id, vec(1, 2))
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Insert(hybridann.VectorIDFromString("a"), vec(1, 2, 3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ix.Insert(hybridann.VectorIDFromString("b"), vec(1, 2)); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearchExcludesTombstoned(t *testing.T) {
	ix := newTestIndex()
	ids := make([]hybridann.VectorID, 0, 20)
	for i := 0; i < 20; i++ {
		id := hybridann.VectorIDFromString(string(rune('a' + i)))
		ids = append(ids, id)
		v := vec(float32(i), float32(i) * 2)
		if err := ix.Insert(id, v); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	if err := ix.MarkDeleted(ids[0]); err != nil {
		t.Fatalf("mark deleted failed: %v", err)
	}

	results, _, err := ix.Search(vec(0, 0), 20, 50)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	for _, r := range results {
		if r == ids[0] {
			t.Fatal("tombstoned id returned by search")
		}
	}
}

func TestMarkDeletedNotFound(t *testing.T) {
	ix := newTestIndex()
	err := ix.MarkDeleted(hybridann.VectorIDFromString("ghost"))
	if err == nil {
		t.Fatal("expected VectorNotFound for unknown id")
	}
}

func TestMarkDeletedIdempotent(t *testing.T) {
	ix := newTestIndex()
	id := hybridann.VectorIDFromString("a")
	_ = ix.Insert(id, vec(1, 2))
	if err := ix.MarkDeleted(id); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := ix.MarkDeleted(id); err != nil {
		t.Fatalf("second delete should be idempotent, got: %v", err)
	}
}

func TestVacuumRemovesTombstones(t *testing.T) {
	ix := newTestIndex()
	for i := 0; i < 10; i++ {
		id := hybridann.VectorIDFromString(string(rune('a' + i)))
		_ = ix.Insert(id, vec(float32(i), float32(i)))
	}
	victim := hybridann.VectorIDFromString("a")
	_ = ix.MarkDeleted(victim)

	removed := ix.Vacuum()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if ix.Size() != 9 {
		t.Fatalf("expected size 9 after vacuum, got %d", ix.Size())
	}
	if ix.IsDeleted(victim) {
		t.Fatal("vacuumed id should no longer be tracked as deleted")
	}
}

func TestReinsertAfterTombstoneRejectedUntilVacuum(t *testing.T) {
	ix := newTestIndex()
	id := hybridann.VectorIDFromString("a")
	_ = ix.Insert(id, vec(1, 2))
	_ = ix.MarkDeleted(id)

	if err := ix.Insert(id, vec(3, 4)); err == nil {
		t.Fatal("expected reinsert of tombstoned id to fail before vacuum")
	}

	ix.Vacuum()
	if err := ix.Insert(id, vec(3, 4)); err != nil {
		t.Fatalf("expected reinsert to succeed after vacuum, got %v", err)
	}
}

func TestBatchInsertAggregatesErrors(t *testing.T) {
	ix := newTestIndex()
	id := hybridann.VectorIDFromString("dup")
	_ = ix.Insert(id, vec(1, 2))

	res := ix.BatchInsert([]InsertItem{
		{ID: hybridann.VectorIDFromString("new"), Vector: vec(5, 6)},
		{ID: id, Vector: vec(7, 8)},
	})
	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("expected 1 success 1 failure, got %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(res.Errors))
	}
}

func TestSearchOverKReturnsAll(t *testing.T) {
	ix := newTestIndex()
	for i := 0; i < 3; i++ {
		_ = ix.Insert(hybridann.VectorIDFromString(string(rune('a'+i))), vec(float32(i), float32(i)))
	}
	ids, _, err := ix.Search(vec(0, 0), 100, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected all 3 live nodes, got %d", len(ids))
	}
}

func TestConnectedComponentsStaysConnected(t *testing.T) {
	ix := newTestIndex()
	for i := 0; i < 30; i++ {
		v := vec(float32(i), float32(i%5))
		_ = ix.Insert(hybridann.VectorIDFromString(string(rune('a'+i))), v)
	}
	before := ix.ConnectedComponents()
	ix.OptimizeConnections(0.5)
	after := ix.ConnectedComponents()
	if after > before {
		t.Fatalf("optimize connections increased component count: %d -> %d", before, after)
	}
}
