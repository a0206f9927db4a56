package graphindex

import (
	"testing"

	"github.com/liliang-cn/hybridann"
)

func TestExportLoadRoundTripPreservesSearch(t *testing.T) {
	ix := newTestIndex()
	vectors := make(map[hybridann.VectorID][]float32)
	for i := 0; i < 15; i++ {
		id := hybridann.VectorIDFromString(string(rune('a' + i)))
		v := vec(float32(i), float32(i%4))
		vectors[id] = v
		_ = ix.Insert(id, v)
	}

	docs := ix.ExportNodes()
	entryPoint, hasEntry := ix.EntryPoint()
	dim, _ := ix.Dimension()

	loaded := LoadIndex(ix.cfg, ix.dist, dim, entryPoint, hasEntry, docs, vectors)

	query := vec(3, 1)
	wantIDs, wantDists, err := ix.Search(query, 5, 50)
	if err != nil {
		t.Fatalf("original search failed: %v", err)
	}
	gotIDs, gotDists, err := loaded.Search(query, 5, 50)
	if err != nil {
		t.Fatalf("loaded search failed: %v", err)
	}

	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("result count mismatch: want %d got %d", len(wantIDs), len(gotIDs))
	}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] || gotDists[i] != wantDists[i] {
			t.Fatalf("result %d mismatch: want (%v,%v) got (%v,%v)", i, wantIDs[i], wantDists[i], gotIDs[i], gotDists[i])
		}
	}
}

func TestExportPreservesTombstoneFlag(t *testing.T) {
	ix := newTestIndex()
	id := hybridann.VectorIDFromString("a")
	_ = ix.Insert(id, vec(1, 2))
	_ = ix.MarkDeleted(id)

	docs := ix.ExportNodes()
	if len(docs) != 1 || !docs[0].Tombstoned {
		t.Fatalf("expected exported node to carry tombstone flag, got %+v", docs)
	}
}
