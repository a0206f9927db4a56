package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/blobstore"
	"github.com/liliang-cn/hybridann/pkg/chunkstore"
	"github.com/liliang-cn/hybridann/pkg/distance"
	"github.com/liliang-cn/hybridann/pkg/graphindex"
	"github.com/liliang-cn/hybridann/pkg/partindex"
)

func newLoader(store blobstore.Store) *chunkstore.ChunkLoader {
	cache, err := chunkstore.NewChunkCache(16)
	if err != nil {
		panic(err)
	}
	return chunkstore.NewChunkLoader(store, cache, chunkstore.DefaultLoaderConfig())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := graphindex.New(graphindex.DefaultConfig(), distance.Euclidean)
	for i := 0; i < 10; i++ {
		id := hybridann.VectorIDFromString("g" + string(rune('a'+i)))
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32(i + j)
		}
		if err := g.Insert(id, vec); err != nil {
			t.Fatalf("graph insert failed: %v", err)
		}
	}

	p := partindex.New(partindex.Config{NClusters: 3, NProbe: 2, TrainSize: 9, MaxIterations: 5, RngSeed: 1}, distance.Euclidean)
	training := make([][]float32, 9)
	for i := range training {
		training[i] = []float32{float32(i), float32(i), float32(i), float32(i), float32(i), float32(i), float32(i), float32(i)}
	}
	if err := p.Train(training); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		id := hybridann.VectorIDFromString("p" + string(rune('a'+i)))
		if err := p.Insert(id, training[i]); err != nil {
			t.Fatalf("partitioned insert failed: %v", err)
		}
	}

	store := blobstore.NewMemStore()
	src := SourceIndexes{Graph: g, Partitioned: p, Tombstones: map[hybridann.VectorID]bool{}}
	if err := SaveIndexChunked(ctx, src, store, "base", 4); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadIndexChunked(ctx, newLoader(store), store, "base", graphindex.DefaultConfig(), partindex.Config{NClusters: 3, NProbe: 2, TrainSize: 9, MaxIterations: 5}, distance.Euclidean)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Graph.ActiveCount() != g.ActiveCount() {
		t.Fatalf("graph active count mismatch: got %d want %d", loaded.Graph.ActiveCount(), g.ActiveCount())
	}
	if loaded.Partitioned.ActiveCount() != p.ActiveCount() {
		t.Fatalf("partitioned active count mismatch: got %d want %d", loaded.Partitioned.ActiveCount(), p.ActiveCount())
	}
}

func TestLoadRejectsVersionGreaterThanCurrent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemStore()
	m := Manifest{Version: CurrentVersion + 1}
	data, _ := json.Marshal(m)
	if err := store.Put(ctx, "base/manifest.json", data); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	_, err := LoadIndexChunked(ctx, newLoader(store), store, "base", graphindex.DefaultConfig(), partindex.DefaultConfig(), distance.Euclidean)
	if !errors.Is(err, hybridann.ErrVersionUnsupported) {
		t.Fatalf("expected ErrVersionUnsupported, got %v", err)
	}
}

func TestLoadAcceptsV2ManifestWithEmptyTombstones(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemStore()
	m := Manifest{Version: 2, Chunks: nil, GraphStructure: nil, PartitionedStructure: nil}
	data, _ := json.Marshal(m)
	if err := store.Put(ctx, "base/manifest.json", data); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	loaded, err := LoadIndexChunked(ctx, newLoader(store), store, "base", graphindex.DefaultConfig(), partindex.DefaultConfig(), distance.Euclidean)
	if err != nil {
		t.Fatalf("expected v2 manifest to load, got %v", err)
	}
	if len(loaded.Tombstones) != 0 {
		t.Fatalf("expected empty tombstones, got %d", len(loaded.Tombstones))
	}
}

func TestLoadMissingManifestFails(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemStore()
	_, err := LoadIndexChunked(ctx, newLoader(store), store, "missing", graphindex.DefaultConfig(), partindex.DefaultConfig(), distance.Euclidean)
	if err == nil {
		t.Fatal("expected an error loading a missing manifest")
	}
}
