package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/liliang-cn/hybridann"
)

func TestMigrateMovesAgedVectorsToPartitioned(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RecencyThreshold = time.Hour
	c := New(cfg)
	if err := c.Initialize(ctx, trainingVectors(60)); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	id := hybridann.VectorIDFromString("old")
	vec := trainingVectors(1)[0]
	if err := c.InsertWithTimestamp(ctx, id, vec, time.Now()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	// Age the recorded timestamp so the graph-side vector becomes a
	// migration candidate (an insert that is already old would route
	// straight to the partitioned side).
	c.mu.Lock()
	c.timestamps[id] = time.Now().Add(-2 * time.Hour)
	c.mu.Unlock()
	if !c.Graph.IsDeleted(id) && c.Graph.Size() == 0 {
		t.Fatal("expected the aged vector to have landed on the graph side pre-migration")
	}

	res := c.Migrate(ctx, 10)
	if res.Migrated != 1 || res.Failed != 0 {
		t.Fatalf("expected 1 migrated/0 failed, got %+v", res)
	}
	if !c.Graph.IsDeleted(id) {
		t.Fatal("expected migrated id tombstoned on the graph side")
	}
	if c.Partitioned.IsDeleted(id) {
		t.Fatal("migrated id should be live on the partitioned side")
	}

	results, err := c.Search(ctx, vec, 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	found := false
	for _, r := range results {
		if r.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatal("expected migrated id to remain searchable exactly once")
	}
}

func TestMigrateLeavesRecentVectorsAlone(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	_ = c.Initialize(ctx, trainingVectors(60))

	id := hybridann.VectorIDFromString("fresh")
	_ = c.InsertWithTimestamp(ctx, id, trainingVectors(1)[0], time.Now())

	res := c.Migrate(ctx, 10)
	if res.Migrated != 0 {
		t.Fatalf("expected no migration for a recent vector, got %+v", res)
	}
}

func TestMigrateRespectsLimit(t *testing.T) {
	ctx := context.Background()
	c := New(testConfig())
	_ = c.Initialize(ctx, trainingVectors(60))

	old := time.Now().Add(-2 * time.Hour)
	for i := 0; i < 5; i++ {
		id := hybridann.VectorIDFromString("old_" + string(rune('a'+i)))
		_ = c.InsertWithTimestamp(ctx, id, trainingVectors(1)[0], time.Now())
		c.mu.Lock()
		c.timestamps[id] = old
		c.mu.Unlock()
	}

	res := c.Migrate(ctx, 2)
	if res.Migrated != 2 {
		t.Fatalf("expected migration capped at 2, got %+v", res)
	}
}
