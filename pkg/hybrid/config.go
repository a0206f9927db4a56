package hybrid

import (
	"time"

	"github.com/liliang-cn/hybridann/pkg/distance"
	"github.com/liliang-cn/hybridann/pkg/graphindex"
	"github.com/liliang-cn/hybridann/pkg/logging"
	"github.com/liliang-cn/hybridann/pkg/partindex"
)

// Config holds the hybrid coordinator's recency-routing policy and both
// sub-indices' construction parameters, per spec.md §3's HybridConfig.
type Config struct {
	// RecencyThreshold is the age boundary separating the graph
	// (recent) side from the partitioned (historical) side: a vector
	// with now-ts <= RecencyThreshold routes to the graph.
	RecencyThreshold time.Duration

	GraphConfig       graphindex.Config
	PartitionedConfig partindex.Config

	// MigrationBatchSize upper-bounds the vectors moved per Migrate
	// call, bounding how long both sub-indices' write paths are busy in
	// one tick.
	MigrationBatchSize int

	// AutoMigrate, when true, runs background migration ticks at
	// MigrationInterval; when false, the caller drives Migrate
	// directly.
	AutoMigrate       bool
	MigrationInterval time.Duration

	// FilterOverfetchFactor scales k for SearchWithFilter's pre-filter
	// overfetch (spec.md §4.4 recommends 4k).
	FilterOverfetchFactor float64
	// SearchOverfetchFactor scales k for Search's per-side overfetch
	// (spec.md §4.4 recommends 1.5k).
	SearchOverfetchFactor float64

	// Metric is shared by both sub-indices; spec.md §4.3 makes
	// Euclidean the partitioned side's default with cosine optional.
	Metric distance.Func

	// EnableQuantization, when true, trains a product quantizer over the
	// Initialize training set and installs it on the graph side, trading
	// a decode step per distance computation for reduced node memory.
	// Never required for any on-disk format.
	EnableQuantization bool
	QuantizerSubspaces int
	QuantizerCentroids int

	Logger logging.Logger
}

// DefaultConfig returns a coordinator configuration with a one-day
// recency window, the sub-indices' own defaults, and modest overfetch
// factors matching spec.md §4.4.
func DefaultConfig() Config {
	return Config{
		RecencyThreshold:      24 * time.Hour,
		GraphConfig:           graphindex.DefaultConfig(),
		PartitionedConfig:     partindex.DefaultConfig(),
		MigrationBatchSize:    100,
		AutoMigrate:           false,
		MigrationInterval:     5 * time.Minute,
		FilterOverfetchFactor: 4.0,
		SearchOverfetchFactor: 1.5,
		Metric:                distance.Euclidean,
		EnableQuantization:    false,
		QuantizerSubspaces:    8,
		QuantizerCentroids:    256,
		Logger:                logging.NopLogger(),
	}
}
