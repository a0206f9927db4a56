// Command hybridann operates a hybrid recency-partitioned ANN vector
// index from the command line: initialize, insert, search, delete,
// migrate, vacuum, and stats, all against a SQLite-backed blob store.
// Repurposed from the teacher's cmd/sqvect/main.go cobra layout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/blobstore"
	"github.com/liliang-cn/hybridann/pkg/hybrid"
)

var (
	dbPath   string
	basePath string
	jsonOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "hybridann",
	Short: "CLI for operating a hybrid recency-partitioned ANN vector index",
}

func openStore(ctx context.Context) (*blobstore.SQLiteStore, error) {
	return blobstore.OpenSQLiteStore(ctx, dbPath)
}

// loadOrNew loads the coordinator persisted at basePath, or constructs
// a fresh one (uninitialized) if no manifest has been written yet.
func loadOrNew(ctx context.Context, store *blobstore.SQLiteStore) (*hybrid.Coordinator, error) {
	cfg := hybrid.DefaultConfig()
	c, err := hybrid.LoadCoordinator(ctx, store, basePath, cfg)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, hybridann.ErrNotFound) {
		return hybrid.New(cfg), nil
	}
	return nil, err
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Train the partitioned side and create a new index",
	RunE: func(cmd *cobra.Command, args []string) error {
		trainFile, _ := cmd.Flags().GetString("training-file")
		dimFlag, _ := cmd.Flags().GetInt("dimension")
		countFlag, _ := cmd.Flags().GetInt("n-synthetic")

		var training [][]float32
		if trainFile != "" {
			data, err := os.ReadFile(trainFile)
			if err != nil {
				return fmt.Errorf("reading training file: %w", err)
			}
			if err := json.Unmarshal(data, &training); err != nil {
				return fmt.Errorf("parsing training file: %w", err)
			}
		} else {
			if dimFlag <= 0 || countFlag <= 0 {
				return fmt.Errorf("either --training-file or both --dimension and --n-synthetic are required")
			}
			r := rand.New(rand.NewSource(1))
			training = make([][]float32, countFlag)
			for i := range training {
				v := make([]float32, dimFlag)
				for j := range v {
					v[j] = r.Float32()*2 - 1
				}
				training[i] = v
			}
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c := hybrid.New(hybrid.DefaultConfig())
		if err := c.Initialize(ctx, training); err != nil {
			return fmt.Errorf("initialize failed: %w", err)
		}
		if err := c.Save(ctx, store, basePath, 0); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Printf("Index initialized with %d training vectors\n", len(training))
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert <id>",
	Short: "Insert a vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		tsStr, _ := cmd.Flags().GetString("timestamp")
		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		ts := time.Now()
		if tsStr != "" {
			ts, err = time.Parse(time.RFC3339, tsStr)
			if err != nil {
				return fmt.Errorf("invalid --timestamp: %w", err)
			}
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := loadOrNew(ctx, store)
		if err != nil {
			return err
		}
		id := hybridann.VectorIDFromString(args[0])
		if err := c.InsertWithTimestamp(ctx, id, vec, ts); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
		if err := c.Save(ctx, store, basePath, 0); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Printf("Inserted %s as %s\n", args[0], id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := loadOrNew(ctx, store)
		if err != nil {
			return err
		}
		id := hybridann.VectorIDFromString(args[0])
		if err := c.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		if err := c.Save(ctx, store, basePath, 0); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for nearest vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")
		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := loadOrNew(ctx, store)
		if err != nil {
			return err
		}
		results, err := c.Search(ctx, vec, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if jsonOut {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Found %d results:\n", len(results))
		for i, r := range results {
			fmt.Printf("%d. %s (distance: %.4f)\n", i+1, r.ID, r.Distance)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run one migration tick from the graph side to the partitioned side",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := loadOrNew(ctx, store)
		if err != nil {
			return err
		}
		res := c.Migrate(ctx, limit)
		if err := c.Save(ctx, store, basePath, 0); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Printf("Migrated %d vectors, %d failed\n", res.Migrated, res.Failed)
		return nil
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact both sub-indices and clear the tombstone set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := loadOrNew(ctx, store)
		if err != nil {
			return err
		}
		res := c.Vacuum(ctx)
		if err := c.Save(ctx, store, basePath, 0); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Printf("Vacuum removed %d (graph: %d, partitioned: %d)\n", res.TotalRemoved, res.GraphRemoved, res.PartitionedRemoved)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := loadOrNew(ctx, store)
		if err != nil {
			return err
		}
		stats := c.Stats()
		if jsonOut {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Active vectors: %d\n", c.ActiveCount())
		fmt.Printf("Tracked ids:    %v\n", stats["tracked_ids"])
		fmt.Printf("Tombstones:     %v\n", stats["hybrid_tombstones"])
		fmt.Printf("Approx. size:   %v\n", stats["approx_size_human"])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "hybridann.db", "path to the SQLite-backed blob store")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", "index", "base path of the persisted index within the store")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON output")

	initCmd.Flags().String("training-file", "", "JSON file containing a [][]float32 training set")
	initCmd.Flags().Int("dimension", 0, "dimension of synthetic training vectors when --training-file is omitted")
	initCmd.Flags().Int("n-synthetic", 0, "count of synthetic training vectors when --training-file is omitted")

	insertCmd.Flags().String("vector", "", "comma-separated vector components")
	insertCmd.Flags().String("timestamp", "", "RFC3339 timestamp; defaults to now")

	searchCmd.Flags().String("vector", "", "comma-separated query vector components")
	searchCmd.Flags().Int("top-k", 10, "number of results")

	migrateCmd.Flags().Int("limit", 100, "maximum vectors migrated this tick")

	rootCmd.AddCommand(initCmd, insertCmd, deleteCmd, searchCmd, migrateCmd, vacuumCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
