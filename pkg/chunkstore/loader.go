package chunkstore

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/liliang-cn/hybridann"
	"github.com/liliang-cn/hybridann/pkg/blobstore"
)

// LoaderConfig controls ChunkLoader's retry policy for transient
// transport failures. Not-found errors are never retried.
type LoaderConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultLoaderConfig returns a modest retry budget.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}
}

// ChunkLoader fetches chunks from a blob store, caching decoded results
// and coalescing concurrent requests for the same path so exactly one
// underlying fetch is issued regardless of how many callers ask for it
// at once.
type ChunkLoader struct {
	store blobstore.Store
	cache *ChunkCache
	cfg   LoaderConfig
	group singleflight.Group
}

// NewChunkLoader builds a loader over store, populating cache on miss.
func NewChunkLoader(store blobstore.Store, cache *ChunkCache, cfg LoaderConfig) *ChunkLoader {
	return &ChunkLoader{store: store, cache: cache, cfg: cfg}
}

// LoadChunk returns the decoded chunk at path, from cache if present,
// otherwise via a single coalesced fetch-and-decode shared by every
// concurrent caller requesting the same path.
func (l *ChunkLoader) LoadChunk(ctx context.Context, path string) (*Chunk, error) {
	if c, ok := l.cache.Get(path); ok {
		return c, nil
	}

	v, err, _ := l.group.Do(path, func() (any, error) {
		data, err := l.fetchWithRetry(ctx, path)
		if err != nil {
			return nil, err
		}
		chunk, err := DecodeChunk(data)
		if err != nil {
			return nil, err
		}
		l.cache.Insert(path, chunk)
		return chunk, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Chunk), nil
}

func (l *ChunkLoader) fetchWithRetry(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	attempts := l.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := l.store.Get(ctx, path)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(err, hybridann.ErrNotFound) {
			return nil, err
		}
		if !errors.Is(err, hybridann.ErrTransport) {
			return nil, err
		}
		if attempt == attempts {
			break
		}
		delay := l.cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// chunkResult pairs a loaded chunk with its originating index, used to
// restore input order after a parallel fan-out.
type chunkResult struct {
	index int
	chunk *Chunk
	err   error
}

// LoadChunksParallel fans out LoadChunk across paths concurrently and
// returns results in the same order as paths, regardless of completion
// order.
func (l *ChunkLoader) LoadChunksParallel(ctx context.Context, paths []string) ([]*Chunk, []error) {
	results := make(chan chunkResult, len(paths))
	for i, p := range paths {
		go func(i int, p string) {
			c, err := l.LoadChunk(ctx, p)
			results <- chunkResult{index: i, chunk: c, err: err}
		}(i, p)
	}

	chunks := make([]*Chunk, len(paths))
	errs := make([]error, len(paths))
	for range paths {
		r := <-results
		chunks[r.index] = r.chunk
		errs[r.index] = r.err
	}
	return chunks, errs
}
