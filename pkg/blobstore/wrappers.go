package blobstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/liliang-cn/hybridann"
)

// CachedStore wraps an inner Store with a read-through in-memory cache
// of raw bytes, composing by holding the inner store by shared
// reference so multiple wrappers can share one backing store.
type CachedStore struct {
	inner Store
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewCachedStore wraps inner with an unbounded read-through cache.
func NewCachedStore(inner Store) *CachedStore {
	return &CachedStore{inner: inner, cache: make(map[string][]byte)}
}

func (c *CachedStore) Get(ctx context.Context, path string) ([]byte, error) {
	c.mu.RLock()
	if v, ok := c.cache[path]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.inner.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[path] = v
	c.mu.Unlock()
	return v, nil
}

func (c *CachedStore) Put(ctx context.Context, path string, data []byte) error {
	if err := c.inner.Put(ctx, path, data); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache[path] = data
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, path string) error {
	if err := c.inner.Delete(ctx, path); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.cache, path)
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.List(ctx, prefix)
}

// RetryingStore wraps an inner Store, retrying retryable
// (hybridann.ErrTransport) failures with capped exponential backoff.
// hybridann.ErrNotFound is never retried.
type RetryingStore struct {
	inner       Store
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryingStore wraps inner with up to maxAttempts tries per call,
// delaying baseDelay*2^(attempt-1) between attempts.
func NewRetryingStore(inner Store, maxAttempts int, baseDelay time.Duration) *RetryingStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingStore{inner: inner, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

func (r *RetryingStore) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, hybridann.ErrNotFound) {
			return lastErr
		}
		if !errors.Is(lastErr, hybridann.ErrTransport) {
			return lastErr
		}
		if attempt == r.maxAttempts {
			break
		}
		delay := r.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (r *RetryingStore) Get(ctx context.Context, path string) ([]byte, error) {
	var out []byte
	err := r.withRetry(ctx, func() error {
		v, err := r.inner.Get(ctx, path)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (r *RetryingStore) Put(ctx context.Context, path string, data []byte) error {
	return r.withRetry(ctx, func() error { return r.inner.Put(ctx, path, data) })
}

func (r *RetryingStore) Delete(ctx context.Context, path string) error {
	return r.withRetry(ctx, func() error { return r.inner.Delete(ctx, path) })
}

func (r *RetryingStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := r.withRetry(ctx, func() error {
		v, err := r.inner.List(ctx, prefix)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
