package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.etcd.io/bbolt"

	"kbase/internal/port"
)

var bucketVectors = []byte("vectors")

// Cache memoizes embeddings by exact input text. Entries are added lazily
// on first lookup. A cache miss triggers exactly one provider fetch from
// the calling goroutine; concurrent queries may race to populate the same
// key and the last write wins; the cost is a wasted fetch.
//
// The cache is unbounded by default. A positive maxEntries switches it to
// an LRU bound, and a non-empty persistence path keeps fetched vectors in a
// bolt database so warm-up survives restarts.
type Cache struct {
	embedder port.Embedder

	mu      sync.RWMutex
	entries map[string][]float32

	lru *lru.Cache[string, []float32]

	db *bbolt.DB
}

// CacheOption configures a Cache.
type CacheOption func(*Cache) error

// WithMaxEntries bounds the cache to n entries with LRU eviction.
func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) error {
		if n <= 0 {
			return nil
		}
		bounded, err := lru.New[string, []float32](n)
		if err != nil {
			return fmt.Errorf("failed to create LRU cache: %w", err)
		}
		c.lru = bounded
		c.entries = nil
		return nil
	}
}

// WithPersistence backs the cache with a bolt database at path.
func WithPersistence(path string) CacheOption {
	return func(c *Cache) error {
		if path == "" {
			return nil
		}
		db, err := bbolt.Open(path, 0600, nil)
		if err != nil {
			return fmt.Errorf("failed to open cache db: %w", err)
		}
		err = db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketVectors)
			return err
		})
		if err != nil {
			db.Close()
			return err
		}
		c.db = db
		return nil
	}
}

// NewCache creates a Cache over the given embedder.
func NewCache(embedder port.Embedder, opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		embedder: embedder,
		entries:  make(map[string][]float32),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the embedding for text, fetching it from the provider on a
// miss. A failed fetch returns (nil, false); callers treat that as a soft
// failure and fall back to lexical-only scoring.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, bool) {
	if vector, ok := c.lookup(text); ok {
		return vector, true
	}

	if c.db != nil {
		if vector, ok := c.lookupPersistent(text); ok {
			c.store(text, vector)
			return vector, true
		}
	}

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil || len(vector) == 0 {
		return nil, false
	}

	c.store(text, vector)
	if c.db != nil {
		c.storePersistent(text, vector)
	}
	return vector, true
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	if c.lru != nil {
		return c.lru.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close releases the persistence database, if any.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) lookup(text string) ([]float32, bool) {
	if c.lru != nil {
		return c.lru.Get(text)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	vector, ok := c.entries[text]
	return vector, ok
}

func (c *Cache) store(text string, vector []float32) {
	if c.lru != nil {
		c.lru.Add(text, vector)
		return
	}
	c.mu.Lock()
	c.entries[text] = vector
	c.mu.Unlock()
}

func cacheKey(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return sum[:]
}

func (c *Cache) lookupPersistent(text string) ([]float32, bool) {
	var vector []float32
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketVectors).Get(cacheKey(text))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &vector)
	})
	if err != nil || len(vector) == 0 {
		return nil, false
	}
	return vector, true
}

// storePersistent is best effort: a write failure costs a refetch after
// restart, nothing else.
func (c *Cache) storePersistent(text string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Put(cacheKey(text), data)
	})
}
