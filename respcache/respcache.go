// Package respcache holds the named response caches: independent
// in-process byte caches keyed by name, one per response class. The
// registry can enumerate and delete them, which is how a full purge
// reaches cached responses.
package respcache

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is one named response cache backed by ristretto. Every entry
// has cost 1, so MaxCost bounds the entry count.
type Cache struct {
	rc *ristretto.Cache[string, []byte]

	mu    sync.Mutex
	loads map[string]*call
}

// call deduplicates concurrent loads for the same key.
type call struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

func newCache(maxCost int64) (*Cache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		rc:    rc,
		loads: make(map[string]*call),
	}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores a value under key with the given TTL. A zero TTL means the
// entry has no automatic expiration.
func (c *Cache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.rc.SetWithTTL(key, bytes.Clone(val), 1, ttl)
	c.rc.Wait()
	return nil
}

// GetOrSet returns the cached value for key. On a miss it calls loader
// once (deduplicating concurrent callers for the same key), stores the
// result, and returns it.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok, _ := c.Get(ctx, key); ok {
		return v, nil
	}

	c.mu.Lock()
	if cl, ok := c.loads[key]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		if cl.err != nil {
			return nil, cl.err
		}
		return bytes.Clone(cl.val), nil
	}

	cl := &call{}
	cl.wg.Add(1)
	c.loads[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = loader(ctx)
	if cl.err == nil {
		_ = c.Set(ctx, key, cl.val, ttl)
	}
	cl.wg.Done()

	c.mu.Lock()
	delete(c.loads, key)
	c.mu.Unlock()

	if cl.err != nil {
		return nil, cl.err
	}
	return bytes.Clone(cl.val), nil
}

// Clear drops every entry without closing the cache.
func (c *Cache) Clear() {
	c.rc.Clear()
}

func (c *Cache) close() {
	c.rc.Close()
}

// Registry owns the named caches. All methods are safe for concurrent
// use.
type Registry struct {
	mu      sync.Mutex
	caches  map[string]*Cache
	maxCost int64
}

// NewRegistry creates a Registry whose caches each hold up to maxCost
// entries.
func NewRegistry(maxCost int64) *Registry {
	return &Registry{
		caches:  make(map[string]*Cache),
		maxCost: maxCost,
	}
}

// Open returns the named cache, creating it on first use.
func (r *Registry) Open(name string) (*Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.caches[name]; ok {
		return c, nil
	}
	c, err := newCache(r.maxCost)
	if err != nil {
		return nil, err
	}
	r.caches[name] = c
	return c, nil
}

// Names returns the registered cache names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete closes and forgets the named cache. Deleting an unknown name
// is a no-op.
func (r *Registry) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.caches[name]; ok {
		c.close()
		delete(r.caches, name)
	}
	return nil
}

// Purge deletes every named cache independently.
func (r *Registry) Purge(ctx context.Context) {
	for _, name := range r.Names() {
		_ = r.Delete(ctx, name)
	}
}
