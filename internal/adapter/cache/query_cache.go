package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"

	"cineast/internal/domain"
	"cineast/internal/port"
	"cineast/internal/query"
)

const (
	DefaultMaxSize = 100
	DefaultTTL     = 5 * time.Minute
)

// Key identifies one module query.
type Key struct {
	Module      string
	SegmentID   string
	Fingerprint string
}

// QueryCache is an LRU of ranked results with a TTL. Invalidate drops every
// entry, including those a concurrent Put is about to store.
type QueryCache struct {
	mu      sync.Mutex
	entries map[Key]*list.Element
	order   *list.List
	maxSize int
	ttl     time.Duration
	gen     uint64
	now     func() time.Time
}

type cacheEntry struct {
	key     Key
	results []domain.RankedResult
	stored  time.Time
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Generation changes whenever the cache is invalidated.
func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *QueryCache) Get(key Key) ([]domain.RankedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.stored) > c.ttl {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToBack(el)
	return slices.Clone(e.results), true
}

// Put stores results if the cache is still at generation gen.
func (c *QueryCache) Put(key Key, gen uint64, results []domain.RankedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	e := &cacheEntry{key: key, results: slices.Clone(results), stored: c.now()}
	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.order.MoveToBack(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.entries[key] = c.order.PushBack(e)
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*list.Element)
	c.order.Init()
	c.gen++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *QueryCache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// CachedRetriever caches GetSimilarByID. Queries by example segment are
// passed through, since an ad hoc container id does not identify its content.
type CachedRetriever struct {
	port.Retriever
	cache *QueryCache
}

var _ port.Retriever = (*CachedRetriever)(nil)

func NewCachedRetriever(r port.Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{Retriever: r, cache: cache}
}

func (r *CachedRetriever) GetSimilarByID(ctx context.Context, id string, cfg query.Config) ([]domain.RankedResult, error) {
	key := Key{Module: r.Name(), SegmentID: id, Fingerprint: cfg.Fingerprint()}
	if results, hit := r.cache.Get(key); hit {
		return results, nil
	}

	gen := r.cache.Generation()
	results, err := r.Retriever.GetSimilarByID(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	r.cache.Put(key, gen, results)
	return results, nil
}
