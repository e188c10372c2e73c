package ranking

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// CachingAnalyzer memoizes another Analyzer by normalized query text. Entries
// expire after ttl and the least recently used entry is evicted at capacity.
// Errors are not cached.
type CachingAnalyzer struct {
	next     Analyzer
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
}

type analysisEntry struct {
	key      string
	analysis *models.QueryAnalysis
	expires  time.Time
}

// NewCachingAnalyzer wraps next. A non-positive ttl disables expiry.
func NewCachingAnalyzer(next Analyzer, ttl time.Duration, capacity int) *CachingAnalyzer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &CachingAnalyzer{
		next:     next,
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Analyze implements Analyzer. Callers receive their own copy.
func (c *CachingAnalyzer) Analyze(ctx context.Context, query string) (*models.QueryAnalysis, error) {
	key := utils.NormalizeQuery(query)
	if a, ok := c.get(key); ok {
		return a, nil
	}
	a, err := c.next.Analyze(ctx, query)
	if err != nil {
		return nil, err
	}
	c.set(key, a.Clone())
	return a, nil
}

func (c *CachingAnalyzer) get(key string) (*models.QueryAnalysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*analysisEntry)
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return e.analysis.Clone(), true
}

func (c *CachingAnalyzer) set(key string, a *models.QueryAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*analysisEntry)
		e.analysis, e.expires = a, expires
		c.lru.MoveToFront(elem)
		return
	}
	c.items[key] = c.lru.PushFront(&analysisEntry{key: key, analysis: a, expires: expires})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*analysisEntry).key)
	}
}

// Len returns the number of cached analyses, expired or not.
func (c *CachingAnalyzer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
