package memo

import (
	"container/list"
	"strings"
	"sync"

	"github.com/danielpatrickdp/emotion-core/internal/calib"
)

// #region constants
// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 1000

// #endregion constants

// #region cache
// Cache is a bounded LRU from normalized input text to a shared *calib.Result.
// Get promotes the entry to most-recently-used; Put evicts the LRU entry at
// capacity. Results are treated as immutable by every holder.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
}

type entry struct {
	key    string
	result *calib.Result
}

// NewCache creates a Cache. capacity <= 0 falls back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// #endregion cache

// #region get
// Get returns the cached result for key, promoting it on hit.
func (c *Cache) Get(key string) (*calib.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).result, true
}

// #endregion get

// #region put
// Put stores a result, replacing any existing entry for key and evicting the
// least-recently-used entry once over capacity.
func (c *Cache) Put(key string, result *calib.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).result = result
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, result: result})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

// #endregion put

// #region len
// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// #endregion len

// #region normalize
// NormalizeKey lower-cases and whitespace-collapses text into the cache key.
// Callers must normalize consistently or the hit rate silently degrades; a
// miss only costs a recompute, never a wrong answer.
func NormalizeKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// #endregion normalize
