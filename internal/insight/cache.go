package insight

import (
	"strings"
	"sync"

	"github.com/joelkehle/ideafit/internal/jsonsafe"
)

const DefaultCacheSize = 50

// Key identifies a cached completion. The zero Key disables caching.
type Key string

func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, "\x1f"))
}

func (k Key) String() string {
	return strings.ReplaceAll(string(k), "\x1f", "|")
}

// Cache is a bounded FIFO map: reads never refresh an entry's position and a
// full cache evicts the oldest inserted key.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]map[string]any
	order    []Key
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{capacity: capacity, entries: make(map[Key]map[string]any, capacity)}
}

// Get returns a copy of the cached payload. Empty payloads count as misses.
func (c *Cache) Get(k Key) (map[string]any, bool) {
	if k == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[k]
	if !ok || len(v) == 0 {
		return nil, false
	}
	return jsonsafe.DeepCopy(v), true
}

func (c *Cache) Set(k Key, v map[string]any) {
	if k == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, k)
	}
	c.entries[k] = jsonsafe.DeepCopy(v)
}

func (c *Cache) Contains(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[k]
	return ok
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cache) Capacity() int { return c.capacity }
