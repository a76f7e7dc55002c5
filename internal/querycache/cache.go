// Package querycache is the process-local cache of list pages and single
// records fetched from the inventory API.
//
// Entries are never evicted. Invalidation marks list entries stale so the
// last good result stays readable while a refetch runs; watchers registered
// per resource are told about list invalidations so mounted views can refetch.
package querycache

import (
	"sync"
	"time"
)

// Key identifies one list query. Filters is the canonical encoding of the
// active filters, so equal queries produce equal keys.
type Key struct {
	Resource string
	Page     int
	PageSize int
	Filters  string
}

// DetailKey identifies one record.
type DetailKey struct {
	Resource string
	ID       uint
}

// Entry is a cached value.
type Entry struct {
	Value     any
	Stale     bool
	UpdatedAt time.Time
}

const (
	kindList   = "list"
	kindDetail = "detail"
)

// Cache is safe for concurrent use.
type Cache struct {
	now func() time.Time

	mu      sync.RWMutex
	lists   map[Key]*Entry
	details map[DetailKey]*Entry

	// detailGen outlives removed entries so a load started before a removal
	// can tell it lost the race.
	detailGen map[DetailKey]uint64
	watchers  map[string]map[uint64]func()
	nextID    uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		now:       time.Now,
		lists:     make(map[Key]*Entry),
		details:   make(map[DetailKey]*Entry),
		detailGen: make(map[DetailKey]uint64),
		watchers:  make(map[string]map[uint64]func()),
	}
}

// Get returns the list entry for k.
func (c *Cache) Get(k Key) (Entry, bool) {
	c.mu.RLock()
	e := c.lists[k]
	c.mu.RUnlock()

	recordLookup(kindList, e)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Put stores a fresh list result under k.
func (c *Cache) Put(k Key, v any) {
	c.mu.Lock()
	c.lists[k] = &Entry{Value: v, UpdatedAt: c.now()}
	n := len(c.lists)
	c.mu.Unlock()

	Entries.WithLabelValues(kindList).Set(float64(n))
}

// HasList reports whether any list entry exists for resource, fresh or stale.
func (c *Cache) HasList(resource string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k := range c.lists {
		if k.Resource == resource {
			return true
		}
	}
	return false
}

// InvalidateList marks every list entry of resource stale, then calls the
// resource's watchers. It returns the number of entries marked.
func (c *Cache) InvalidateList(resource string) int {
	c.mu.Lock()
	marked := 0
	for k, e := range c.lists {
		if k.Resource == resource && !e.Stale {
			e.Stale = true
			marked++
		}
	}
	watchers := make([]func(), 0, len(c.watchers[resource]))
	for _, fn := range c.watchers[resource] {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	InvalidationsTotal.WithLabelValues(kindList, "stale").Add(float64(marked))
	for _, fn := range watchers {
		fn()
	}
	return marked
}

// Watch registers fn to run after every InvalidateList of resource. fn runs
// on the invalidating goroutine, outside the cache lock. The returned cancel
// func is idempotent.
func (c *Cache) Watch(resource string, fn func()) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.watchers[resource] == nil {
		c.watchers[resource] = make(map[uint64]func())
	}
	c.watchers[resource][id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers[resource], id)
			if len(c.watchers[resource]) == 0 {
				delete(c.watchers, resource)
			}
			c.mu.Unlock()
		})
	}
}

// GetDetail returns the detail entry for k.
func (c *Cache) GetDetail(k DetailKey) (Entry, bool) {
	c.mu.RLock()
	e := c.details[k]
	c.mu.RUnlock()

	recordLookup(kindDetail, e)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// PutDetail stores a fresh record under k.
func (c *Cache) PutDetail(k DetailKey, v any) {
	c.mu.Lock()
	c.details[k] = &Entry{Value: v, UpdatedAt: c.now()}
	c.detailGen[k]++
	n := len(c.details)
	c.mu.Unlock()

	Entries.WithLabelValues(kindDetail).Set(float64(n))
}

// DetailGeneration returns the change counter of k. Every put, invalidation
// and removal of k advances it, whether or not an entry exists.
func (c *Cache) DetailGeneration(k DetailKey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detailGen[k]
}

// PutDetailIf stores v under k only if k has not changed since gen was read
// with DetailGeneration. It reports whether v was stored.
func (c *Cache) PutDetailIf(k DetailKey, v any, gen uint64) bool {
	c.mu.Lock()
	if c.detailGen[k] != gen {
		c.mu.Unlock()
		return false
	}
	c.details[k] = &Entry{Value: v, UpdatedAt: c.now()}
	c.detailGen[k]++
	n := len(c.details)
	c.mu.Unlock()

	Entries.WithLabelValues(kindDetail).Set(float64(n))
	return true
}

// InvalidateDetail marks the record stale. It reports whether an entry existed.
func (c *Cache) InvalidateDetail(k DetailKey) bool {
	c.mu.Lock()
	e, ok := c.details[k]
	if ok {
		e.Stale = true
	}
	c.detailGen[k]++
	c.mu.Unlock()

	if ok {
		InvalidationsTotal.WithLabelValues(kindDetail, "stale").Inc()
	}
	return ok
}

// RemoveDetail drops the record. It reports whether an entry existed.
func (c *Cache) RemoveDetail(k DetailKey) bool {
	c.mu.Lock()
	_, ok := c.details[k]
	delete(c.details, k)
	c.detailGen[k]++
	n := len(c.details)
	c.mu.Unlock()

	if ok {
		InvalidationsTotal.WithLabelValues(kindDetail, "remove").Inc()
		Entries.WithLabelValues(kindDetail).Set(float64(n))
	}
	return ok
}
