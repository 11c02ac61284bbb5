package cache

import (
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item struct {
	Value      interface{}
	Expiration int64
	created    int64
}

// Expired checks if the cache item has expired
func (item Item) Expired() bool {
	if item.Expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > item.Expiration
}

// Options configures a Cache
type Options struct {
	// DefaultExpiration applies to Set; zero means items never expire
	DefaultExpiration time.Duration
	// CleanupInterval controls the expired-item sweep; zero disables it
	CleanupInterval time.Duration
	// MaxItems bounds the cache; zero means unbounded
	MaxItems int
}

// Cache is a thread-safe in-memory cache with expiration
type Cache struct {
	items             map[string]Item
	mu                sync.RWMutex
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	maxItems          int
	onEvicted         func(string, interface{})
	loadMu            sync.Mutex
	stop              chan struct{}
	stopOnce          sync.Once
}

// NewCache creates a new cache with the given options
func NewCache(opts Options) *Cache {
	cache := &Cache{
		items:             make(map[string]Item),
		defaultExpiration: opts.DefaultExpiration,
		cleanupInterval:   opts.CleanupInterval,
		maxItems:          opts.MaxItems,
		stop:              make(chan struct{}),
	}

	// Start cleanup goroutine if cleanup interval > 0
	if cache.cleanupInterval > 0 {
		go cache.startCleanupTimer()
	}

	return cache
}

// Set adds an item to the cache with the default expiration
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithExpiration(key, value, c.defaultExpiration)
}

// SetWithExpiration adds an item to the cache with a specific expiration time
func (c *Cache) SetWithExpiration(key string, value interface{}, d time.Duration) {
	now := time.Now()
	var exp int64
	if d > 0 {
		exp = now.Add(d).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Make room for new keys only
	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = Item{
		Value:      value,
		Expiration: exp,
		created:    now.UnixNano(),
	}
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.Expired() {
		return nil, false
	}

	return item.Value, true
}

// GetOrLoad returns the cached value for key or calls load and caches its result.
// Concurrent misses call load once; errors are not cached.
func (c *Cache) GetOrLoad(key string, load func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found && c.onEvicted != nil {
		c.onEvicted(key, item.Value)
	}

	delete(c.items, key)
}

// Count returns the number of items in the cache (including expired items)
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// SetOnEvicted sets the callback to be called when an item is evicted
func (c *Cache) SetOnEvicted(f func(string, interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onEvicted = f
}

// Stop ends the cleanup goroutine
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// startCleanupTimer starts the cleanup ticker
func (c *Cache) startCleanupTimer() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

// deleteExpired deletes all expired items from the cache
func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for k, v := range c.items {
		if v.Expiration > 0 && now > v.Expiration {
			// Call onEvicted if it exists
			if c.onEvicted != nil {
				c.onEvicted(k, v.Value)
			}

			delete(c.items, k)
		}
	}
}

// evictOldest removes the item inserted first. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest int64
	found := false

	for k, v := range c.items {
		if !found || v.created < oldest {
			oldestKey = k
			oldest = v.created
			found = true
		}
	}

	if !found {
		return
	}

	if c.onEvicted != nil {
		c.onEvicted(oldestKey, c.items[oldestKey].Value)
	}
	delete(c.items, oldestKey)
}
