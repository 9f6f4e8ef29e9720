package heuristic

// fifoCache is a bounded mapping from normalized command text to a
// previously computed match result. Entries leave only by FIFO eviction;
// there is no explicit clear. The cache is owned exclusively by the
// [Matcher], which handles locking.
type fifoCache struct {
	capacity int
	order    []string
	entries  map[string]*Result
}

func newFIFOCache(capacity int) *fifoCache {
	return &fifoCache{
		capacity: capacity,
		entries:  make(map[string]*Result, capacity),
	}
}

// get returns the cached result for key, if present.
func (c *fifoCache) get(key string) (*Result, bool) {
	r, ok := c.entries[key]
	return r, ok
}

// put stores res under key, evicting the oldest entry when full. Re-putting
// an existing key replaces the value without changing its eviction position.
func (c *fifoCache) put(key string, res *Result) {
	if c.capacity <= 0 {
		return
	}
	if _, ok := c.entries[key]; ok {
		c.entries[key] = res
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = res
}

// len reports the number of cached entries.
func (c *fifoCache) len() int { return len(c.entries) }
