// Package refcount tracks how many clones currently read each snapshot.
package refcount

import "sync"

// Counter is a concurrency-safe reference counter keyed by snapshot uuid.
// A count above zero vetoes snapshot deletion.
type Counter struct {
	mu   sync.Mutex
	refs map[string]uint32
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{
		refs: make(map[string]uint32),
	}
}

// Incr adds one reference to uuid.
func (c *Counter) Incr(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[uuid]++
}

// Decr removes one reference from uuid. Decrementing past zero is a no-op.
func (c *Counter) Decr(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.refs[uuid]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.refs, uuid)
		return
	}
	c.refs[uuid] = n - 1
}

// Get returns the current reference count of uuid.
func (c *Counter) Get(uuid string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[uuid]
}
