package sequence

import "sync"

// refill is one in-flight fetch. done is closed once the outcome is published.
type refill struct {
	done chan struct{}
	err  error
}

// ValueCache is the per-sequence pool of reversed, unused values.
// Values leave the pool exactly once and are never put back.
type ValueCache struct {
	mu       sync.Mutex
	pending  []int64
	inflight *refill // at most one fetch per sequence
}

// pop removes the head value. Caller must hold mu.
func (c *ValueCache) pop() (int64, bool) {
	if len(c.pending) == 0 {
		return 0, false
	}
	v := c.pending[0]
	c.pending = c.pending[1:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return v, true
}

// Len returns the number of values waiting to be handed out.
func (c *ValueCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// TryPop returns the head value without ever triggering a fetch.
func (c *ValueCache) TryPop() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pop()
}

// claim pops a value, or returns the refill the caller has to wait on.
// start is true when the caller created that refill and must run it.
func (c *ValueCache) claim() (v int64, ok bool, r *refill, start bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok = c.pop(); ok {
		return v, true, nil, false
	}
	if c.inflight != nil {
		return 0, false, c.inflight, false
	}
	c.inflight = &refill{done: make(chan struct{})}
	return 0, false, c.inflight, true
}

// publish appends all values of a successful fetch (or none on error) and
// wakes every waiter of r.
func (c *ValueCache) publish(r *refill, values []int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.pending = append(c.pending, values...)
	}
	r.err = err
	c.inflight = nil
	close(r.done)
}
