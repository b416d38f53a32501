package usecase

import "sync"

// FailureCounter tallies dual-write failures keyed "<EntityType>:<operation>"
type FailureCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewFailureCounter creates an empty counter
func NewFailureCounter() *FailureCounter {
	return &FailureCounter{counts: make(map[string]int64)}
}

// Increment adds one failure under key
func (c *FailureCounter) Increment(key string) {
	c.mu.Lock()
	c.counts[key]++
	c.mu.Unlock()
}

// Get returns the count for key
func (c *FailureCounter) Get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// Total returns the sum over all keys
func (c *FailureCounter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Snapshot returns a copy of all counts
func (c *FailureCounter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Reset clears every count
func (c *FailureCounter) Reset() {
	c.mu.Lock()
	c.counts = make(map[string]int64)
	c.mu.Unlock()
}
