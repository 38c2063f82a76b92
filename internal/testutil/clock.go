package testutil

import "sync"

// DeterministicClock is a history.Clock for tests that can be rewound, so
// one scenario can be replayed with identical stamps.
//
// It also remembers every stamp it issued, which lets tests check that a
// run consumed exactly the stamps they expected.
//
// Thread-safety: All methods are safe for concurrent use.
type DeterministicClock struct {
	mu     sync.Mutex
	seq    int64
	issued []int64
}

// NewDeterministicClock creates a clock whose first stamp is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next issues the next stamp.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.issued = append(c.issued, c.seq)
	return c.seq
}

// Current returns the last issued stamp, 0 if none.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Issued returns the number of stamps issued since creation or Reset.
func (c *DeterministicClock) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issued)
}

// Reset rewinds the clock. The next stamp is 1 again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
	c.issued = c.issued[:0]
}
