package guard

import "sync/atomic"

// Clock hands out logical stamps for critical sections. The zero value is
// ready to use; the first stamp is 1.
//
// A store stamps on entry to and exit from each section while it holds
// exclusive access, so section stamps are ordered exactly as the sections
// ran. Safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose next stamp is 1.
func NewClock() *Clock {
	return new(Clock)
}

// Next issues a fresh stamp, greater than every stamp issued before it.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the most recent stamp, or 0 if none was issued.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Section is the stamp interval of one admitted operation.
type Section struct {
	Acquire int64
	Release int64
}

// Enclose runs fn between two stamps. The caller must hold exclusive
// access to the store for the whole call. Release is stamped even if fn
// panics.
func (c *Clock) Enclose(fn func()) (s Section) {
	s.Acquire = c.Next()
	defer func() { s.Release = c.Next() }()
	fn()
	return s
}
