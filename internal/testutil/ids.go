package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequenceGenerator issues readable operation IDs: "op-1", "op-2", ...
//
// Unlike history.FixedGenerator it never runs out, so it suits concurrent
// scenarios whose operation count is only known at run time. IDs are unique
// but, under concurrency, not assigned in any particular order.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewSequenceGenerator creates a generator. An empty prefix means "op".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "op"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
