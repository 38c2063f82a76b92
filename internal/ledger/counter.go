package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/guardian/internal/guard"
)

// IncrementOp adds one and returns the new value. A counter at
// math.MaxInt64 fails with ErrOverflow and keeps its value.
func IncrementOp(n int64) (int64, int64, error) {
	if n == math.MaxInt64 {
		return n, n, fmt.Errorf("%w: counter at %d", ErrOverflow, n)
	}
	next := n + 1
	return next, next, nil
}

// ValueOp reads the counter.
func ValueOp(n int64) (int64, error) {
	return n, nil
}

// Counter is a guarded integer counter.
type Counter struct {
	st guard.Store[int64]
}

// NewCounter wraps an existing store.
func NewCounter(st guard.Store[int64]) *Counter {
	return &Counter{st: st}
}

// OpenCounter creates a counter starting at initial on the given backend.
func OpenCounter(backend guard.Backend, initial int64, opts ...guard.Option) (*Counter, error) {
	st, err := guard.New(backend, initial, opts...)
	if err != nil {
		return nil, err
	}
	return NewCounter(st), nil
}

// Increment atomically adds one and returns the new value. Two concurrent
// calls never observe the same previous value.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	return guard.Run(ctx, c.st, IncrementOp)
}

// Value returns the current value.
func (c *Counter) Value(ctx context.Context) (int64, error) {
	return guard.Read(ctx, c.st, ValueOp)
}

// Store returns the underlying store.
func (c *Counter) Store() guard.Store[int64] {
	return c.st
}

// Close closes the underlying store.
func (c *Counter) Close() error {
	return c.st.Close()
}
