package ledger

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/guardian/internal/guard"
)

// SetOp stores v under k and reports whether it replaced an existing value.
func SetOp[K comparable, V any](k K, v V) func(map[K]V) (bool, map[K]V, error) {
	return func(m map[K]V) (bool, map[K]V, error) {
		_, replaced := m[k]
		m[k] = v
		return replaced, m, nil
	}
}

// GetOp reads the value under k, failing with ErrNotFound if absent.
func GetOp[K comparable, V any](k K) func(map[K]V) (V, error) {
	return func(m map[K]V) (V, error) {
		v, ok := m[k]
		if !ok {
			var zero V
			return zero, fmt.Errorf("%w: key %v", ErrNotFound, k)
		}
		return v, nil
	}
}

// DeleteOp removes k and reports whether it was present.
func DeleteOp[K comparable, V any](k K) func(map[K]V) (bool, map[K]V, error) {
	return func(m map[K]V) (bool, map[K]V, error) {
		_, ok := m[k]
		delete(m, k)
		return ok, m, nil
	}
}

// Cache is a guarded key-value map.
//
// Values are stored and returned by value. If V is itself a reference type
// the caller owns aliasing between what it stores and what it reads back.
type Cache[K comparable, V any] struct {
	st guard.Store[map[K]V]
}

// NewCache wraps an existing store. The store's state must be a non-nil map.
func NewCache[K comparable, V any](st guard.Store[map[K]V]) *Cache[K, V] {
	return &Cache[K, V]{st: st}
}

// OpenCache creates an empty cache on the given backend.
func OpenCache[K comparable, V any](backend guard.Backend, opts ...guard.Option) (*Cache[K, V], error) {
	st, err := guard.New(backend, make(map[K]V), opts...)
	if err != nil {
		return nil, err
	}
	return NewCache(st), nil
}

// Set stores v under k.
func (c *Cache[K, V]) Set(ctx context.Context, k K, v V) error {
	_, err := guard.Run(ctx, c.st, SetOp(k, v))
	return err
}

// Get returns the value under k, or an error matching ErrNotFound.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	return guard.Read(ctx, c.st, GetOp[K, V](k))
}

// Delete removes k and reports whether it was present.
func (c *Cache[K, V]) Delete(ctx context.Context, k K) (bool, error) {
	return guard.Run(ctx, c.st, DeleteOp[K, V](k))
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len(ctx context.Context) (int, error) {
	return guard.Read(ctx, c.st, func(m map[K]V) (int, error) {
		return len(m), nil
	})
}

// Snapshot returns a copy of the cache contents.
func (c *Cache[K, V]) Snapshot(ctx context.Context) (map[K]V, error) {
	return guard.Read(ctx, c.st, func(m map[K]V) (map[K]V, error) {
		return maps.Clone(m), nil
	})
}

// Store returns the underlying store.
func (c *Cache[K, V]) Store() guard.Store[map[K]V] {
	return c.st
}

// Close closes the underlying store.
func (c *Cache[K, V]) Close() error {
	return c.st.Close()
}
