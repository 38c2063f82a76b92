package guard

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Mutex is a Store guarded by a single-permit weighted semaphore.
//
// The semaphore admits waiters in FIFO order and honours context
// cancellation while waiting: a waiter that gives up is removed from the
// queue without ever holding the permit. The calling goroutine runs its
// transition itself while holding the permit.
type Mutex[S any] struct {
	core
	sem   *semaphore.Weighted
	state S // guarded by sem
}

// NewMutex creates a lock-based store holding initial.
func NewMutex[S any](initial S, opts ...Option) *Mutex[S] {
	m := &Mutex[S]{
		sem:   semaphore.NewWeighted(1),
		state: initial,
	}
	m.init(string(BackendMutex), opts)
	return m
}

// Update implements Store.
func (m *Mutex[S]) Update(ctx context.Context, fn func(S) (S, error)) error {
	return m.do(ctx, updateTransition(fn))
}

// View implements Store.
func (m *Mutex[S]) View(ctx context.Context, fn func(S) error) error {
	return m.do(ctx, viewTransition(fn))
}

// Close implements Store. Operations already admitted finish normally;
// operations still waiting fail with ErrClosed once admitted.
func (m *Mutex[S]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.logger.Debug("store closed", "store", m.name)
	return nil
}

func (m *Mutex[S]) do(ctx context.Context, t transition[S]) error {
	if m.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := m.admission(ctx)
	defer cancel()

	// Acquire may take the fast path even when ctx is already done.
	if err := ctx.Err(); err != nil {
		return m.notAdmitted(err)
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return m.notAdmitted(err)
	}
	defer m.sem.Release(1)

	if m.closed.Load() {
		return ErrClosed
	}

	var o outcome[S]
	sec := m.clock.Enclose(func() {
		o = apply(m.state, t)
		if o.commit {
			m.state = o.next
		}
	})
	m.observe(sec, o.err, o.panicked)

	if o.panicked != nil {
		panic(o.panicked)
	}
	return o.err
}
