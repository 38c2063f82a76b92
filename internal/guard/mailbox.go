package guard

import (
	"context"
	"sync/atomic"
)

// Request lifecycle. A request leaves pending exactly once: either the owner
// starts it (running) or its caller gives up first (abandoned).
const (
	requestPending int32 = iota
	requestRunning
	requestAbandoned
)

type request[S any] struct {
	t      transition[S]
	status atomic.Int32
	reply  chan outcome[S] // buffered, size 1: the owner never blocks on reply
}

// Mailbox is a Store whose state is owned by a single goroutine.
//
// Callers enqueue requests; the owner goroutine drains them in FIFO order
// and is the only code that ever reads or writes the state. There is no
// lock around the state at all: serialization comes from the owner loop.
//
// Thread-safety model:
//   - Update, View, Close: safe from any goroutine
//   - the state: touched only by the owner goroutine
//
// Close must not be called from inside a transition.
type Mailbox[S any] struct {
	core
	state S // owned by the run goroutine
	queue *requestQueue[*request[S]]
	done  chan struct{}
}

// NewMailbox creates a mailbox store holding initial and starts its owner goroutine.
func NewMailbox[S any](initial S, opts ...Option) *Mailbox[S] {
	m := &Mailbox[S]{
		state: initial,
		queue: newRequestQueue[*request[S]](),
		done:  make(chan struct{}),
	}
	m.init(string(BackendMailbox), opts)
	go m.run()
	return m
}

// Update implements Store.
func (m *Mailbox[S]) Update(ctx context.Context, fn func(S) (S, error)) error {
	return m.do(ctx, updateTransition(fn))
}

// View implements Store.
func (m *Mailbox[S]) View(ctx context.Context, fn func(S) error) error {
	return m.do(ctx, viewTransition(fn))
}

// Close implements Store. It stops accepting requests, fails queued requests
// with ErrClosed and waits for the owner goroutine to exit.
func (m *Mailbox[S]) Close() error {
	if !m.closed.Swap(true) {
		m.queue.Close()
	}
	<-m.done
	return nil
}

func (m *Mailbox[S]) do(ctx context.Context, t transition[S]) error {
	if m.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := m.admission(ctx)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return m.notAdmitted(err)
	}

	req := &request[S]{t: t, reply: make(chan outcome[S], 1)}
	if !m.queue.Enqueue(req) {
		return ErrClosed
	}

	select {
	case o := <-req.reply:
		return finish(o)
	case <-ctx.Done():
		if req.status.CompareAndSwap(requestPending, requestAbandoned) {
			return m.notAdmitted(ctx.Err())
		}
		// The owner already started the request; it runs to completion.
		return finish(<-req.reply)
	}
}

func finish[S any](o outcome[S]) error {
	if o.panicked != nil {
		panic(o.panicked)
	}
	return o.err
}

// run is the owner loop. It returns once the queue is closed and drained.
func (m *Mailbox[S]) run() {
	defer close(m.done)
	m.logger.Debug("mailbox owner starting", "store", m.name)

	for {
		if req, ok := m.queue.TryDequeue(); ok {
			m.serve(req)
			continue
		}

		// The signal channel is closed when the queue is closed; nothing can
		// be enqueued after that, so an empty closed queue ends the loop.
		if _, open := <-m.queue.Wait(); !open && m.queue.Len() == 0 {
			m.logger.Debug("mailbox owner stopping", "store", m.name)
			return
		}
	}
}

// serve runs one request. Called only from the owner goroutine.
func (m *Mailbox[S]) serve(req *request[S]) {
	if !req.status.CompareAndSwap(requestPending, requestRunning) {
		return // caller gave up before admission
	}
	if m.closed.Load() {
		req.reply <- outcome[S]{err: ErrClosed}
		return
	}

	var o outcome[S]
	sec := m.clock.Enclose(func() {
		o = apply(m.state, req.t)
		if o.commit {
			m.state = o.next
		}
	})
	m.observe(sec, o.err, o.panicked)

	req.reply <- o
}
