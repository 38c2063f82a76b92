package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Store is an exclusive-access guarded store for state of type S.
//
// Thread-safety: all methods are safe for concurrent use.
type Store[S any] interface {
	// Update admits the caller, passes the current state to fn and, if fn
	// returns a nil error, replaces the state with the value fn returned.
	// If fn returns an error the state is left untouched and the error is
	// returned unchanged.
	Update(ctx context.Context, fn func(S) (S, error)) error

	// View admits the caller and passes the current state to fn.
	// The state is never replaced. fn must not retain references into it.
	View(ctx context.Context, fn func(S) error) error

	// Close stops the store. Later calls fail with ErrClosed.
	Close() error
}

// Run executes op against st and returns its result.
// On error the state is unchanged and the zero R is returned.
func Run[S, R any](ctx context.Context, st Store[S], op func(S) (R, S, error)) (R, error) {
	var result R
	err := st.Update(ctx, func(s S) (S, error) {
		r, next, err := op(s)
		if err != nil {
			return s, err
		}
		result = r
		return next, nil
	})
	return result, err
}

// Read executes a read-only op against st and returns its result.
func Read[S, R any](ctx context.Context, st Store[S], op func(S) (R, error)) (R, error) {
	var result R
	err := st.View(ctx, func(s S) error {
		r, err := op(s)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// Backend names a Store implementation.
type Backend string

const (
	// BackendMutex selects the lock-based Mutex store.
	BackendMutex Backend = "mutex"
	// BackendMailbox selects the owner-goroutine Mailbox store.
	BackendMailbox Backend = "mailbox"
)

// Backends lists the available backends in a stable order.
var Backends = []Backend{BackendMutex, BackendMailbox}

// ParseBackend converts a backend name (case-insensitive) into a Backend.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendMutex:
		return BackendMutex, nil
	case BackendMailbox:
		return BackendMailbox, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// New creates a store holding initial, using the given backend.
func New[S any](backend Backend, initial S, opts ...Option) (Store[S], error) {
	switch backend {
	case BackendMutex:
		return NewMutex(initial, opts...), nil
	case BackendMailbox:
		return NewMailbox(initial, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Option configures a store.
type Option func(*core)

// WithName sets the store name used in logs and errors.
func WithName(name string) Option {
	return func(c *core) {
		c.name = name
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock shares a logical clock between stores.
func WithClock(clock *Clock) Option {
	return func(c *core) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithAcquireTimeout bounds admission for callers whose context carries no
// deadline. Zero (the default) waits until the context ends.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *core) {
		c.timeout = d
	}
}

// Stats is a snapshot of a store's counters.
type Stats struct {
	Admitted int64 `json:"admitted"` // operations that ran
	Rejected int64 `json:"rejected"` // callers that gave up before admission
	Failed   int64 `json:"failed"`   // admitted operations that returned an error
	Panicked int64 `json:"panicked"` // admitted operations that panicked
}

// core holds what both backends share: identity, logging, stamping and counters.
type core struct {
	name    string
	logger  *slog.Logger
	clock   *Clock
	timeout time.Duration
	closed  atomic.Bool

	admitted atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
	panicked atomic.Int64
}

func (c *core) init(kind string, opts []Option) {
	c.name = kind
	c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c.clock = NewClock()
	for _, opt := range opts {
		opt(c)
	}
}

// Name returns the store name.
func (c *core) Name() string {
	return c.name
}

// Clock returns the clock stamping this store's critical sections.
func (c *core) Clock() *Clock {
	return c.clock
}

// Stats returns a snapshot of the store's counters.
func (c *core) Stats() Stats {
	return Stats{
		Admitted: c.admitted.Load(),
		Rejected: c.rejected.Load(),
		Failed:   c.failed.Load(),
		Panicked: c.panicked.Load(),
	}
}

// admission derives the context used while waiting to be admitted.
func (c *core) admission(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			return context.WithTimeout(ctx, c.timeout)
		}
	}
	return ctx, func() {}
}

func (c *core) notAdmitted(err error) error {
	c.rejected.Add(1)
	c.logger.Debug("operation not admitted", "store", c.name, "err", err)
	return &AdmissionError{Store: c.name, Err: err}
}

// observe records the outcome of one critical section.
func (c *core) observe(sec Section, err error, panicked any) {
	c.admitted.Add(1)
	switch {
	case panicked != nil:
		c.panicked.Add(1)
		c.logger.Error("operation panicked",
			"store", c.name,
			"acquire", sec.Acquire,
			"release", sec.Release,
			"panic", panicked,
		)
	case err != nil:
		c.failed.Add(1)
		c.logger.Debug("operation failed",
			"store", c.name,
			"acquire", sec.Acquire,
			"release", sec.Release,
			"err", err,
		)
	default:
		c.logger.Debug("operation applied",
			"store", c.name,
			"acquire", sec.Acquire,
			"release", sec.Release,
		)
	}
}

// transition is the internal form of both Update and View:
// it returns the next state and whether that state should be committed.
type transition[S any] func(S) (S, bool, error)

func updateTransition[S any](fn func(S) (S, error)) transition[S] {
	return func(s S) (S, bool, error) {
		next, err := fn(s)
		return next, err == nil, err
	}
}

func viewTransition[S any](fn func(S) error) transition[S] {
	return func(s S) (S, bool, error) {
		return s, false, fn(s)
	}
}

// outcome is the result of running a transition inside a critical section.
type outcome[S any] struct {
	next     S
	commit   bool
	err      error
	panicked any
}

// apply runs t against state, converting a panic into outcome.panicked so the
// caller can release the store before re-raising it.
func apply[S any](state S, t transition[S]) (o outcome[S]) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome[S]{panicked: r}
		}
	}()
	next, commit, err := t(state)
	return outcome[S]{next: next, commit: commit && err == nil, err: err}
}
