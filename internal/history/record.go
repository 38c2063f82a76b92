package history

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/guardian/internal/guard"
)

// Cases assigned by the recorder itself. Other cases come from the classifier.
const (
	CaseSuccess     = "Success"
	CaseError       = "Error"
	CaseNotAdmitted = "NotAdmitted"
)

// Record is the store-independent part of a recorded operation.
// It is what the journal persists.
type Record struct {
	ID     string         `json:"id"`
	Store  string         `json:"store"`
	Kind   string         `json:"kind"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
	Case   string         `json:"case"`
	Error  string         `json:"error,omitempty"`

	Invoke  int64 `json:"invoke"`
	Acquire int64 `json:"acquire"` // 0 if never admitted
	Release int64 `json:"release"`
	Return  int64 `json:"return"`
}

// Admitted reports whether the operation ran inside the store.
func (r Record) Admitted() bool {
	return r.Acquire != 0
}

// Entry is a recorded operation together with what is needed to replay it.
type Entry[S any] struct {
	Record
	Err    error
	replay func(S) (any, S, error)
}

// Clock issues strictly increasing logical stamps.
// Implemented by guard.Clock and testutil.DeterministicClock.
type Clock interface {
	Next() int64
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	clock    Clock
	ids      IDGenerator
	classify func(error) string
}

// WithClock sets the clock used for stamps. Default: a fresh guard.Clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithIDs sets the operation ID generator. Default: UUIDv7Generator.
func WithIDs(ids IDGenerator) Option {
	return func(o *options) {
		o.ids = ids
	}
}

// WithClassifier sets the function mapping an operation error to a case name.
// Default: CaseSuccess for nil, CaseError otherwise.
func WithClassifier(classify func(error) string) Option {
	return func(o *options) {
		o.classify = classify
	}
}

// Recorder collects the history of operations issued against one store.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder[S any] struct {
	store    string
	clock    Clock
	ids      IDGenerator
	classify func(error) string

	mu      sync.Mutex
	entries []Entry[S]
}

// NewRecorder creates an empty recorder for the named store.
func NewRecorder[S any](store string, opts ...Option) *Recorder[S] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = guard.NewClock()
	}
	if o.ids == nil {
		o.ids = UUIDv7Generator{}
	}
	if o.classify == nil {
		o.classify = func(err error) string {
			if err != nil {
				return CaseError
			}
			return CaseSuccess
		}
	}
	return &Recorder[S]{
		store:    store,
		clock:    o.clock,
		ids:      o.ids,
		classify: o.classify,
	}
}

// Update runs op against st through guard.Run and records it.
func Update[S, R any](
	ctx context.Context,
	rec *Recorder[S],
	st guard.Store[S],
	kind string,
	args map[string]any,
	op func(S) (R, S, error),
) (R, error) {
	e := rec.begin(kind, args)

	result, err := guard.Run(ctx, st, func(s S) (R, S, error) {
		e.Acquire = rec.clock.Next()
		defer func() { e.Release = rec.clock.Next() }()
		return op(s)
	})

	e.replay = func(s S) (any, S, error) {
		r, next, err := op(s)
		if err != nil {
			return nil, s, err
		}
		return r, next, nil
	}
	rec.finish(e, result, err)
	return result, err
}

// View runs a read-only op against st through guard.Read and records it.
func View[S, R any](
	ctx context.Context,
	rec *Recorder[S],
	st guard.Store[S],
	kind string,
	args map[string]any,
	op func(S) (R, error),
) (R, error) {
	e := rec.begin(kind, args)

	result, err := guard.Read(ctx, st, func(s S) (R, error) {
		e.Acquire = rec.clock.Next()
		defer func() { e.Release = rec.clock.Next() }()
		return op(s)
	})

	e.replay = func(s S) (any, S, error) {
		r, err := op(s)
		if err != nil {
			return nil, s, err
		}
		return r, s, nil
	}
	rec.finish(e, result, err)
	return result, err
}

func (rec *Recorder[S]) begin(kind string, args map[string]any) *Entry[S] {
	return &Entry[S]{
		Record: Record{
			ID:     rec.ids.Generate(),
			Store:  rec.store,
			Kind:   kind,
			Args:   args,
			Invoke: rec.clock.Next(),
		},
	}
}

func (rec *Recorder[S]) finish(e *Entry[S], result any, err error) {
	e.Return = rec.clock.Next()
	e.Err = err

	switch {
	case !e.Admitted():
		e.Case = CaseNotAdmitted
	default:
		e.Case = rec.classify(err)
	}
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Result = result
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.entries = append(rec.entries, *e)
}

// Store returns the name of the recorded store.
func (rec *Recorder[S]) Store() string {
	return rec.store
}

// Len returns the number of recorded operations.
func (rec *Recorder[S]) Len() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.entries)
}

// Entries returns a copy of the history ordered by Invoke.
func (rec *Recorder[S]) Entries() []Entry[S] {
	rec.mu.Lock()
	out := slices.Clone(rec.entries)
	rec.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry[S]) int {
		return compareInt64(a.Invoke, b.Invoke)
	})
	return out
}

// Records returns the store-independent part of Entries.
func (rec *Recorder[S]) Records() []Record {
	entries := rec.Entries()
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record
	}
	return out
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
