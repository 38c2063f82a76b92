package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/guardian/internal/canon"
	"github.com/roach88/guardian/internal/guard"
	"github.com/roach88/guardian/internal/history"
	"github.com/roach88/guardian/internal/ledger"
	"github.com/roach88/guardian/internal/testutil"
)

// DefaultStepTimeout bounds every operation so a broken store fails the
// scenario instead of hanging it.
const DefaultStepTimeout = 10 * time.Second

// Options configures a scenario run.
type Options struct {
	// Logger receives store and harness logs. Default: discard.
	Logger *slog.Logger

	// AcquireTimeout is passed to the store as guard.WithAcquireTimeout.
	AcquireTimeout time.Duration

	// StepTimeout bounds each operation. Default: DefaultStepTimeout.
	StepTimeout time.Duration
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o Options) stepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return DefaultStepTimeout
	}
	return o.StepTimeout
}

// Run executes a scenario once per backend and returns one result each.
//
// Every backend must produce the same snapshot; a mismatch is reported as
// an error on the later result.
//
// Execution flow per backend:
//  1. Create a fresh store holding the scenario's initial state
//  2. Execute setup steps sequentially
//  3. Release all concurrent steps at once and wait for them
//  4. Execute then steps sequentially
//  5. Replay the recorded history and compare with the final state
//  6. Evaluate assertions
func Run(ctx context.Context, sc *Scenario, opts Options) ([]*Result, error) {
	var results []*Result
	for _, backend := range sc.BackendKinds() {
		r, err := RunOn(ctx, sc, backend, opts)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", sc.Name, backend, err)
		}
		results = append(results, r)
	}

	for _, r := range results[1:] {
		if !sameCanonical(results[0].Snapshot(), r.Snapshot()) {
			r.AddError(fmt.Sprintf("snapshot on %s differs from %s: %s vs %s",
				r.Backend, results[0].Backend,
				snapshotString(r), snapshotString(results[0])))
		}
	}
	return results, nil
}

// RunOn executes a scenario on a single backend.
func RunOn(ctx context.Context, sc *Scenario, backend guard.Backend, opts Options) (*Result, error) {
	switch sc.Kind {
	case KindCounter:
		return runKind(ctx, sc, backend, counterKind, opts)
	case KindCache:
		return runKind(ctx, sc, backend, cacheKind, opts)
	case KindInventory:
		return runKind(ctx, sc, backend, inventoryKind, opts)
	default:
		return nil, fmt.Errorf("unknown kind %q", sc.Kind)
	}
}

// runner executes the steps of one scenario against one store.
type runner[S any] struct {
	kind    storeKind[S]
	st      guard.Store[S]
	rec     *history.Recorder[S]
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex // guards result.Errors during the concurrent phase
	result *Result
}

func runKind[S any](ctx context.Context, sc *Scenario, backend guard.Backend, kind storeKind[S], opts Options) (*Result, error) {
	initial, err := kind.initial(sc.Initial)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}

	logger := opts.logger().With("scenario", sc.Name, "backend", backend)
	storeOpts := []guard.Option{guard.WithName(kind.name), guard.WithLogger(logger)}
	if opts.AcquireTimeout > 0 {
		storeOpts = append(storeOpts, guard.WithAcquireTimeout(opts.AcquireTimeout))
	}
	st, err := guard.New(backend, kind.clone(initial), storeOpts...)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	h := &runner[S]{
		kind: kind,
		st:   st,
		rec: history.NewRecorder[S](kind.name,
			history.WithClock(testutil.NewDeterministicClock()),
			history.WithIDs(testutil.NewSequenceGenerator("op")),
			history.WithClassifier(ledger.Case),
		),
		logger:  logger,
		timeout: opts.stepTimeout(),
		result:  NewResult(sc.Name, backend),
	}

	for i, step := range sc.Setup {
		if err := h.sequential(ctx, "setup", i, step, true); err != nil {
			return nil, err
		}
	}
	if err := h.concurrent(ctx, sc.Concurrent); err != nil {
		return nil, err
	}
	for i, step := range sc.Then {
		if err := h.sequential(ctx, "then", i, step, false); err != nil {
			return nil, err
		}
	}

	result := h.result
	model, err := history.Replay(initial, kind.clone, h.rec.Entries())
	if err != nil {
		result.AddError(fmt.Sprintf("history is not linearizable: %v", err))
	}

	final, err := guard.Read(ctx, st, func(s S) (S, error) {
		return kind.clone(s), nil
	})
	if err != nil {
		return nil, fmt.Errorf("read final state: %w", err)
	}
	result.FinalState = final
	if !sameCanonical(model, final) {
		result.AddError(fmt.Sprintf("final state %s differs from sequential replay %s",
			canonString(final), canonString(model)))
	}

	result.Records = h.rec.Records()
	result.countCases(result.Records)
	if s, ok := st.(interface{ Stats() guard.Stats }); ok {
		result.Stats = s.Stats()
	}

	for _, msg := range EvaluateAssertions(result, sc.Assertions) {
		result.AddError(msg)
	}

	logger.Info("scenario finished",
		"pass", result.Pass,
		"operations", len(result.Records),
		"errors", len(result.Errors),
	)
	return result, nil
}

// sequential runs one step. Setup steps without an expect clause must succeed.
func (h *runner[S]) sequential(ctx context.Context, phase string, index int, step Step, mustSucceed bool) error {
	value, err := h.run(ctx, step)
	var argErr *ArgError
	if errors.As(err, &argErr) {
		return fmt.Errorf("%s[%d] %s: %w", phase, index, step.Op, err)
	}

	if step.Expect != nil {
		h.check(phase, index, step, value, err)
		return nil
	}
	if mustSucceed && err != nil {
		return fmt.Errorf("%s[%d] %s: %w", phase, index, step.Op, err)
	}
	return nil
}

// concurrent starts one goroutine per step execution, releases them together
// and waits for all of them.
func (h *runner[S]) concurrent(ctx context.Context, steps []Step) error {
	total := 0
	for _, step := range steps {
		total += step.Times()
	}

	start := make(chan struct{})
	argErrs := make(chan error, total)
	var wg sync.WaitGroup
	for i, step := range steps {
		i, step := i, step
		for n := 0; n < step.Times(); n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start

				value, err := h.run(ctx, step)
				var argErr *ArgError
				if errors.As(err, &argErr) {
					argErrs <- fmt.Errorf("concurrent[%d] %s: %w", i, step.Op, err)
					return
				}
				if step.Expect != nil {
					h.check("concurrent", i, step, value, err)
				}
			}()
		}
	}

	h.logger.Debug("releasing concurrent steps", "goroutines", total)
	close(start)
	wg.Wait()
	close(argErrs)

	return <-argErrs // nil if the channel is empty
}

func (h *runner[S]) run(ctx context.Context, step Step) (any, error) {
	op := h.kind.ops[step.Op]
	if op == nil {
		return nil, fmt.Errorf("unknown %s op %q", h.kind.name, step.Op)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return op(ctx, h.rec, h.st, normalizeArgs(step.Args))
}

func (h *runner[S]) check(phase string, index int, step Step, value any, err error) {
	got := ledger.Case(err)
	if guard.IsNotAdmitted(err) {
		got = history.CaseNotAdmitted
	}

	switch {
	case got != step.Expect.Case:
		h.addError(fmt.Sprintf("%s[%d] %s: expected case %s, got %s (%v)",
			phase, index, step.Op, step.Expect.Case, got, err))
	case err == nil && step.Expect.Result != nil && !sameCanonical(step.Expect.Result, value):
		h.addError(fmt.Sprintf("%s[%d] %s: expected result %s, got %s",
			phase, index, step.Op, canonString(step.Expect.Result), canonString(value)))
	}
}

func (h *runner[S]) addError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.AddError(msg)
}

// sameCanonical reports whether a and b have the same canonical JSON form.
// This compares YAML-decoded expectations (int, map[string]any) with typed
// store values (int64, map[string]int64) by value.
func sameCanonical(a, b any) bool {
	ab, err := canon.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := canon.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func canonString(v any) string {
	b, err := canon.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func snapshotString(r *Result) string {
	return canonString(r.Snapshot())
}
