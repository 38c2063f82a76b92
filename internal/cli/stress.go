package cli

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/guardian/internal/canon"
	"github.com/roach88/guardian/internal/guard"
	"github.com/roach88/guardian/internal/history"
	"github.com/roach88/guardian/internal/journal"
	"github.com/roach88/guardian/internal/ledger"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Backend string
	Workers int
	Ops     int
	Stock   int
	Journal string
}

// StressReport is the outcome of one stress run.
type StressReport struct {
	RunID      string                    `json:"run_id"`
	Store      string                    `json:"store"`
	Backend    string                    `json:"backend"`
	Workers    int                       `json:"workers"`
	Ops        int                       `json:"ops_per_worker"`
	Operations int                       `json:"operations"`
	Cases      map[string]map[string]int `json:"cases"`
	FinalState any                       `json:"final_state"`
	Stats      guard.Stats               `json:"stats"`
	Pass       bool                      `json:"pass"`
	Violations []string                  `json:"violations,omitempty"`
	Journal    string                    `json:"journal,omitempty"`
	Elapsed    string                    `json:"elapsed"`
}

// String renders the report for text output.
func (r *StressReport) String() string {
	var b strings.Builder
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s %s on %s: %d workers x %d ops, %d operations in %s\n",
		mark, r.Store, r.Backend, r.Workers, r.Ops, r.Operations, r.Elapsed)

	ops := make([]string, 0, len(r.Cases))
	for op := range r.Cases {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		cases := make([]string, 0, len(r.Cases[op]))
		for c, n := range r.Cases[op] {
			cases = append(cases, fmt.Sprintf("%s=%d", c, n))
		}
		sort.Strings(cases)
		fmt.Fprintf(&b, "  %-10s %s\n", op, strings.Join(cases, " "))
	}
	fmt.Fprintf(&b, "  admitted=%d rejected=%d failed=%d panicked=%d\n",
		r.Stats.Admitted, r.Stats.Rejected, r.Stats.Failed, r.Stats.Panicked)
	if r.Journal != "" {
		fmt.Fprintf(&b, "  journaled run %s to %s\n", r.RunID, r.Journal)
	}
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "  violation: %s\n", v)
	}
	return b.String()
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress <counter|inventory|cache>",
		Short: "Hammer a guarded store and verify its history",
		Long: `Run concurrent workers against a guarded store, record every operation
with logical stamps, and verify:

  - the store's invariants (no lost increments, no negative stock)
  - that the recorded history is linearizable
  - that sequential replay reproduces the final state

Defaults for --backend, --workers, --ops, --stock and --journal come
from the config file.

Exit codes:
  0 - All checks passed
  1 - An invariant or linearizability check failed
  2 - Command error (unknown store, bad flags, journal error)

Examples:
  guardian stress counter
  guardian stress inventory --backend mailbox --workers 16 --stock 20
  guardian stress cache --journal runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		ValidArgs:     []string{"counter", "inventory", "cache"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyConfig(cmd)
			return runStress(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", "", "store backend (mutex|mailbox)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent workers")
	cmd.Flags().IntVar(&opts.Ops, "ops", 0, "operations per worker")
	cmd.Flags().IntVar(&opts.Stock, "stock", 0, "initial stock per product (inventory)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal path")

	return cmd
}

// applyConfig fills flags the user did not set from the loaded config.
func (o *StressOptions) applyConfig(cmd *cobra.Command) {
	cfg := o.config()
	if !cmd.Flags().Changed("backend") {
		o.Backend = cfg.Backend
	}
	if !cmd.Flags().Changed("workers") {
		o.Workers = cfg.Stress.Workers
	}
	if !cmd.Flags().Changed("ops") {
		o.Ops = cfg.Stress.Ops
	}
	if !cmd.Flags().Changed("stock") {
		o.Stock = cfg.Stress.Stock
	}
	if !cmd.Flags().Changed("journal") {
		o.Journal = cfg.Journal
	}
}

func runStress(cmd *cobra.Command, opts *StressOptions, kind string) error {
	backend, err := guard.ParseBackend(opts.Backend)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --backend", err)
	}
	if opts.Workers <= 0 || opts.Ops <= 0 || opts.Stock < 0 {
		return NewExitError(ExitCommandError, "--workers and --ops must be positive and --stock non-negative")
	}

	ctx := cmd.Context()

	var report *StressReport
	switch kind {
	case "counter":
		report, err = stress(ctx, opts, backend, counterWorkload())
	case "inventory":
		report, err = stress(ctx, opts, backend, inventoryWorkload(int64(opts.Stock)))
	case "cache":
		report, err = stress(ctx, opts, backend, cacheWorkload())
	default:
		return commandError(opts.formatter(cmd), ErrCodeInvalidInput,
			fmt.Sprintf("unknown store %q", kind), cmd.ValidArgs)
	}
	if err != nil {
		return err
	}

	f := opts.formatter(cmd)
	if !report.Pass {
		if err := f.Fail(report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s stress run failed %d checks", kind, len(report.Violations)))
	}
	return f.Success(report)
}

// workload drives one kind of store under stress.
type workload[S any] struct {
	kind    string
	initial S
	clone   func(S) S

	// step performs operation i of a worker. Domain failures such as
	// insufficient stock are outcomes, not errors; step returns an error
	// only when the store itself misbehaves.
	step func(ctx context.Context, rec *history.Recorder[S], st guard.Store[S], worker, i int) error

	// invariants checks domain rules that hold whatever the interleaving.
	invariants func(initial, final S, records []history.Record) []string
}

func stress[S any](ctx context.Context, opts *StressOptions, backend guard.Backend, w workload[S]) (*StressReport, error) {
	logger := opts.logger().With("store", w.kind, "backend", backend)
	st, err := guard.New(backend, w.clone(w.initial), append(
		opts.config().StoreOptions(logger), guard.WithName(w.kind))...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create store", err)
	}
	defer st.Close()

	rec := history.NewRecorder[S](w.kind, history.WithClassifier(ledger.Case))
	report := &StressReport{
		RunID:   history.UUIDv7Generator{}.Generate(),
		Store:   w.kind,
		Backend: string(backend),
		Workers: opts.Workers,
		Ops:     opts.Ops,
		Pass:    true,
	}

	logger.Info("stress run starting", "run_id", report.RunID, "workers", opts.Workers, "ops", opts.Ops)
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < opts.Workers; worker++ {
		worker := worker
		g.Go(func() error {
			for i := 0; i < opts.Ops; i++ {
				if err := w.step(gctx, rec, st, worker, i); err != nil {
					return fmt.Errorf("worker %d op %d: %w", worker, i, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		report.fail(err.Error())
	}
	report.Elapsed = time.Since(started).Round(time.Microsecond).String()

	model, err := history.Replay(w.initial, w.clone, rec.Entries())
	if err != nil {
		report.fail(fmt.Sprintf("history is not linearizable: %v", err))
	}

	final, err := guard.Read(ctx, st, func(s S) (S, error) { return w.clone(s), nil })
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read final state", err)
	}
	report.FinalState = final
	if !equalState(model, final) {
		report.fail(fmt.Sprintf("final state %v differs from sequential replay %v", final, model))
	}

	records := rec.Records()
	report.Operations = len(records)
	report.Cases = countCases(records)
	for _, v := range w.invariants(w.initial, final, records) {
		report.fail(v)
	}
	if s, ok := st.(interface{ Stats() guard.Stats }); ok {
		report.Stats = s.Stats()
	}

	if opts.Journal != "" {
		if err := writeJournal(ctx, opts.Journal, report, records); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to write journal", err)
		}
		report.Journal = opts.Journal
	}

	logger.Info("stress run finished",
		"run_id", report.RunID,
		"pass", report.Pass,
		"operations", report.Operations,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (r *StressReport) fail(violation string) {
	r.Pass = false
	r.Violations = append(r.Violations, violation)
}

func writeJournal(ctx context.Context, path string, report *StressReport, records []history.Record) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	return j.WriteRun(ctx, journal.Run{
		ID:      report.RunID,
		Store:   report.Store,
		Backend: report.Backend,
		Kind:    report.Store,
		Workers: report.Workers,
		Ops:     report.Ops,
		Final:   report.FinalState,
	}, records)
}

func countCases(records []history.Record) map[string]map[string]int {
	cases := make(map[string]map[string]int)
	for _, r := range records {
		if cases[r.Kind] == nil {
			cases[r.Kind] = make(map[string]int)
		}
		cases[r.Kind][r.Case]++
	}
	return cases
}

func equalState(a, b any) bool {
	ab, err := canon.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := canon.Marshal(b)
	return err == nil && string(ab) == string(bb)
}

// stepErr drops outcomes that are part of normal operation: domain
// failures and operations the store timed out before admitting.
func stepErr(err error) error {
	if err == nil || guard.IsNotAdmitted(err) || ledger.Case(err) != ledger.CaseError {
		return nil
	}
	return err
}

func counterWorkload() workload[int64] {
	return workload[int64]{
		kind:  "counter",
		clone: func(n int64) int64 { return n },
		step: func(ctx context.Context, rec *history.Recorder[int64], st guard.Store[int64], worker, i int) error {
			if i%10 == 9 {
				_, err := history.View(ctx, rec, st, "value", nil, ledger.ValueOp)
				return stepErr(err)
			}
			_, err := history.Update(ctx, rec, st, "increment", nil, ledger.IncrementOp)
			return stepErr(err)
		},
		invariants: func(initial, final int64, records []history.Record) []string {
			increments := int64(0)
			for _, r := range records {
				if r.Kind == "increment" && r.Case == history.CaseSuccess {
					increments++
				}
			}
			if final != initial+increments {
				return []string{fmt.Sprintf("lost update: %d successful increments from %d, final value %d",
					increments, initial, final)}
			}
			return nil
		},
	}
}

var stressProducts = []string{"P-1", "P-2", "P-3", "P-4"}

func inventoryWorkload(stock int64) workload[ledger.Stock] {
	initial := ledger.Stock{}
	for _, id := range stressProducts {
		initial[id] = stock
	}

	return workload[ledger.Stock]{
		kind:    "inventory",
		initial: initial,
		clone:   maps.Clone[ledger.Stock],
		step: func(ctx context.Context, rec *history.Recorder[ledger.Stock], st guard.Store[ledger.Stock], worker, i int) error {
			id := stressProducts[(worker+i)%len(stressProducts)]
			qty := int64((worker*7+i)%3 + 1)
			args := map[string]any{"product": id, "qty": qty}

			var err error
			switch {
			case i%17 == 16:
				_, err = history.Update(ctx, rec, st, "restock", args, ledger.RestockOp(id, qty))
			case i%5 == 4:
				delete(args, "qty")
				_, err = history.View(ctx, rec, st, "stock", args, ledger.StockOp(id))
			default:
				_, err = history.Update(ctx, rec, st, "reserve", args, ledger.ReserveOp(id, qty))
			}
			return stepErr(err)
		},
		invariants: func(initial, final ledger.Stock, records []history.Record) []string {
			var violations []string
			expected := maps.Clone(initial)
			for _, r := range records {
				if r.Case != history.CaseSuccess {
					continue
				}
				id, _ := r.Args["product"].(string)
				qty, _ := r.Args["qty"].(int64)
				switch r.Kind {
				case "reserve":
					expected[id] -= qty
				case "restock":
					expected[id] += qty
				}
			}
			for _, id := range stressProducts {
				if final[id] < 0 {
					violations = append(violations, fmt.Sprintf("oversold %s: stock %d", id, final[id]))
				}
				if final[id] != expected[id] {
					violations = append(violations, fmt.Sprintf("stock of %s is %d, successful operations imply %d",
						id, final[id], expected[id]))
				}
			}
			return violations
		},
	}
}

var stressKeys = []string{"k-0", "k-1", "k-2", "k-3", "k-4", "k-5", "k-6", "k-7"}

func cacheWorkload() workload[map[string]string] {
	return workload[map[string]string]{
		kind:    "cache",
		initial: map[string]string{},
		clone:   maps.Clone[map[string]string],
		step: func(ctx context.Context, rec *history.Recorder[map[string]string], st guard.Store[map[string]string], worker, i int) error {
			key := stressKeys[(worker*3+i)%len(stressKeys)]
			args := map[string]any{"key": key}

			var err error
			switch i % 4 {
			case 0, 1:
				value := fmt.Sprintf("w%d-%d", worker, i)
				args["value"] = value
				_, err = history.Update(ctx, rec, st, "set", args, ledger.SetOp(key, value))
			case 2:
				_, err = history.View(ctx, rec, st, "get", args, ledger.GetOp[string, string](key))
			default:
				_, err = history.Update(ctx, rec, st, "delete", args, ledger.DeleteOp[string, string](key))
			}
			return stepErr(err)
		},
		invariants: func(_, final map[string]string, _ []history.Record) []string {
			var violations []string
			for k := range final {
				if !strings.HasPrefix(k, "k-") {
					violations = append(violations, fmt.Sprintf("unexpected key %q", k))
				}
			}
			if len(final) > len(stressKeys) {
				violations = append(violations, fmt.Sprintf("cache holds %d keys, at most %d written", len(final), len(stressKeys)))
			}
			return violations
		},
	}
}
