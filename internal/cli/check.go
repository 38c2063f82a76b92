package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/guardian/internal/journal"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Journal string
}

// RunReport is the JSON form of one checked run.
type RunReport struct {
	RunID      string `json:"run_id"`
	Store      string `json:"store"`
	Backend    string `json:"backend"`
	Operations int    `json:"operations"`
	Admitted   int    `json:"admitted"`
	Pass       bool   `json:"pass"`
	Error      string `json:"error,omitempty"`
}

// CheckResult holds the outcome of checking a journal.
type CheckResult struct {
	Journal string      `json:"journal"`
	Runs    []RunReport `json:"runs"`
	Failed  int         `json:"failed"`
}

// String renders the result for text output.
func (r *CheckResult) String() string {
	var b strings.Builder
	if len(r.Runs) == 0 {
		fmt.Fprintf(&b, "No runs in %s\n", r.Journal)
		return b.String()
	}
	for _, run := range r.Runs {
		mark := "✓"
		if !run.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s %s on %s: %d operations, %d admitted\n",
			mark, run.RunID, run.Store, run.Backend, run.Operations, run.Admitted)
		if run.Error != "" {
			for _, line := range strings.Split(run.Error, "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		}
	}
	fmt.Fprintf(&b, "\n%d runs, %d failed\n", len(r.Runs), r.Failed)
	return b.String()
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the critical sections of journaled runs",
		Long: `Read every run from a SQLite journal written by "guardian stress --journal"
and verify its stamps: each admitted operation acquires after it was
invoked and returns after it released, and no two critical sections on
the same store overlap.

Exit codes:
  0 - All runs passed
  1 - One or more runs have overlapping or misordered sections
  2 - Command error (journal not found or unreadable)

Examples:
  guardian check --journal runs.db
  guardian check --config guardian.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("journal") {
				opts.Journal = opts.config().Journal
			}
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal path (default from config)")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	f := opts.formatter(cmd)
	if opts.Journal == "" {
		return commandError(f, ErrCodeInvalidInput, "no journal given: use --journal or set journal in the config", nil)
	}
	// Open would create an empty journal.
	if _, err := os.Stat(opts.Journal); errors.Is(err, os.ErrNotExist) {
		return commandError(f, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Journal), nil)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	reports, err := j.Check(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := &CheckResult{Journal: opts.Journal, Runs: make([]RunReport, 0, len(reports))}
	for _, r := range reports {
		rr := RunReport{
			RunID:      r.Run.ID,
			Store:      r.Run.Store,
			Backend:    r.Run.Backend,
			Operations: r.Operations,
			Admitted:   r.Admitted,
			Pass:       r.Err == nil,
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
			result.Failed++
		}
		opts.logger().Debug("checked run", "run_id", rr.RunID, "pass", rr.Pass)
		result.Runs = append(result.Runs, rr)
	}

	if result.Failed > 0 {
		if err := f.Fail(result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d journaled runs failed", result.Failed, len(result.Runs)))
	}
	return f.Success(result)
}
