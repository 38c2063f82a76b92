package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/guardian/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // default: <scenarios-dir>/../golden
}

// ScenarioResult holds the result of a single scenario on one backend.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Backend string   `json:"backend,omitempty"`
	Pass    bool     `json:"pass"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario conformance tests",
		Long: `Run YAML scenarios against every store backend.

Each scenario is executed once per backend. A run passes when its step
expectations and assertions hold, its recorded history replays to the
final state, and its snapshot matches the golden file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable scenarios)

Examples:
  guardian test ./testdata/scenarios
  guardian test ./testdata/scenarios --filter "inventory_*"
  guardian test ./testdata/scenarios --update
  guardian test ./testdata/scenarios --golden ./golden --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the name")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default <scenarios-dir>/../golden)")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, scenariosDir string) error {
	if _, err := os.Stat(scenariosDir); errors.Is(err, os.ErrNotExist) {
		return commandError(opts.formatter(cmd), ErrCodeNotFound,
			fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, "x"); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}

	scenarios, err := harness.LoadScenarios(scenariosDir)
	if err != nil {
		return commandError(opts.formatter(cmd), ErrCodeInvalidInput, err.Error(), nil)
	}

	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(scenariosDir, "..", "golden")
	}
	f := opts.formatter(cmd)
	f.VerboseLog("Loaded %d scenario(s) from %s, golden files in %s", len(scenarios), scenariosDir, goldenDir)

	ctx := cmd.Context()
	hopts := harness.Options{
		Logger:         opts.logger(),
		AcquireTimeout: opts.config().Timeout(),
	}

	text := opts.Format != "json"
	w := cmd.OutOrStdout()
	result := TestResult{Scenarios: []ScenarioResult{}}

	for _, sc := range scenarios {
		if opts.Filter != "" {
			if matched, _ := filepath.Match(opts.Filter, sc.Name); !matched {
				continue
			}
		}
		for _, sr := range runScenario(ctx, sc, goldenDir, hopts, opts.Update) {
			result.Scenarios = append(result.Scenarios, sr)
			result.Total++
			if sr.Pass {
				result.Passed++
			} else {
				result.Failed++
			}
			if text {
				printScenario(w, sr, opts.Update)
			}
		}
	}

	if text {
		if result.Total == 0 {
			fmt.Fprintln(w, "No scenarios found.")
		} else {
			fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		}
	} else if result.Failed > 0 {
		if err := f.Fail(result); err != nil {
			return err
		}
	} else if err := f.Success(result); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario runs failed", result.Failed, result.Total))
	}
	return nil
}

// runScenario runs a scenario on each of its backends and checks every
// snapshot against the scenario's golden file.
func runScenario(ctx context.Context, sc *harness.Scenario, goldenDir string, opts harness.Options, update bool) []ScenarioResult {
	results, err := harness.Run(ctx, sc, opts)
	if err != nil {
		return []ScenarioResult{{
			Name:   sc.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}}
	}

	out := make([]ScenarioResult, 0, len(results))
	for _, r := range results {
		sr := ScenarioResult{
			Name:    sc.Name,
			Backend: string(r.Backend),
			Errors:  r.Errors,
		}
		if err := harness.CheckGolden(goldenDir, sc.Name, r, update); err != nil {
			var mismatch *harness.GoldenMismatchError
			if errors.As(err, &mismatch) {
				sr.Errors = append(sr.Errors, fmt.Sprintf("snapshot does not match %s (run with --update to regenerate)", mismatch.Path))
			} else {
				sr.Errors = append(sr.Errors, err.Error())
			}
		}
		sr.Pass = len(sr.Errors) == 0
		out = append(out, sr)
	}
	return out
}

func printScenario(w io.Writer, sr ScenarioResult, updated bool) {
	label := sr.Name
	if sr.Backend != "" {
		label = fmt.Sprintf("%s [%s]", sr.Name, sr.Backend)
	}
	if sr.Pass {
		if updated {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", label)
			return
		}
		fmt.Fprintf(w, "✓ %s\n", label)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", label)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
