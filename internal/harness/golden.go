package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/guardian/internal/canon"
)

// GoldenDir is where golden snapshots live relative to a scenarios directory
// or a test package.
const GoldenDir = "testdata/golden"

// SnapshotJSON returns the canonical JSON snapshot of a result.
func SnapshotJSON(r *Result) ([]byte, error) {
	return canon.Marshal(r.Snapshot())
}

// RunWithGolden executes a scenario on every backend, requires each run to
// pass and compares each snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts Options) []*Result {
	t.Helper()

	results, err := Run(context.Background(), scenario, opts)
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}

	for _, r := range results {
		if !r.Pass {
			t.Errorf("%s on %s failed:\n%s", scenario.Name, r.Backend, joinErrors(r.Errors))
		}
		AssertGolden(t, scenario.Name, r)
	}
	return results
}

// AssertGolden compares an existing result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()

	data, err := SnapshotJSON(r)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// GoldenMismatchError is returned by CheckGolden when a snapshot differs.
type GoldenMismatchError struct {
	Path     string
	Expected []byte
	Actual   []byte
}

func (e *GoldenMismatchError) Error() string {
	return fmt.Sprintf("golden mismatch for %s:\n  expected: %s\n  actual:   %s", e.Path, e.Expected, e.Actual)
}

// CheckGolden compares a result's snapshot with {goldenDir}/{name}.golden
// outside of go test. With update set, the file is (re)written instead.
func CheckGolden(goldenDir, name string, r *Result, update bool) error {
	data, err := SnapshotJSON(r)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}

	path := filepath.Join(goldenDir, name+".golden")
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(expected), data) {
		return &GoldenMismatchError{Path: path, Expected: bytes.TrimSpace(expected), Actual: data}
	}
	return nil
}

func joinErrors(errs []string) string {
	var buf bytes.Buffer
	for _, e := range errs {
		buf.WriteString("  - ")
		buf.WriteString(e)
		buf.WriteByte('\n')
	}
	return buf.String()
}
