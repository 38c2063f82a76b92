package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/guardian/internal/guard"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			results := RunWithGolden(t, sc, Options{})
			assert.Len(t, results, len(guard.Backends))
		})
	}
}

func TestRun_ContendedReservationOnEachBackend(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/inventory_contended_reservation.yaml")
	require.NoError(t, err)

	results, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.True(t, r.Pass, "%s: %v", r.Backend, r.Errors)
		assert.Equal(t, 1, r.CaseCount("reserve", "Success"))
		assert.Equal(t, 1, r.CaseCount("reserve", "InsufficientStock"))
		assert.Equal(t, map[string]int64{"PROD-1": 1}, r.FinalState)
		assert.Len(t, r.Records, 2)
		assert.Equal(t, int64(3), r.Stats.Admitted, "two reservations and the final read")
		assert.Equal(t, int64(1), r.Stats.Failed)
	}
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: wrong_expectations
kind: inventory
initial: { widget: 3 }
concurrent:
  - op: reserve
    args: { product: widget, qty: 2 }
    repeat: 2
    expect: { case: Success }
assertions:
  - type: case_count
    op: reserve
    case: Success
    count: 2
  - type: final_state
    expect: { widget: 0 }
`))
	require.NoError(t, err)

	results, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)

	for _, r := range results {
		assert.False(t, r.Pass)
		joined := strings.Join(r.Errors, "\n")
		assert.Contains(t, joined, "expected case Success, got InsufficientStock")
		assert.Contains(t, joined, "assertion 0 (case_count)")
		assert.Contains(t, joined, "assertion 1 (final_state)")
	}
}

func TestRun_SetupFailureIsAnError(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: bad_setup
kind: inventory
setup:
  - op: reserve
    args: { product: widget, qty: 1 }
concurrent:
  - op: stock
    args: { product: widget }
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), sc, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] reserve")
}

func TestRun_BadArgumentsAreAnError(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: bad_args
kind: inventory
concurrent:
  - op: reserve
    args: { product: widget, qty: "two" }
`))
	require.NoError(t, err)

	_, err = RunOn(context.Background(), sc, guard.BackendMutex, Options{})
	require.Error(t, err)
	var argErr *ArgError
	assert.ErrorAs(t, err, &argErr)
	assert.Equal(t, "qty", argErr.Name)
}

func TestRun_BadInitialState(t *testing.T) {
	for _, src := range []string{
		"name: x\nkind: inventory\ninitial: { widget: -1 }\nconcurrent:\n  - op: stock\n    args: { product: widget }\n",
		"name: x\nkind: inventory\ninitial: [1, 2]\nconcurrent:\n  - op: stock\n    args: { product: widget }\n",
		"name: x\nkind: counter\ninitial: many\nconcurrent:\n  - op: value\n",
		"name: x\nkind: cache\ninitial: { k: v }\nconcurrent:\n  - op: len\n",
	} {
		sc, err := ParseScenario([]byte(src))
		require.NoError(t, err)
		_, err = RunOn(context.Background(), sc, guard.BackendMutex, Options{})
		assert.Error(t, err, src)
	}
}

func TestRun_CacheOperations(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: cache_ops
kind: cache
setup:
  - op: set
    args: { key: a, value: "1" }
  - op: set
    args: { key: b, value: "2" }
concurrent:
  - op: delete
    args: { key: a }
    expect: { case: Success, result: true }
  - op: delete
    args: { key: missing }
    expect: { case: Success, result: false }
then:
  - op: get
    args: { key: a }
    expect: { case: NotFound }
  - op: len
    expect: { case: Success, result: 1 }
assertions:
  - type: final_state
    expect: { b: "2" }
`))
	require.NoError(t, err)

	results, err := Run(context.Background(), sc, Options{})
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Pass, "%s: %v", r.Backend, r.Errors)
	}
}

func TestRun_CounterSeed(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: counter_seed
kind: counter
initial: 100
concurrent:
  - op: increment
    repeat: 10
assertions:
  - type: final_state
    expect: 110
`))
	require.NoError(t, err)

	results, err := Run(context.Background(), sc, Options{AcquireTimeout: time.Second})
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Pass, "%s: %v", r.Backend, r.Errors)
	}
}

func TestCheckGolden(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/counter_concurrent_increments.yaml")
	require.NoError(t, err)
	r, err := RunOn(context.Background(), sc, guard.BackendMailbox, Options{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "golden")

	// Missing golden file.
	require.Error(t, CheckGolden(dir, sc.Name, r, false))

	// Update writes it, then it matches.
	require.NoError(t, CheckGolden(dir, sc.Name, r, true))
	require.NoError(t, CheckGolden(dir, sc.Name, r, false))

	// The committed golden file matches too.
	require.NoError(t, CheckGolden(GoldenDir, sc.Name, r, false))

	// A different result does not.
	r.FinalState = int64(99)
	err = CheckGolden(dir, sc.Name, r, false)
	var mismatch *GoldenMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, string(mismatch.Actual), `"final_state":99`)
}
