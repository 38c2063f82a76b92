package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/guardian/internal/guard"
	"github.com/roach88/guardian/internal/history"
)

func testResult() *Result {
	r := NewResult("t", guard.BackendMutex)
	r.Records = []history.Record{
		{ID: "op-1", Kind: "get", Case: "Success", Result: "v1"},
		{ID: "op-2", Kind: "get", Case: "Success", Result: "v2"},
		{ID: "op-3", Kind: "get", Case: "NotFound"},
		{ID: "op-4", Kind: "set", Case: "Success", Result: true},
	}
	r.countCases(r.Records)
	r.FinalState = map[string]string{"k": "v2"}
	return r
}

func TestAssertCaseCount(t *testing.T) {
	r := testResult()

	assert.NoError(t, evaluate(r, Assertion{Type: AssertCaseCount, Op: "get", Case: "Success", Count: 2}))
	assert.NoError(t, evaluate(r, Assertion{Type: AssertCaseCount, Op: "get", Case: "NotFound", Count: 1}))
	assert.NoError(t, evaluate(r, Assertion{Type: AssertCaseCount, Op: "delete", Case: "Success", Count: 0}))

	err := evaluate(r, Assertion{Type: AssertCaseCount, Op: "set", Case: "Success", Count: 2})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 times", ae.Actual)
	assert.Contains(t, ae.Error(), "get: NotFound=1 Success=2")
}

func TestAssertResultIn(t *testing.T) {
	r := testResult()

	assert.NoError(t, evaluate(r, Assertion{Type: AssertResultIn, Op: "get", Results: []any{"v1", "v2"}}))

	err := evaluate(r, Assertion{Type: AssertResultIn, Op: "get", Results: []any{"v1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `op-2 returned "v2"`)

	err = evaluate(r, Assertion{Type: AssertResultIn, Op: "len", Results: []any{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one successful len")
}

func TestAssertFinalState(t *testing.T) {
	r := testResult()

	assert.NoError(t, evaluate(r, Assertion{Type: AssertFinalState, Expect: map[string]any{"k": "v2"}}))

	err := evaluate(r, Assertion{Type: AssertFinalState, Expect: map[string]any{"k": "v1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Expected: {"k":"v1"}`)
	assert.Contains(t, err.Error(), `Actual: {"k":"v2"}`)
}

func TestEvaluateAssertions_CollectsAllFailures(t *testing.T) {
	r := testResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertCaseCount, Op: "get", Case: "Success", Count: 2},
		{Type: AssertCaseCount, Op: "set", Case: "Success", Count: 5},
		{Type: AssertFinalState, Expect: 1},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion 1 (case_count)")
	assert.Contains(t, errs[1], "assertion 2 (final_state)")
}

func TestSameCanonical_ComparesAcrossIntegerTypes(t *testing.T) {
	assert.True(t, sameCanonical(map[string]any{"a": 1}, map[string]int64{"a": 1}))
	assert.True(t, sameCanonical(90, int64(90)))
	assert.False(t, sameCanonical("1", 1))
	assert.False(t, sameCanonical(1.5, 1.5), "floats are not canonical")
}

func TestSnapshot_ExcludesSchedulingDetails(t *testing.T) {
	a := testResult()
	b := testResult()
	b.Backend = guard.BackendMailbox
	b.Records[0], b.Records[1] = b.Records[1], b.Records[0]
	b.Records[0].Invoke = 42

	sa, err := SnapshotJSON(a)
	require.NoError(t, err)
	sb, err := SnapshotJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(sa), string(sb))
	assert.Equal(t,
		`{"cases":{"get":{"NotFound":1,"Success":2},"set":{"Success":1}},"final_state":{"k":"v2"},"scenario_name":"t"}`,
		string(sa))
}
