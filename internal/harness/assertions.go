package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/guardian/internal/history"
)

// AssertionError is returned when an assertion fails.
// It includes the outcome counts to help debug the failure.
type AssertionError struct {
	Type     string                    // Assertion type for categorization
	Expected string                    // Human-readable expected outcome
	Actual   string                    // Human-readable actual outcome
	Cases    map[string]map[string]int // Outcome counts for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Cases) > 0 {
		fmt.Fprintf(&buf, "\nOutcomes:\n")
		ops := make([]string, 0, len(e.Cases))
		for op := range e.Cases {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			cases := make([]string, 0, len(e.Cases[op]))
			for c, n := range e.Cases[op] {
				cases = append(cases, fmt.Sprintf("%s=%d", c, n))
			}
			sort.Strings(cases)
			fmt.Fprintf(&buf, "  %s: %s\n", op, strings.Join(cases, " "))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCaseCount:
		return assertCaseCount(result, a)
	case AssertResultIn:
		return assertResultIn(result.Records, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertCaseCount checks that op finished with the given case exactly Count times.
func assertCaseCount(result *Result, a Assertion) error {
	got := result.CaseCount(a.Op, a.Case)
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCaseCount,
		Expected: fmt.Sprintf("%s finished with %s %d times", a.Op, a.Case, a.Count),
		Actual:   fmt.Sprintf("%d times", got),
		Cases:    result.Cases,
	}
}

// assertResultIn checks that every successful execution of op returned one
// of the allowed results. At least one execution must have succeeded.
func assertResultIn(records []history.Record, a Assertion) error {
	allowed := make([]string, len(a.Results))
	for i, r := range a.Results {
		allowed[i] = canonString(r)
	}

	seen := 0
	for _, rec := range records {
		if rec.Kind != a.Op || rec.Case != history.CaseSuccess {
			continue
		}
		seen++
		if !anyCanonical(rec.Result, a.Results) {
			return &AssertionError{
				Type:     AssertResultIn,
				Expected: fmt.Sprintf("%s result in [%s]", a.Op, strings.Join(allowed, ", ")),
				Actual:   fmt.Sprintf("%s returned %s", rec.ID, canonString(rec.Result)),
			}
		}
	}
	if seen == 0 {
		return &AssertionError{
			Type:     AssertResultIn,
			Expected: fmt.Sprintf("at least one successful %s", a.Op),
			Actual:   "none",
		}
	}
	return nil
}

// assertFinalState checks the final store state for equality.
func assertFinalState(result *Result, a Assertion) error {
	if sameCanonical(a.Expect, result.FinalState) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: canonString(a.Expect),
		Actual:   canonString(result.FinalState),
	}
}

func anyCanonical(v any, candidates []any) bool {
	for _, c := range candidates {
		if sameCanonical(v, c) {
			return true
		}
	}
	return false
}
