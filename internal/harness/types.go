package harness

import (
	"github.com/roach88/guardian/internal/guard"
	"github.com/roach88/guardian/internal/history"
)

// Result is the outcome of running a scenario on one backend.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Backend is the backend the scenario ran on.
	Backend guard.Backend `json:"backend"`

	// Pass is true if every expect clause and assertion held and the
	// recorded history is linearizable.
	Pass bool `json:"pass"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Cases counts outcomes per operation: op -> case -> count.
	Cases map[string]map[string]int `json:"cases"`

	// FinalState is the store state after the last step.
	FinalState any `json:"final_state"`

	// Records is the recorded history ordered by invoke stamp.
	Records []history.Record `json:"records"`

	// Stats are the store counters at the end of the run.
	Stats guard.Stats `json:"stats"`
}

// NewResult creates a new passing result.
func NewResult(scenario string, backend guard.Backend) *Result {
	return &Result{
		Scenario: scenario,
		Backend:  backend,
		Pass:     true,
		Errors:   []string{},
		Cases:    make(map[string]map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CaseCount returns how many times op finished with outcome c.
func (r *Result) CaseCount(op, c string) int {
	return r.Cases[op][c]
}

func (r *Result) countCases(records []history.Record) {
	for _, rec := range records {
		byCase := r.Cases[rec.Kind]
		if byCase == nil {
			byCase = make(map[string]int)
			r.Cases[rec.Kind] = byCase
		}
		byCase[rec.Case]++
	}
}

// Snapshot is the backend-independent part of a result. It is what golden
// files hold, so it must not depend on scheduling.
func (r *Result) Snapshot() map[string]any {
	cases := make(map[string]any, len(r.Cases))
	for op, byCase := range r.Cases {
		counts := make(map[string]any, len(byCase))
		for c, n := range byCase {
			counts[c] = n
		}
		cases[op] = counts
	}
	return map[string]any{
		"scenario_name": r.Scenario,
		"cases":         cases,
		"final_state":   r.FinalState,
	}
}
