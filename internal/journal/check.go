package journal

import (
	"context"
	"fmt"

	"github.com/roach88/guardian/internal/history"
)

// Report is the outcome of checking one journaled run.
type Report struct {
	Run        Run
	Operations int
	Admitted   int
	Err        error // nil if the run's sections are valid
}

// Check verifies the stamps of every journaled run with history.CheckSections.
// A run whose sections are invalid is reported, not returned as an error;
// the error return is reserved for failures reading the journal.
func (j *Journal) Check(ctx context.Context) ([]Report, error) {
	runs, err := j.ReadRuns(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(runs))
	for _, run := range runs {
		records, err := j.ReadRecords(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("check run %s: %w", run.ID, err)
		}

		report := Report{Run: run, Operations: len(records)}
		for _, r := range records {
			if r.Admitted() {
				report.Admitted++
			}
		}
		report.Err = history.CheckSections(records)
		reports = append(reports, report)
	}
	return reports, nil
}
