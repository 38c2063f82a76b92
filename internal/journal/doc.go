// Package journal provides SQLite-backed storage for recorded store
// histories, so a run can be checked again after the process exits.
//
// The journal holds two tables:
//   - runs: one row per recorded run (store, backend, workload, final state)
//   - operations: one row per recorded operation with its four logical stamps
//
// Args, results and final states are stored as canonical JSON (see package
// canon). All queries order by logical stamp and then id COLLATE BINARY so
// reads are deterministic.
//
// Only the history is journaled. Guarded state itself is never persisted.
package journal
