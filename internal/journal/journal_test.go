package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/guardian/internal/history"
)

func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testRecord(id string, invoke, acquire, release, ret int64) history.Record {
	return history.Record{
		ID:      id,
		Store:   "inventory",
		Kind:    "reserve",
		Args:    map[string]any{"product": "widget", "qty": int64(2)},
		Result:  int64(1),
		Case:    "Success",
		Invoke:  invoke,
		Acquire: acquire,
		Release: release,
		Return:  ret,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, j.Close())
	}

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	for _, table := range []string{"runs", "operations"} {
		var name string
		err := j.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestOpen_AppliesPragmasAndMigrations(t *testing.T) {
	j := createTestJournal(t)

	mode, err := j.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	fk, err := j.pragma("foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, "1", fk)

	version, err := j.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	var name string
	err = j.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_operations_run_acquire'",
	).Scan(&name)
	assert.NoError(t, err)
}

func TestOpen_MigratesOlderJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.db.Exec("DROP INDEX idx_operations_run_acquire")
	require.NoError(t, err)
	_, err = j.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	version, err := j.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	timeout, err := j.pragma("busy_timeout")
	require.NoError(t, err)
	assert.Equal(t, "5000", timeout)

	var name string
	err = j.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_operations_run_acquire'",
	).Scan(&name)
	assert.NoError(t, err)
}

func TestWriteRun_RoundTrip(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run := Run{
		ID: "run-1", Store: "inventory", Backend: "mutex", Kind: "inventory",
		Workers: 2, Ops: 2,
		Final: map[string]any{"widget": int64(1)},
	}
	failed := testRecord("op-2", 2, 5, 6, 8)
	failed.Result = nil
	failed.Case = "InsufficientStock"
	failed.Error = "ledger: insufficient stock for widget: requested 2, available 1"

	records := []history.Record{failed, testRecord("op-1", 1, 3, 4, 7)}
	require.NoError(t, j.WriteRun(ctx, run, records))

	gotRun, err := j.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, gotRun)

	got, err := j.ReadRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, testRecord("op-1", 1, 3, 4, 7), got[0])
	assert.Equal(t, failed, got[1])
}

func TestWriteRun_Idempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Store: "counter", Backend: "mailbox", Kind: "counter", Final: int64(1)}
	records := []history.Record{testRecord("op-1", 1, 2, 3, 4)}
	require.NoError(t, j.WriteRun(ctx, run, records))
	require.NoError(t, j.WriteRun(ctx, run, records))

	runs, err := j.ReadRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	got, err := j.ReadRecords(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWriteRun_RejectsFloatPayload(t *testing.T) {
	j := createTestJournal(t)

	rec := testRecord("op-1", 1, 2, 3, 4)
	rec.Args = map[string]any{"qty": 1.5}
	err := j.WriteRun(context.Background(), Run{ID: "run-1", Final: nil}, []history.Record{rec})
	require.Error(t, err)

	runs, err := j.ReadRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs, "failed write must roll back the run row")
}

func TestReadRun_NotFound(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.ReadRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReadRecords_EmptyIsNotNil(t *testing.T) {
	j := createTestJournal(t)
	got, err := j.ReadRecords(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCheck_ReportsPerRun(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-a", Store: "inventory"}, []history.Record{
		testRecord("a-1", 1, 3, 4, 7),
		testRecord("a-2", 2, 5, 6, 8),
		{ID: "a-3", Store: "inventory", Kind: "reserve", Case: "NotAdmitted", Invoke: 9, Return: 10},
	}))
	require.NoError(t, j.WriteRun(ctx, Run{ID: "run-b", Store: "inventory"}, []history.Record{
		testRecord("b-1", 1, 3, 6, 7),
		testRecord("b-2", 2, 5, 8, 9),
	}))

	reports, err := j.Check(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "run-a", reports[0].Run.ID)
	assert.Equal(t, 3, reports[0].Operations)
	assert.Equal(t, 2, reports[0].Admitted)
	assert.NoError(t, reports[0].Err)

	assert.Equal(t, "run-b", reports[1].Run.ID)
	require.Error(t, reports[1].Err)
	assert.Contains(t, reports[1].Err.Error(), "overlaps b-1")
}
