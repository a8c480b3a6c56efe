package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/returns-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRunParams() model.RunParams {
	return model.RunParams{
		InputDir:    "submissions",
		OutputDir:   "out",
		Files:       []string{"north.xlsx", "south.xlsx"},
		Concurrency: 4,
	}
}

func TestNewSQLite_InvalidDSN(t *testing.T) {
	// A path nested under a nonexistent parent cannot be created.
	_, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestNewSQLite_WALMode(t *testing.T) {
	st := newTestSQLiteStore(t)

	var mode string
	err := st.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// --- Runs ---

func TestSQLite_CreateRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, "submissions", run.Params.InputDir)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, []string{"north.xlsx", "south.xlsx"}, fetched.Params.Files)
	assert.Nil(t, fetched.FinishedAt)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	result := &model.RunResult{
		FilesTotal:  2,
		FilesLoaded: 2,
		RowsTotal:   120,
		RowsValid:   117,
		Records:     110,
		Duplicates:  5,
		Conflicts:   2,
		TopReasons: []model.ReasonCount{
			{Reason: "Damaged", Count: 40, Percent: 36.4},
		},
	}
	err = st.CompleteRun(ctx, run.ID, result)
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, fetched.Status)
	require.NotNil(t, fetched.Result)
	assert.Equal(t, 110, fetched.Result.Records)
	require.Len(t, fetched.Result.TopReasons, 1)
	assert.Equal(t, "Damaged", fetched.Result.TopReasons[0].Reason)
	require.NotNil(t, fetched.FinishedAt)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "nonexistent", &model.RunResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	err = st.FailRun(ctx, run.ID, "no readable submissions")
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, fetched.Status)
	assert.Equal(t, "no readable submissions", fetched.Error)
	require.NotNil(t, fetched.FinishedAt)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_ListRuns_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)
	err = st.CompleteRun(ctx, run.ID, &model.RunResult{Records: 1})
	require.NoError(t, err)

	// Second run stays running.
	_, err = st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLite_ListRuns_Offset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := st.CreateRun(ctx, testRunParams())
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// --- Anomalies ---

func TestSQLite_SaveAnomalies_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	anomalies := []model.Anomaly{
		{
			Kind:       model.AnomalyTypeMismatch,
			Severity:   model.SeverityWarning,
			BranchID:   "north",
			SourceFile: "north.xlsx",
			Row:        7,
			Column:     "Total Returned (kgs)",
			Observed:   "n/a",
			Expected:   "number",
		},
		{
			Kind:       model.AnomalyInconsistentConstant,
			Severity:   model.SeverityWarning,
			BranchID:   "south",
			SourceFile: "south.xlsx",
			Row:        12,
			Column:     "Validation",
			Observed:   "valid",
			Expected:   "Valid, Invalid",
			Suggestion: "Valid",
		},
		{
			Kind:       model.AnomalyMissingColumn,
			Severity:   model.SeverityBlocking,
			BranchID:   "east",
			SourceFile: "east.csv",
			Column:     "Plant",
			Expected:   "categorical",
		},
	}
	require.NoError(t, st.SaveAnomalies(ctx, run.ID, anomalies))

	fetched, err := st.ListAnomalies(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, fetched, 3)
	assert.Equal(t, anomalies, fetched)
}

func TestSQLite_SaveAnomalies_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	require.NoError(t, st.SaveAnomalies(ctx, run.ID, nil))

	fetched, err := st.ListAnomalies(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, fetched)
}

func TestSQLite_ListAnomalies_ScopedToRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run1, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)
	run2, err := st.CreateRun(ctx, testRunParams())
	require.NoError(t, err)

	require.NoError(t, st.SaveAnomalies(ctx, run1.ID, []model.Anomaly{
		{Kind: model.AnomalyOutOfRange, Severity: model.SeverityBlocking, BranchID: "north", SourceFile: "north.xlsx", Row: 3, Column: "Total Delivered (kgs)", Observed: "-5", Expected: ">= 0"},
	}))
	require.NoError(t, st.SaveAnomalies(ctx, run2.ID, []model.Anomaly{
		{Kind: model.AnomalyDuplicateKey, Severity: model.SeverityWarning, BranchID: "south", SourceFile: "south.xlsx", Row: 9, Column: "Plant, Customer", Observed: "Plant1|Acme"},
		{Kind: model.AnomalyUnexpectedColumn, Severity: model.SeverityWarning, BranchID: "south", SourceFile: "south.xlsx", Column: "Driver"},
	}))

	first, err := st.ListAnomalies(ctx, run1.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, model.AnomalyOutOfRange, first[0].Kind)

	second, err := st.ListAnomalies(ctx, run2.ID)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate already ran in newTestSQLiteStore; calling again should not error.
	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
