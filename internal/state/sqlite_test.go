package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotalabs/buspulse/internal/testutil"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, s.Open(":memory:"))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	s := NewSQLiteStore(nil)

	_, err := s.CreateRun()
	assert.ErrorContains(t, err, "not opened")
	_, err = s.GetRun("x")
	assert.ErrorContains(t, err, "not opened")
	assert.ErrorContains(t, s.CompleteRun("x", RunStatusFailed, ""), "not opened")
	assert.ErrorContains(t, s.RecordStage("x", "train", 0, 0), "not opened")
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun()
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, s.RecordStage(run.ID, "train", 0, 120*time.Millisecond))
	require.NoError(t, s.RecordStage(run.ID, "propagate", 100000, 2*time.Second))
	require.NoError(t, s.CompleteRun(run.ID, RunStatusCompleted, ""))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)

	require.Len(t, got.Stages, 2)
	assert.Equal(t, "train", got.Stages[0].Stage)
	assert.Equal(t, int64(100000), got.Stages[1].RowsWritten)
	assert.Equal(t, 2*time.Second, got.Stages[1].Duration)
}

func TestSQLiteStore_FailedRunKeepsError(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun()
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(run.ID, RunStatusFailed, "enriched table is empty"))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "enriched table is empty", got.Error)
}

func TestSQLiteStore_RecordStageUpserts(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun()
	require.NoError(t, err)
	require.NoError(t, s.RecordStage(run.ID, "profile", 8, time.Second))
	require.NoError(t, s.RecordStage(run.ID, "profile", 9, 2*time.Second))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, int64(9), got.Stages[0].RowsWritten)
}

func TestSQLiteStore_GetRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("nope")
	assert.ErrorContains(t, err, "run not found")
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	s := openTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := s.CreateRun()
		require.NoError(t, err)
		ids = append(ids, run.ID)
		// started_at granularity in SQLite needs distinct timestamps for
		// a stable newest-first order.
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}
