package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/storage/testutil"
	"github.com/teranos/provenance/prov/types"
)

func TestBeginRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.BeginRun(ctx, types.RunSpec{
		SourceType: types.SourceModel,
		SourceName: "cuneiform-lemmatizer",
		Method:     "crf-v2",
		Config:     map[string]any{"beam": 4},
	})
	require.NoError(t, err)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.SourceModel, run.SourceType)
	assert.Equal(t, "cuneiform-lemmatizer", run.SourceName)
	assert.JSONEq(t, `{"beam":4}`, string(run.ConfigSnapshot))
	assert.Nil(t, run.CompletedAt)
	assert.Equal(t, 0, run.RowCount)
}

func TestBeginRunValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		spec types.RunSpec
	}{
		{"missing source type", types.RunSpec{SourceName: "x", Method: "m"}},
		{"unknown source type", types.RunSpec{SourceType: "crowd", SourceName: "x", Method: "m"}},
		{"missing source name", types.RunSpec{SourceType: types.SourceHuman, Method: "m"}},
		{"missing method", types.RunSpec{SourceType: types.SourceHuman, SourceName: "x"}},
		{"unknown scholar", types.RunSpec{SourceType: types.SourceHuman, SourceName: "x", Method: "m", ScholarID: "sch_nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.BeginRun(ctx, tt.spec)
			assert.True(t, errors.IsValidationError(err), "got %v", err)
		})
	}

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCompleteRunOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := beginRun(t, s, types.SourceImport, "oracc")

	subject := types.TokenSubject("P1", "o.1")
	submit(t, s, subject, types.KindReading, "a", 0.5, runID)
	submit(t, s, subject, types.KindReading, "b", 0.5, runID)

	require.NoError(t, s.CompleteRun(ctx, runID, -1))
	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, 2, run.RowCount, "negative count keeps the tally")

	err = s.CompleteRun(ctx, runID, 5)
	assert.True(t, errors.IsConflictError(err))

	err = s.CompleteRun(ctx, "run_missing", 1)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCompletedRunStillAcceptsClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := beginRun(t, s, types.SourceHuman, "editor")
	require.NoError(t, s.CompleteRun(ctx, runID, 0))

	// Completion is an observability stamp, not a gate
	submit(t, s, types.TokenSubject("P1", "o.1"), types.KindReading, "lugal", 1, runID)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	first := beginRun(t, s, types.SourceHuman, "a")
	second := beginRun(t, s, types.SourceModel, "b")

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}

func TestClosedDatabaseIsMarked(t *testing.T) {
	database := testutil.SetupTestDB(t)
	s := NewSQLStore(database, nil)
	require.NoError(t, database.Close())

	err := s.RefreshConsensus(context.Background(), types.TokenSubject("P1", "o.1"), types.KindReading)
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrDatabaseClosed))
	assert.True(t, db.IsDatabaseClosed(err))
}
