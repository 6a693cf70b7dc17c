package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

var claimColumns = []string{"id", "subject", "kind", "value", "confidence", "annotation_run_id", "created_at", "source_type", "is_consensus"}

func expectChosenClaim(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT c.id, c.subject(.+)FROM claims c`).
		WithArgs("clm_b").
		WillReturnRows(sqlmock.NewRows(claimColumns).
			AddRow("clm_b", "P1@o.1", "reading", "KAK", 0.72, "run_1", time.Now(), "model", false))
}

func TestRecordDecisionRollsBackWhenHeadMoved(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	s := NewSQLStore(database, nil)

	mock.ExpectBegin()
	expectChosenClaim(mock)
	mock.ExpectQuery(`SELECT decision_id FROM decision_heads`).
		WithArgs("P1@o.1", "reading").
		WillReturnRows(sqlmock.NewRows([]string{"decision_id"}).AddRow("dec_1"))
	mock.ExpectExec(`INSERT INTO decisions`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Another writer advanced the head between our read and our swap
	mock.ExpectExec(`UPDATE decision_heads SET decision_id`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = s.RecordDecision(context.Background(), types.DecisionRequest{
		Subject:        types.TokenSubject("P1", "o.1"),
		Kind:           types.KindReading,
		ChosenClaimID:  "clm_b",
		DecidedBy:      "scholar",
		Method:         types.MethodEditorial,
		BaseDecisionID: "dec_1",
	})
	assert.True(t, errors.IsConflictError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDecisionSurfacesCommitFailure(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	s := NewSQLStore(database, nil)

	mock.ExpectBegin()
	expectChosenClaim(mock)
	mock.ExpectQuery(`SELECT decision_id FROM decision_heads`).
		WillReturnRows(sqlmock.NewRows([]string{"decision_id"}).AddRow("dec_1"))
	mock.ExpectExec(`INSERT INTO decisions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE decision_heads SET decision_id`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO consensus`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	calls := 0
	s.RegisterObserver(DecisionObserverFunc(func(ctx context.Context, d *types.Decision) error {
		calls++
		return nil
	}))

	_, err = s.RecordDecision(context.Background(), types.DecisionRequest{
		Subject:        types.TokenSubject("P1", "o.1"),
		Kind:           types.KindReading,
		ChosenClaimID:  "clm_b",
		DecidedBy:      "scholar",
		Method:         types.MethodEditorial,
		BaseDecisionID: "dec_1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.Equal(t, 0, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
