package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/storage/testutil"
	"github.com/teranos/provenance/prov/types"
)

func TestAttachEvidenceToClaimAndDecision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := beginRun(t, s, types.SourceHuman, "editor")
	token := types.TokenSubject("P20", "o.1")
	claimID := submit(t, s, token, types.KindReading, "a", 0.9, run)
	decisionID, err := s.RecordDecision(ctx, decide(token, claimID, ""))
	require.NoError(t, err)

	e1, err := s.AttachEvidence(ctx, types.EvidenceInput{
		Target:       types.ClaimTarget(claimID),
		EvidenceType: "photo",
		EvidenceRef:  "https://cdli.mpiwg-berlin.mpg.de/dl/photo/P000020.jpg",
		AddedBy:      "scholar-3",
	})
	require.NoError(t, err)
	_, err = s.AttachEvidence(ctx, types.EvidenceInput{
		Target:       types.DecisionTarget(decisionID),
		EvidenceType: "citation",
		EvidenceRef:  "Steinkeller 1989, p. 12",
		AddedBy:      "scholar-3",
		Note:         "collation",
	})
	require.NoError(t, err)

	list, err := s.ListEvidence(ctx, types.ClaimTarget(claimID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e1, list[0].ID)
	assert.Equal(t, claimID, list[0].Target.ClaimID)
	assert.Empty(t, list[0].Target.DecisionID)

	list, err = s.ListEvidence(ctx, types.DecisionTarget(decisionID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "collation", list[0].Note)
}

func TestAttachEvidenceArity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		target types.EvidenceTarget
	}{
		{"no target", types.EvidenceTarget{}},
		{"two targets", types.EvidenceTarget{ClaimID: "clm_1", DecisionID: "dec_1"}},
		{"three targets", types.EvidenceTarget{ClaimID: "clm_1", DecisionID: "dec_1", EditionID: "edn_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AttachEvidence(ctx, types.EvidenceInput{
				Target:       tt.target,
				EvidenceType: "photo",
				EvidenceRef:  "ref",
				AddedBy:      "x",
			})
			assert.True(t, errors.IsIntegrityViolation(err))
		})
	}
}

func TestAttachEvidenceMissingTarget(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AttachEvidence(context.Background(), types.EvidenceInput{
		Target:       types.EditionTarget("edn_missing"),
		EvidenceType: "photo",
		EvidenceRef:  "ref",
		AddedBy:      "x",
	})
	assert.True(t, errors.IsValidationError(err))
}

func TestEvidenceArityEnforcedBySchema(t *testing.T) {
	s := newTestStore(t)
	run := beginRun(t, s, types.SourceHuman, "editor")
	claimID := submit(t, s, types.TokenSubject("P21", "o.1"), types.KindReading, "a", 0.9, run)

	_, err := s.DB().Exec(`
		INSERT INTO evidence (id, claim_id, decision_id, evidence_type, evidence_ref, added_by, created_at)
		VALUES ('evd_raw', NULL, NULL, 'photo', 'ref', 'x', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)

	_, err = s.DB().Exec(`
		INSERT INTO evidence (id, claim_id, evidence_type, evidence_ref, added_by, created_at)
		VALUES ('evd_ok', ?, 'photo', 'ref', 'x', CURRENT_TIMESTAMP)`, claimID)
	assert.NoError(t, err)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	run := beginRun(t, s, types.SourceHuman, "editor")
	submit(t, s, types.TokenSubject("P22", "o.1"), types.KindReading, "a", 0.9, run)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	counts := make(map[string]int64)
	for _, tc := range stats {
		counts[tc.Table] = tc.Rows
	}
	assert.Equal(t, int64(1), counts["annotation_runs"])
	assert.Equal(t, int64(1), counts["claims"])
	assert.Equal(t, int64(1), counts["consensus"])
	assert.Equal(t, int64(0), counts["decisions"])
}

func TestStatsWithoutSchema(t *testing.T) {
	s := NewSQLStore(testutil.SetupEmptyDB(t), nil)

	_, err := s.Stats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}
