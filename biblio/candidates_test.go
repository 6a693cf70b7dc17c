package biblio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
)

func stagePublication(t *testing.T, r *Resolver, run string) (existing string, candidate string) {
	t.Helper()
	existing = publication(t, r, run, "Administrative Texts from Drehem", 1985)
	reg := register(t, r, run, dedup.PublicationRecord{Title: "Administrative Text from Drehem", Year: 1985})
	require.Equal(t, dedup.OutcomeStage, reg.Outcome)
	return existing, reg.CandidateID
}

func TestResolveCandidateDistinct(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	existing, candidateID := stagePublication(t, r, run)

	pending, err := r.ListDedupCandidates(ctx, CandidatePending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, EntityPublication, pending[0].Entity)

	resolved, err := r.ResolveDedupCandidate(ctx, candidateID, ResolveDistinct, "scholar-1", "")
	require.NoError(t, err)
	assert.Equal(t, CandidateDistinct, resolved.Status)
	assert.NotEqual(t, existing, resolved.ResolvedID)
	require.NotNil(t, resolved.ResolvedAt)

	hits, err := r.FindPublication(ctx, PublicationQuery{Text: "Administrative Text from Drehem"})
	require.NoError(t, err)
	require.Len(t, hits, 2, "resolved record is searchable")
	assert.Equal(t, resolved.ResolvedID, hits[0].Publication.ID)

	pending, err = r.ListDedupCandidates(ctx, CandidatePending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = r.ResolveDedupCandidate(ctx, candidateID, ResolveMerge, "scholar-2", existing)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestResolveCandidateMerge(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	existing, candidateID := stagePublication(t, r, run)

	_, err := r.ResolveDedupCandidate(ctx, candidateID, ResolveMerge, "scholar-1", "")
	assert.True(t, errors.IsValidationError(err), "merge needs a target")

	resolved, err := r.ResolveDedupCandidate(ctx, candidateID, ResolveMerge, "scholar-1", existing)
	require.NoError(t, err)
	assert.Equal(t, CandidateMerged, resolved.Status)
	assert.Equal(t, existing, resolved.ResolvedID)

	pub, err := r.GetPublication(ctx, existing)
	require.NoError(t, err)
	assert.Contains(t, pub.Keys, dedup.Key{Type: dedup.KeyTitle, Value: "administrative text from drehem"})

	// The folded key now matches exactly
	reg := register(t, r, run, dedup.PublicationRecord{Title: "Administrative Text from Drehem", Year: 1985})
	assert.Equal(t, dedup.OutcomeMerge, reg.Outcome)
	assert.Equal(t, existing, reg.ID)
}

func TestResolveScholarCandidate(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "authors")

	first, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{ORCID: "0000-0001-0000-0001", Surname: "Sallaberger", GivenNames: "Walther"})
	require.NoError(t, err)
	second, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{ORCID: "0000-0001-0000-0002", Surname: "Sallaberger", GivenNames: "Wolfgang"})
	require.NoError(t, err)
	require.Equal(t, dedup.OutcomeCreate, second.Outcome, "different ORCIDs are different people")

	staged, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{Surname: "Sallaberger", GivenNames: "W."})
	require.NoError(t, err)
	require.Equal(t, dedup.OutcomeStage, staged.Outcome, "two scholars share surname and initial")

	c, err := r.GetDedupCandidate(ctx, staged.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, c.MatchIDs)

	resolved, err := r.ResolveDedupCandidate(ctx, staged.CandidateID, ResolveMerge, "scholar-1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, resolved.ResolvedID)
}
