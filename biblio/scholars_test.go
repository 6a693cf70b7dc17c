package biblio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
)

func TestRegisterScholarCascade(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "authors")

	englund, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{
		ORCID: "0000-0002-1825-0097", Surname: "Englund", GivenNames: "Robert K.", Source: "cdli",
	})
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeCreate, englund.Outcome)

	s, err := r.GetScholar(ctx, englund.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert K. Englund", s.FullName)
	assert.Equal(t, "0000000218250097", s.ORCID)

	byORCID, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{ORCID: "https://orcid.org/0000-0002-1825-0097", Surname: "Englund"})
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeMerge, byORCID.Outcome)
	assert.Equal(t, englund.ID, byORCID.ID)

	byInitials, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{Surname: "Englund", GivenNames: "R. K."})
	require.NoError(t, err)
	assert.Equal(t, englund.ID, byInitials.ID)
	assert.Equal(t, 0.85, byInitials.Confidence)

	review, err := r.RegisterScholar(ctx, run, dedup.ScholarRecord{Surname: "Englund", FullName: "Robert Englund"})
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeStage, review.Outcome)
	assert.NotEmpty(t, review.CandidateID)

	_, err = r.RegisterScholar(ctx, run, dedup.ScholarRecord{GivenNames: "Nobody"})
	assert.True(t, errors.IsValidationError(err))
}
