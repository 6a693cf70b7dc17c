package biblio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

func link(t *testing.T, r *Resolver, runID, artifact, pubID string, et EditionType) *Edition {
	t.Helper()
	e, err := r.LinkEdition(context.Background(), runID, EditionInput{ArtifactID: artifact, PublicationID: pubID, EditionType: et})
	require.NoError(t, err)
	return e
}

func currentEdition(t *testing.T, r *Resolver, artifact string) string {
	t.Helper()
	e, err := r.GetCurrentEdition(context.Background(), artifact)
	require.NoError(t, err)
	return e.ID
}

func TestCurrentEditionSelection(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	const artifact = "P010123"

	_, err := r.GetCurrentEdition(ctx, artifact)
	assert.True(t, errors.IsNotFoundError(err))

	old := publication(t, r, run, "Early Texts", 1975)
	newer := publication(t, r, run, "Texts Revisited", 1995)

	photo := link(t, r, run, artifact, newer, PhotographOnly)
	assert.True(t, photo.IsCurrentEdition, "only edition")

	handCopy := link(t, r, run, artifact, old, HandCopy)
	assert.Equal(t, handCopy.ID, currentEdition(t, r, artifact), "hand copy is more specific than a photograph")

	full := link(t, r, run, artifact, old, FullEdition)
	assert.Equal(t, full.ID, currentEdition(t, r, artifact), "full editions win regardless of year")

	later := link(t, r, run, artifact, newer, FullEdition)
	assert.Equal(t, later.ID, currentEdition(t, r, artifact), "latest full edition")

	again := link(t, r, run, artifact, newer, FullEdition)
	assert.Equal(t, later.ID, again.ID, "relinking is idempotent")

	editions, err := r.ListEditions(ctx, artifact)
	require.NoError(t, err)
	require.Len(t, editions, 4)
	current := 0
	for _, e := range editions {
		if e.IsCurrentEdition {
			current++
		}
	}
	assert.Equal(t, 1, current)
}

func TestEditionTieNeedsDecision(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	const artifact = "P200001"

	p1 := publication(t, r, run, "Tablets from Umma", 2001)
	p2 := publication(t, r, run, "Umma Archive Texts", 2001)

	first := link(t, r, run, artifact, p1, FullEdition)
	second := link(t, r, run, artifact, p2, FullEdition)
	assert.False(t, second.IsCurrentEdition)

	_, err := r.GetCurrentEdition(ctx, artifact)
	require.Error(t, err)
	assert.True(t, errors.IsDecisionRequired(err), "got %v", err)

	decisionID, err := r.Store().RecordDecision(ctx, types.DecisionRequest{
		Subject:       types.ArtifactSubject(artifact),
		Kind:          types.KindEdition,
		ChosenClaimID: second.ClaimID,
		DecidedBy:     "scholar-7",
		Method:        types.MethodEditorial,
		Rationale:     "collated against the tablet",
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, currentEdition(t, r, artifact))

	history, err := r.Store().GetHistory(ctx, types.ArtifactSubject(artifact), types.KindEdition)
	require.NoError(t, err)
	require.Len(t, history, 1, "a tie has no algorithmic winner to journal")
	assert.Equal(t, decisionID, history[0].ID)

	reread, err := r.GetEdition(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, reread.IsCurrentEdition)
}

func TestSupersedeEdition(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	const artifact = "P300001"

	p1 := publication(t, r, run, "Field Catalog", 1980)
	p2 := publication(t, r, run, "Field Catalog Corrected", 1970)

	first := link(t, r, run, artifact, p1, FullEdition)
	second := link(t, r, run, artifact, p2, FullEdition)
	assert.Equal(t, first.ID, currentEdition(t, r, artifact), "1980 beats 1970")

	require.NoError(t, r.SupersedeEdition(ctx, first.ID, second.ID))
	assert.Equal(t, second.ID, currentEdition(t, r, artifact), "superseded editions drop out")

	err := r.SupersedeEdition(ctx, second.ID, first.ID)
	assert.True(t, errors.IsCycleError(err), "got %v", err)

	other := link(t, r, run, "P300002", p1, CatalogEntry)
	err = r.SupersedeEdition(ctx, second.ID, other.ID)
	assert.True(t, errors.IsValidationError(err), "different artifacts")
}

func TestDecisionPinningSupersededEditionWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newLoggedResolver(t, zap.New(core).Sugar())
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	const artifact = "P400001"

	p1 := publication(t, r, run, "Letters I", 1960)
	p2 := publication(t, r, run, "Letters I, revised", 1990)
	first := link(t, r, run, artifact, p1, FullEdition)
	second := link(t, r, run, artifact, p2, FullEdition)
	require.NoError(t, r.SupersedeEdition(ctx, first.ID, second.ID))

	_, err := r.Store().RecordDecision(ctx, types.DecisionRequest{
		Subject:       types.ArtifactSubject(artifact),
		Kind:          types.KindEdition,
		ChosenClaimID: first.ClaimID,
		DecidedBy:     "scholar-2",
		Method:        types.MethodEditorial,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, currentEdition(t, r, artifact), "the decision stands")
	assert.Equal(t, 1, logs.FilterMessage("Edition decision pins a superseded edition").Len())
}

func TestLinkEditionValidation(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	pub := publication(t, r, run, "Some Volume", 2010)

	tests := []struct {
		name string
		in   EditionInput
	}{
		{"unknown type", EditionInput{ArtifactID: "P1", PublicationID: pub, EditionType: "pamphlet"}},
		{"missing artifact", EditionInput{PublicationID: pub, EditionType: FullEdition}},
		{"unknown publication", EditionInput{ArtifactID: "P1", PublicationID: "pub_missing", EditionType: FullEdition}},
		{"bad metadata", EditionInput{ArtifactID: "P1", PublicationID: pub, EditionType: FullEdition, Metadata: []byte("{")}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.LinkEdition(ctx, run, tt.in)
			assert.True(t, errors.IsValidationError(err), "got %v", err)
		})
	}
}

func TestEditionClaimsStayOnTheirArtifact(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")

	p1975 := publication(t, r, run, "Old Babylonian Letters", 1975)
	p1999 := publication(t, r, run, "Ur III Receipts", 1999)
	own := link(t, r, run, "P1", p1975, FullEdition)
	foreign := link(t, r, run, "P2", p1999, FullEdition)

	_, err := r.Store().SubmitClaim(ctx, types.ClaimInput{
		Subject:    types.ArtifactSubject("P1"),
		Kind:       types.KindEdition,
		Value:      foreign.ID,
		Confidence: 1,
		RunID:      run,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err), "got %v", err)

	// A row that bypassed validation still cannot win the artifact's consensus
	_, err = r.Store().DB().ExecContext(ctx, `
		INSERT INTO claims (id, subject, kind, value, confidence, annotation_run_id, created_at)
		VALUES ('clm_stray', 'P1', 'edition', ?, 1, ?, ?)`, foreign.ID, run, r.Store().Now())
	require.NoError(t, err)
	require.NoError(t, r.Store().RefreshConsensus(ctx, types.ArtifactSubject("P1"), types.KindEdition))
	assert.Equal(t, own.ID, currentEdition(t, r, "P1"))
	assert.Equal(t, foreign.ID, currentEdition(t, r, "P2"))

	_, err = r.Store().RecordDecision(ctx, types.DecisionRequest{
		Subject:       types.ArtifactSubject("P1"),
		Kind:          types.KindEdition,
		ChosenClaimID: "clm_stray",
		DecidedBy:     "scholar-3",
		Method:        types.MethodEditorial,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err), "got %v", err)
	assert.Equal(t, own.ID, currentEdition(t, r, "P1"))
}

func TestAgreeingEditionClaimKeepsCurrent(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	const artifact = "P500001"

	pub := publication(t, r, run, "Sargonic Inscriptions", 1975)
	e := link(t, r, run, artifact, pub, FullEdition)

	_, err := r.Store().SubmitClaim(ctx, types.ClaimInput{
		Subject:    types.ArtifactSubject(artifact),
		Kind:       types.KindEdition,
		Value:      e.ID,
		Confidence: 0.7,
		RunID:      run,
	})
	require.NoError(t, err)

	assert.Equal(t, e.ID, currentEdition(t, r, artifact), "a second claim for the same edition is not a tie")
	winner, err := r.Store().SelectConsensus(ctx, types.ArtifactSubject(artifact), types.KindEdition)
	require.NoError(t, err)
	assert.Equal(t, e.ClaimID, winner.ID, "the linking claim represents its edition")
}

func TestEditionClaimValues(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")
	const artifact = "P600001"

	pub := publication(t, r, run, "Tell Leilan Tablets", 1988)
	e := link(t, r, run, artifact, pub, FullEdition)

	submit := func(subject types.Subject, value string) (string, error) {
		return r.Store().SubmitClaim(ctx, types.ClaimInput{
			Subject:    subject,
			Kind:       types.KindEdition,
			Value:      value,
			Confidence: 0.9,
			RunID:      run,
		})
	}

	_, err := submit(types.ArtifactSubject(artifact), "Leilan 1988")
	assert.True(t, errors.IsValidationError(err), "not an edition id: %v", err)

	_, err = submit(types.TokenSubject(artifact, "o.1"), e.ID)
	assert.True(t, errors.IsValidationError(err), "token position: %v", err)

	dangling, err := submit(types.ArtifactSubject(artifact), "edn_00000000000000000000000000000000")
	require.NoError(t, err, "edition rows may follow their claims")
	assert.Equal(t, e.ID, currentEdition(t, r, artifact), "a claim without an edition row never wins")

	_, err = r.Store().RecordDecision(ctx, types.DecisionRequest{
		Subject:       types.ArtifactSubject(artifact),
		Kind:          types.KindEdition,
		ChosenClaimID: dangling,
		DecidedBy:     "scholar-9",
		Method:        types.MethodEditorial,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err), "got %v", err)
	assert.Equal(t, e.ID, currentEdition(t, r, artifact))
}
