package biblio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/am"
	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

func TestSameDOIFromTwoSourcesIsOnePublication(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	cdli := beginImport(t, r, "CDLI")
	oracc := beginImport(t, r, "ORACC")

	first := register(t, r, cdli, dedup.PublicationRecord{
		Title: "The Sumerian King List", Year: 1939, DOI: "10.1000/AS11", Source: "cdli", SourceKey: "AS 11",
	})
	assert.Equal(t, dedup.OutcomeCreate, first.Outcome)
	assert.NotEmpty(t, first.ClaimID)

	second := register(t, r, oracc, dedup.PublicationRecord{
		Title: "Sumerian King-List", DOI: "https://doi.org/10.1000/as11", Source: "oracc", SourceKey: "SKL",
	})
	assert.Equal(t, dedup.OutcomeMerge, second.Outcome)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Tier)
	assert.Equal(t, 1.0, second.Confidence)

	pub, err := r.GetPublication(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Sumerian King List", pub.Title, "columns keep the first record")
	assert.Contains(t, pub.Keys, dedup.Key{Type: dedup.KeySource, Value: "oracc|SKL"}, "merge folds keys in")

	claims, err := r.Store().ListClaims(ctx, types.PublicationSubject(first.ID), types.KindBibliographic)
	require.NoError(t, err)
	assert.Len(t, claims, 2, "each source keeps its own bibliographic claim")
}

func TestPublicationCascadeRouting(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")

	ur3 := register(t, r, run, dedup.PublicationRecord{Title: "Sale Documents of the Ur-III Period", Year: 1989})
	msl := register(t, r, run, dedup.PublicationRecord{Title: "Materials for the Sumerian Lexicon", ShortTitle: "MSL", Volume: "14", Year: 1979})
	ctn := register(t, r, run, dedup.PublicationRecord{Title: "Cuneiform Texts from Nippur", Year: 1990})

	t.Run("title and year", func(t *testing.T) {
		reg := register(t, r, run, dedup.PublicationRecord{Title: "sale documents of the UR III period", Year: 1989})
		assert.Equal(t, dedup.OutcomeMerge, reg.Outcome)
		assert.Equal(t, ur3.ID, reg.ID)
		assert.Equal(t, 3, reg.Tier)
		assert.Equal(t, 0.8, reg.Confidence)
	})

	t.Run("short title and volume", func(t *testing.T) {
		reg := register(t, r, run, dedup.PublicationRecord{Title: "Ea A = naqu", ShortTitle: "msl", Volume: "14"})
		assert.Equal(t, dedup.OutcomeMerge, reg.Outcome)
		assert.Equal(t, msl.ID, reg.ID)
		assert.Equal(t, 4, reg.Tier)
	})

	t.Run("weak match is staged", func(t *testing.T) {
		reg := register(t, r, run, dedup.PublicationRecord{Title: "Cuneiform Text from Nippur", Year: 1990})
		assert.Equal(t, dedup.OutcomeStage, reg.Outcome)
		assert.Empty(t, reg.ID)
		assert.NotEmpty(t, reg.CandidateID)
		assert.Equal(t, 5, reg.Tier)
		assert.Equal(t, 0.5, reg.Confidence)

		hits, err := r.FindPublication(ctx, PublicationQuery{Text: "Cuneiform Text from Nippur"})
		require.NoError(t, err)
		require.Len(t, hits, 1, "staged records are not searchable")
		assert.Equal(t, ctn.ID, hits[0].Publication.ID)

		c, err := r.GetDedupCandidate(ctx, reg.CandidateID)
		require.NoError(t, err)
		assert.Equal(t, CandidatePending, c.Status)
		assert.Equal(t, []string{ctn.ID}, c.MatchIDs)
	})

	t.Run("conflicting DOIs never merge", func(t *testing.T) {
		a := register(t, r, run, dedup.PublicationRecord{Title: "Royal Inscriptions", Year: 1997, DOI: "10.1/a"})
		b := register(t, r, run, dedup.PublicationRecord{Title: "Royal Inscriptions", Year: 1997, DOI: "10.1/b"})
		assert.Equal(t, dedup.OutcomeCreate, b.Outcome)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestRegisterPublicationValidation(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.RegisterPublication(ctx, "run_missing", dedup.PublicationRecord{Title: "X"})
	assert.True(t, errors.IsValidationError(err))

	run := beginImport(t, r, "catalog")
	_, err = r.RegisterPublication(ctx, run, dedup.PublicationRecord{Title: "  "})
	assert.True(t, errors.IsValidationError(err))
}

func TestFindPublicationRanksHits(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")

	exact := register(t, r, run, dedup.PublicationRecord{Title: "Old Babylonian Letters", Year: 1964, DOI: "10.5/obl"})
	fuzzy := register(t, r, run, dedup.PublicationRecord{Title: "Old Babylonian Letter", Year: 1971})
	publication(t, r, run, "Neo-Assyrian Letters", 1964)

	hits, err := r.FindPublication(ctx, PublicationQuery{Text: "old babylonian letters"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, exact.ID, hits[0].Publication.ID)
	assert.Equal(t, 0.8, hits[0].Confidence)
	assert.Equal(t, fuzzy.ID, hits[1].Publication.ID)
	assert.Equal(t, 0.5, hits[1].Confidence)

	hits, err = r.FindPublication(ctx, PublicationQuery{Text: "doi:10.5/OBL"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, exact.ID, hits[0].Publication.ID)
	assert.Equal(t, dedup.KeyDOI, hits[0].Basis)

	_, err = r.FindPublication(ctx, PublicationQuery{})
	assert.True(t, errors.IsValidationError(err))
}

func TestSupersedePublication(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")

	a := publication(t, r, run, "Archaic Texts", 1990)
	b := publication(t, r, run, "Archaic Texts, second edition", 2000)
	c := publication(t, r, run, "Archaic Texts, third edition", 2010)
	d := publication(t, r, run, "Archaic Bookkeeping", 1993)

	require.NoError(t, r.SupersedePublication(ctx, a, b))
	require.NoError(t, r.SupersedePublication(ctx, b, c))

	tests := []struct {
		name     string
		old, new string
		check    func(error) bool
	}{
		{"self", a, a, errors.IsCycleError},
		{"reverse link", b, a, errors.IsCycleError},
		{"closing the loop", c, a, errors.IsCycleError},
		{"already in chain", a, c, errors.IsCycleError},
		{"old already superseded", b, d, errors.IsConflictError},
		{"unknown publication", a, "pub_missing", errors.IsNotFoundError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := r.SupersedePublication(ctx, tt.old, tt.new)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	chain, err := r.PublicationChain(ctx, c)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{c, b, a}, []string{chain[0].ID, chain[1].ID, chain[2].ID})
}

func TestSupersessionDepthBound(t *testing.T) {
	cfg := am.BiblioConfig{MaxSupersessionDepth: 2}
	r := NewResolverFromConfig(newTestStore(t), cfg, nil)
	ctx := context.Background()
	run := beginImport(t, r, "catalog")

	a := publication(t, r, run, "Texts I", 1990)
	b := publication(t, r, run, "Texts II", 1991)
	c := publication(t, r, run, "Texts III", 1992)

	require.NoError(t, r.SupersedePublication(ctx, a, b))
	err := r.SupersedePublication(ctx, b, c)
	assert.True(t, errors.IsIntegrityViolation(err), "got %v", err)

	// Linking below an existing head counts the publications above it
	x := publication(t, r, run, "Letters I", 1970)
	y := publication(t, r, run, "Letters II", 1980)
	z := publication(t, r, run, "Letters III", 1985)
	require.NoError(t, r.SupersedePublication(ctx, y, z))
	err = r.SupersedePublication(ctx, x, y)
	assert.True(t, errors.IsIntegrityViolation(err), "got %v", err)

	chain, err := r.PublicationChain(ctx, z)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}
