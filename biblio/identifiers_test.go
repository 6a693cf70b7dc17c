package biblio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/errors"
)

func TestRegisterIdentifierNormalizes(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	first, err := r.RegisterIdentifier(ctx, "BM. 12345", "museum", "P012345")
	require.NoError(t, err)
	assert.Equal(t, "BM12345", first.NormalizedKey)
	assert.Equal(t, "BM. 12345", first.Raw)

	again, err := r.RegisterIdentifier(ctx, "bm 12345", "Museum", "P012345")
	require.NoError(t, err, "same identifier for the same artifact is a no-op")
	assert.Equal(t, first.Raw, again.Raw)

	artifact, err := r.LookupIdentifier(ctx, "BM12345", "museum")
	require.NoError(t, err)
	assert.Equal(t, "P012345", artifact)

	ids, err := r.IdentifiersFor(ctx, "P012345")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRegisterIdentifierConflict(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.RegisterIdentifier(ctx, "BM 12345", "museum", "P012345")
	require.NoError(t, err)

	_, err = r.RegisterIdentifier(ctx, "bm.12345", "museum", "P099999")
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
	assert.NotEmpty(t, errors.GetAllHints(err))

	// Kinds are separate namespaces
	_, err = r.RegisterIdentifier(ctx, "BM 12345", "excavation", "P099999")
	require.NoError(t, err)
}

func TestRegisterIdentifierValidation(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.RegisterIdentifier(ctx, "  ..  ", "museum", "P1")
	assert.True(t, errors.IsValidationError(err))

	_, err = r.RegisterIdentifier(ctx, "BM 1", "", "P1")
	assert.True(t, errors.IsValidationError(err))
}

func TestLookupIdentifierCachesHits(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.LookupIdentifier(ctx, "VAT 4711", "museum")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = r.RegisterIdentifier(ctx, "VAT 4711", "museum", "P004711")
	require.NoError(t, err, "a miss is not cached")

	artifact, err := r.LookupIdentifier(ctx, "vat 4711", "museum")
	require.NoError(t, err)
	assert.Equal(t, "P004711", artifact)

	_, err = r.Store().DB().Exec("DELETE FROM identifiers")
	require.NoError(t, err)

	artifact, err = r.LookupIdentifier(ctx, "VAT4711", "museum")
	require.NoError(t, err, "served from cache")
	assert.Equal(t, "P004711", artifact)
}
