package biblio

import (
	"context"
	"database/sql"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
)

const identifierInsertQuery = `
	INSERT INTO identifiers (normalized_key, kind, raw, artifact_id, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (kind, normalized_key) DO NOTHING`

func identifierCacheKey(kind, normalized string) string {
	return kind + "\x00" + normalized
}

func normalizeIdentifierKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// RegisterIdentifier maps a raw catalog key to a canonical artifact. Raw
// strings that normalize to the same key are the same identifier;
// re-registering it for the same artifact is a no-op and for a different
// artifact is a ConflictError.
func (r *Resolver) RegisterIdentifier(ctx context.Context, raw, kind, artifactID string) (*Identifier, error) {
	kind = normalizeIdentifierKind(kind)
	if kind == "" || strings.TrimSpace(artifactID) == "" {
		return nil, errors.NewValidationError("identifier kind and artifact id are required")
	}
	normalized := dedup.NormalizeIdentifier(raw)
	if normalized == "" {
		return nil, errors.NewValidationError("identifier %q normalizes to nothing", raw)
	}

	q := r.store.Querier()
	res, err := q.ExecContext(ctx, identifierInsertQuery, normalized, kind, raw, artifactID, r.store.Now())
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert identifier")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rows affected")
	}

	existing, err := r.getIdentifier(ctx, kind, normalized)
	if err != nil {
		return nil, err
	}
	if n == 0 && existing.ArtifactID != artifactID {
		return nil, errors.WithHintf(
			errors.NewConflictError("%s identifier %s already maps to %s", kind, normalized, existing.ArtifactID),
			"identifiers are many-to-one; register %q under a different kind if it names another artifact", raw)
	}
	if n == 1 {
		r.logger.Debugw("Identifier registered",
			"identifier", normalized,
			logger.FieldKind, kind,
			logger.FieldArtifactID, artifactID,
		)
	}
	return existing, nil
}

// LookupIdentifier resolves a raw catalog key to its artifact
func (r *Resolver) LookupIdentifier(ctx context.Context, raw, kind string) (string, error) {
	kind = normalizeIdentifierKind(kind)
	normalized := dedup.NormalizeIdentifier(raw)
	key := identifierCacheKey(kind, normalized)
	if artifact, ok := r.identifiers.Get(key); ok {
		return artifact.(string), nil
	}

	id, err := r.getIdentifier(ctx, kind, normalized)
	if err != nil {
		return "", err
	}
	// Mappings never change once written, so only positive, committed lookups are cached
	if r.store.Tx() == nil {
		r.identifiers.Set(key, id.ArtifactID, cache.DefaultExpiration)
	}
	return id.ArtifactID, nil
}

// IdentifiersFor lists every identifier of an artifact
func (r *Resolver) IdentifiersFor(ctx context.Context, artifactID string) ([]Identifier, error) {
	rows, err := r.store.Querier().QueryContext(ctx, `
		SELECT kind, normalized_key, raw, artifact_id, created_at
		FROM identifiers WHERE artifact_id = ? ORDER BY kind, normalized_key`, artifactID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list identifiers")
	}
	defer rows.Close()

	var out []Identifier
	for rows.Next() {
		var id Identifier
		if err := rows.Scan(&id.Kind, &id.NormalizedKey, &id.Raw, &id.ArtifactID, &id.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan identifier")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate identifiers")
}

func (r *Resolver) getIdentifier(ctx context.Context, kind, normalized string) (*Identifier, error) {
	var id Identifier
	err := r.store.Querier().QueryRowContext(ctx, `
		SELECT kind, normalized_key, raw, artifact_id, created_at
		FROM identifiers WHERE kind = ? AND normalized_key = ?`, kind, normalized).
		Scan(&id.Kind, &id.NormalizedKey, &id.Raw, &id.ArtifactID, &id.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("%s identifier %s", kind, normalized)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read identifier")
	}
	return &id, nil
}
