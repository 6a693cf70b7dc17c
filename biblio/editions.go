package biblio

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/prov"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/storage"
	"github.com/teranos/provenance/prov/types"
)

const editionSelect = `
	SELECT e.id, e.artifact_id, e.publication_id, e.edition_type, e.metadata, e.claim_id,
	       e.supersedes_id, e.is_current_edition, e.created_at, p.year
	FROM editions e
	JOIN publications p ON p.id = e.publication_id`

// EditionInput is the input to LinkEdition
type EditionInput struct {
	ArtifactID    string          `json:"artifact_id" yaml:"artifact_id"`
	PublicationID string          `json:"publication_id" yaml:"publication_id"`
	EditionType   EditionType     `json:"edition_type" yaml:"edition_type"`
	Metadata      json.RawMessage `json:"metadata,omitempty" yaml:"-"`
}

// LinkEdition links an artifact to a publication. The link is recorded as an
// edition claim on the artifact, so the current edition is selected like any
// other consensus. Linking the same artifact, publication and type again
// returns the existing edition.
func (r *Resolver) LinkEdition(ctx context.Context, runID string, in EditionInput) (*Edition, error) {
	if in.ArtifactID == "" {
		return nil, errors.NewValidationError("artifact id is required")
	}
	if !in.EditionType.Valid() {
		return nil, errors.NewValidationError("unknown edition type %q", in.EditionType)
	}
	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	if !json.Valid(metadata) {
		return nil, errors.NewValidationError("edition metadata is not valid JSON")
	}
	if err := r.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	var edition *Edition
	err := r.InTx(ctx, func(tx *Resolver) error {
		q := tx.store.Querier()
		if _, err := tx.GetPublication(ctx, in.PublicationID); err != nil {
			if errors.IsNotFoundError(err) {
				return errors.NewValidationError("publication %s does not exist", in.PublicationID)
			}
			return err
		}

		existing, err := queryStrings(ctx, q, `
			SELECT e.id FROM editions e
			WHERE e.artifact_id = ? AND e.publication_id = ? AND e.edition_type = ?
			  AND NOT EXISTS (SELECT 1 FROM editions n WHERE n.supersedes_id = e.id)
			ORDER BY e.created_at, e.id LIMIT 1`,
			in.ArtifactID, in.PublicationID, string(in.EditionType))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			edition, err = getEdition(ctx, q, existing[0])
			return err
		}

		// The claim must exist before the edition row references it, and
		// consensus can only be chosen once the edition row exists.
		id := ids.Edition()
		subject := types.ArtifactSubject(in.ArtifactID)
		res, err := tx.store.SubmitClaims(ctx, []types.ClaimInput{{
			Subject:    subject,
			Kind:       types.KindEdition,
			Value:      id,
			Confidence: 1,
			RunID:      runID,
		}}, prov.BatchOptions{DeferConsensus: true})
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			return errors.NewValidationError("%s", res.Errors[0].Message)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO editions (id, artifact_id, publication_id, edition_type, metadata, claim_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, in.ArtifactID, in.PublicationID, string(in.EditionType), string(metadata), res.ClaimIDs[0], tx.store.Now())
		if err != nil {
			return errors.Wrap(err, "failed to insert edition")
		}
		if err := tx.store.RefreshConsensus(ctx, subject, types.KindEdition); err != nil {
			return err
		}
		edition, err = getEdition(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Infow("Edition linked",
		logger.FieldEditionID, edition.ID,
		logger.FieldArtifactID, edition.ArtifactID,
		logger.FieldPublicationID, edition.PublicationID,
		"edition_type", edition.EditionType,
		"current", edition.IsCurrentEdition,
	)
	return edition, nil
}

// GetEdition fetches one edition
func (r *Resolver) GetEdition(ctx context.Context, id string) (*Edition, error) {
	return getEdition(ctx, r.store.Querier(), id)
}

func getEdition(ctx context.Context, q storage.Querier, id string) (*Edition, error) {
	e, err := scanEdition(q.QueryRowContext(ctx, editionSelect+" WHERE e.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("edition %s", id)
	}
	return e, err
}

// ListEditions returns every edition of an artifact, oldest first
func (r *Resolver) ListEditions(ctx context.Context, artifactID string) ([]Edition, error) {
	rows, err := r.store.Querier().QueryContext(ctx, editionSelect+" WHERE e.artifact_id = ? ORDER BY e.created_at, e.id", artifactID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list editions")
	}
	defer rows.Close()

	var editions []Edition
	for rows.Next() {
		e, err := scanEdition(rows)
		if err != nil {
			return nil, err
		}
		editions = append(editions, *e)
	}
	return editions, errors.Wrap(rows.Err(), "failed to iterate editions")
}

// GetCurrentEdition returns the artifact's current edition. When none is
// current the error says why: ErrNotFound without editions, ErrDecisionRequired
// when the algorithm declines to break a tie.
func (r *Resolver) GetCurrentEdition(ctx context.Context, artifactID string) (*Edition, error) {
	q := r.store.Querier()
	e, err := scanEdition(q.QueryRowContext(ctx, editionSelect+" WHERE e.artifact_id = ? AND e.is_current_edition = 1", artifactID))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Not materialized: consensus was deferred, or nothing can be current
	claim, err := r.store.SelectConsensus(ctx, types.ArtifactSubject(artifactID), types.KindEdition)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, errors.NewNotFoundError("artifact %s has no editions", artifactID)
		}
		return nil, err
	}
	return getEdition(ctx, q, claim.Value)
}

// SupersedeEdition records that newID replaces oldID for the same artifact
// and re-selects the artifact's current edition. An active decision pinning
// oldID still wins; onDecision has already warned about such pins.
func (r *Resolver) SupersedeEdition(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return errors.NewCycleError("edition %s cannot supersede itself", oldID)
	}
	err := r.InTx(ctx, func(tx *Resolver) error {
		q := tx.store.Querier()
		oldEd, err := getEdition(ctx, q, oldID)
		if err != nil {
			return err
		}
		newEd, err := getEdition(ctx, q, newID)
		if err != nil {
			return err
		}
		if oldEd.ArtifactID != newEd.ArtifactID {
			return errors.NewValidationError("editions %s and %s belong to different artifacts", oldID, newID)
		}

		newAncestors, err := walkChain(ctx, q, "editions", newID, tx.maxSupersession)
		if err != nil {
			return err
		}
		if contains(newAncestors, oldID) {
			return errors.NewCycleError("edition %s already precedes %s", oldID, newID)
		}
		oldAncestors, err := walkChain(ctx, q, "editions", oldID, tx.maxSupersession)
		if err != nil {
			return err
		}
		if contains(oldAncestors, newID) {
			return errors.NewCycleError("edition %s precedes %s; linking back would form a cycle", newID, oldID)
		}
		newDescendants, err := walkDescendants(ctx, q, "editions", newID, tx.maxSupersession)
		if err != nil {
			return err
		}
		if len(oldAncestors)+len(newAncestors)+len(newDescendants)+2 > tx.maxSupersession {
			return errors.NewIntegrityViolation("supersession chain through %s would exceed %d editions", newID, tx.maxSupersession)
		}
		if newEd.SupersedesID != "" {
			return errors.NewConflictError("edition %s already supersedes %s", newID, newEd.SupersedesID)
		}

		_, err = q.ExecContext(ctx, "UPDATE editions SET supersedes_id = ? WHERE id = ? AND supersedes_id IS NULL", oldID, newID)
		if db.IsUniqueViolation(err) {
			return errors.NewConflictError("edition %s is already superseded", oldID)
		}
		if err != nil {
			return errors.Wrap(err, "failed to link editions")
		}
		return tx.store.RefreshConsensus(ctx, types.ArtifactSubject(newEd.ArtifactID), types.KindEdition)
	})
	if err != nil {
		return err
	}
	r.logger.Infow("Edition superseded", "old_id", oldID, "new_id", newID)
	return nil
}

func (r *Resolver) isEditionSuperseded(ctx context.Context, q storage.Querier, id string) (bool, error) {
	var superseded bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM editions WHERE supersedes_id = ?)", id).Scan(&superseded)
	return superseded, errors.Wrap(err, "failed to check edition supersession")
}

// editionHandler selects the current edition: the latest full edition, or
// failing that the most specific partial treatment, latest first. Superseded
// editions never win on their own.
type editionHandler struct {
	r *Resolver
}

type editionCandidate struct {
	claim   types.Claim
	edition *Edition
}

func (h *editionHandler) Pick(ctx context.Context, q storage.Querier, subject types.Subject, claims []types.Claim) (types.Claim, bool, error) {
	var live []editionCandidate
	byEdition := make(map[string]int)
	for _, c := range claims {
		if i, ok := byEdition[c.Value]; ok {
			// Agreeing claims name one candidate; the linking claim represents it
			if c.ID == live[i].edition.ClaimID {
				live[i].claim = c
			}
			continue
		}
		e, err := getEdition(ctx, q, c.Value)
		if errors.IsNotFoundError(err) {
			// Claim written ahead of its edition row in the same transaction
			continue
		}
		if err != nil {
			return types.Claim{}, false, err
		}
		if e.ArtifactID != subject.Artifact {
			continue
		}
		superseded, err := h.r.isEditionSuperseded(ctx, q, e.ID)
		if err != nil {
			return types.Claim{}, false, err
		}
		if !superseded {
			byEdition[e.ID] = len(live)
			live = append(live, editionCandidate{c, e})
		}
	}
	if len(live) == 0 {
		return types.Claim{}, false, nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		a, b := live[i].edition, live[j].edition
		if sa, sb := a.EditionType.specificity(), b.EditionType.specificity(); sa != sb {
			return sa < sb
		}
		return a.PublicationYear > b.PublicationYear
	})
	best := live[0]
	if len(live) > 1 {
		next := live[1].edition
		if next.EditionType.specificity() == best.edition.EditionType.specificity() &&
			next.PublicationYear == best.edition.PublicationYear {
			return types.Claim{}, false, errors.NewDecisionRequiredError(
				"editions %s and %s of %s are both %s from %d",
				best.edition.ID, next.ID, subject.Artifact, best.edition.EditionType, best.edition.PublicationYear)
		}
	}
	return best.claim, true, nil
}

// CheckClaim accepts edition ids about the whole artifact. An id with no
// edition row yet passes: LinkEdition writes the claim before the row.
func (h *editionHandler) CheckClaim(ctx context.Context, q storage.Querier, in types.ClaimInput) error {
	if in.Subject.Position != "" {
		return errors.NewValidationError("edition claims are about a whole artifact, got position %q", in.Subject.Position)
	}
	if !ids.HasPrefix(in.Value, ids.PrefixEdition) {
		return errors.NewValidationError("edition claim value %q is not an edition id", in.Value)
	}
	e, err := getEdition(ctx, q, in.Value)
	if errors.IsNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if e.ArtifactID != in.Subject.Artifact {
		return errors.NewValidationError("edition %s belongs to %s, not %s", e.ID, e.ArtifactID, in.Subject.Artifact)
	}
	return nil
}

// CheckChoice only lets a decision choose an existing edition of the artifact
func (h *editionHandler) CheckChoice(ctx context.Context, q storage.Querier, claim types.Claim) error {
	e, err := getEdition(ctx, q, claim.Value)
	if errors.IsNotFoundError(err) {
		return errors.NewValidationError("claim %s names no edition (%q)", claim.ID, claim.Value)
	}
	if err != nil {
		return err
	}
	if e.ArtifactID != claim.Subject.Artifact {
		return errors.NewValidationError("claim %s names edition %s of %s", claim.ID, e.ID, e.ArtifactID)
	}
	return nil
}

func (h *editionHandler) ConsensusChanged(ctx context.Context, q storage.Querier, subject types.Subject, claimID string) error {
	if _, err := q.ExecContext(ctx,
		"UPDATE editions SET is_current_edition = 0 WHERE artifact_id = ? AND is_current_edition = 1", subject.Artifact); err != nil {
		return errors.Wrap(err, "failed to clear current edition")
	}
	if claimID == "" {
		return nil
	}
	var editionID string
	if err := q.QueryRowContext(ctx, "SELECT value FROM claims WHERE id = ?", claimID).Scan(&editionID); err != nil {
		return errors.Wrapf(err, "failed to read edition claim %s", claimID)
	}
	_, err := q.ExecContext(ctx, "UPDATE editions SET is_current_edition = 1 WHERE id = ? AND artifact_id = ?", editionID, subject.Artifact)
	return errors.Wrap(err, "failed to mark current edition")
}

func scanEdition(row interface{ Scan(...interface{}) error }) (*Edition, error) {
	var (
		e          Edition
		editionTyp string
		metadata   string
		supersedes sql.NullString
	)
	err := row.Scan(&e.ID, &e.ArtifactID, &e.PublicationID, &editionTyp, &metadata, &e.ClaimID,
		&supersedes, &e.IsCurrentEdition, &e.CreatedAt, &e.PublicationYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan edition")
	}
	e.EditionType = EditionType(editionTyp)
	e.Metadata = json.RawMessage(metadata)
	e.SupersedesID = supersedes.String
	return &e, nil
}
