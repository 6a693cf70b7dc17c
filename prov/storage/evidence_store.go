package storage

import (
	"context"
	"database/sql"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/types"
)

const evidenceInsertQuery = `
	INSERT INTO evidence (id, claim_id, decision_id, edition_id, evidence_type, evidence_ref, added_by, note, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// targetTables maps each evidence target to the table it must exist in
var targetTables = map[types.TargetKind]string{
	types.TargetClaim:    "claims",
	types.TargetDecision: "decisions",
	types.TargetEdition:  "editions",
}

// AttachEvidence links a citation to exactly one claim, decision or edition.
// Any other target arity is refused as an IntegrityViolation.
func (s *SQLStore) AttachEvidence(ctx context.Context, in types.EvidenceInput) (string, error) {
	kind, targetID, ok := in.Target.Resolve()
	if !ok {
		err := errors.NewIntegrityViolation("evidence must target exactly one claim, decision or edition; got %d", in.Target.Arity())
		metrics.IntegrityViolations.WithLabelValues("evidence_arity").Inc()
		logger.IntegrityAlert(s.logger, "Evidence target arity refused",
			"arity", in.Target.Arity(),
			"evidence_ref", in.EvidenceRef,
			"added_by", in.AddedBy,
		)
		return "", err
	}
	if err := types.Validate(in); err != nil {
		return "", errors.Wrap(err, "attach evidence")
	}

	exists, err := s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM "+targetTables[kind]+" WHERE id = ?)", targetID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errors.NewValidationError("%s %s does not exist", kind, targetID)
	}

	id := ids.Evidence()
	_, err = s.q().ExecContext(ctx, evidenceInsertQuery,
		id,
		nullString(in.Target.ClaimID),
		nullString(in.Target.DecisionID),
		nullString(in.Target.EditionID),
		in.EvidenceType,
		in.EvidenceRef,
		in.AddedBy,
		in.Note,
		s.now(),
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert evidence")
	}

	s.logger.Debugw("Evidence attached",
		logger.FieldEvidenceID, id,
		"target_kind", kind,
		"target_id", targetID,
	)
	return id, nil
}

// ListEvidence returns evidence for one target, oldest first
func (s *SQLStore) ListEvidence(ctx context.Context, target types.EvidenceTarget) ([]types.Evidence, error) {
	kind, targetID, ok := target.Resolve()
	if !ok {
		return nil, errors.NewValidationError("evidence lookup needs exactly one target, got %d", target.Arity())
	}
	column := string(kind) + "_id"

	rows, err := s.q().QueryContext(ctx, `
		SELECT id, claim_id, decision_id, edition_id, evidence_type, evidence_ref, added_by, note, created_at
		FROM evidence WHERE `+column+` = ? ORDER BY created_at, id`, targetID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list evidence")
	}
	defer rows.Close()

	var out []types.Evidence
	for rows.Next() {
		var (
			e                   types.Evidence
			claim, dec, edition sql.NullString
		)
		if err := rows.Scan(&e.ID, &claim, &dec, &edition, &e.EvidenceType, &e.EvidenceRef,
			&e.AddedBy, &e.Note, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan evidence")
		}
		e.Target = types.EvidenceTarget{ClaimID: claim.String, DecisionID: dec.String, EditionID: edition.String}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate evidence")
}
