package biblio

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
)

const candidateColumns = `id, entity, payload, run_id, match_ids, confidence, tier, basis, reason, status,
	resolved_by, resolved_id, resolved_at, created_at`

// ResolveAction is a reviewer's verdict on a staged record
type ResolveAction string

const (
	// ResolveMerge folds the record into an existing entity
	ResolveMerge ResolveAction = "merge"
	// ResolveDistinct creates a new entity from the record
	ResolveDistinct ResolveAction = "distinct"
)

// ListDedupCandidates returns staged records, oldest first. An empty status
// lists all of them.
func (r *Resolver) ListDedupCandidates(ctx context.Context, status CandidateStatus, limit int) ([]DedupCandidate, error) {
	query := "SELECT " + candidateColumns + " FROM dedup_candidates"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.store.Querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dedup candidates")
	}
	defer rows.Close()

	var out []DedupCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate dedup candidates")
}

// GetDedupCandidate fetches one staged record
func (r *Resolver) GetDedupCandidate(ctx context.Context, id string) (*DedupCandidate, error) {
	c, err := scanCandidate(r.store.Querier().QueryRowContext(ctx,
		"SELECT "+candidateColumns+" FROM dedup_candidates WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("dedup candidate %s", id)
	}
	return c, err
}

// ResolveDedupCandidate applies a reviewer's verdict. Merge folds the staged
// record into targetID; distinct creates a new entity. Either way the result
// id is recorded and the candidate leaves the pending queue. Resolving a
// candidate twice is a ConflictError.
func (r *Resolver) ResolveDedupCandidate(ctx context.Context, id string, action ResolveAction, resolvedBy, targetID string) (*DedupCandidate, error) {
	if resolvedBy == "" {
		return nil, errors.NewValidationError("resolved_by is required")
	}
	if action == ResolveMerge && targetID == "" {
		return nil, errors.NewValidationError("merge needs a target id")
	}
	if action != ResolveMerge && action != ResolveDistinct {
		return nil, errors.NewValidationError("unknown resolve action %q", action)
	}

	var resolved *DedupCandidate
	err := r.InTx(ctx, func(tx *Resolver) error {
		c, err := tx.GetDedupCandidate(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != CandidatePending {
			return errors.WithHintf(
				errors.NewConflictError("dedup candidate %s is already %s", id, c.Status),
				"resolved by %s", c.ResolvedBy)
		}

		var resultID string
		switch c.Entity {
		case EntityPublication:
			resultID, err = tx.resolvePublication(ctx, c, action, targetID)
		case EntityScholar:
			resultID, err = tx.resolveScholar(ctx, c, action, targetID)
		default:
			return errors.NewIntegrityViolation("dedup candidate %s has unknown entity %q", id, c.Entity)
		}
		if err != nil {
			return err
		}

		status := CandidateMerged
		if action == ResolveDistinct {
			status = CandidateDistinct
		}
		res, err := tx.store.Querier().ExecContext(ctx, `
			UPDATE dedup_candidates SET status = ?, resolved_by = ?, resolved_id = ?, resolved_at = ?
			WHERE id = ? AND status = 'pending'`,
			string(status), resolvedBy, resultID, tx.store.Now(), id)
		if err != nil {
			return errors.Wrap(err, "failed to resolve dedup candidate")
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return errors.NewConflictError("dedup candidate %s was resolved concurrently", id)
		}
		resolved, err = tx.GetDedupCandidate(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.DedupOutcomes.WithLabelValues(string(resolved.Entity), "resolved_"+string(action)).Inc()
	r.logger.Infow("Dedup candidate resolved",
		logger.FieldCandidateID, id,
		"action", action,
		"resolved_id", resolved.ResolvedID,
		"resolved_by", resolvedBy,
	)
	return resolved, nil
}

func (r *Resolver) resolvePublication(ctx context.Context, c *DedupCandidate, action ResolveAction, targetID string) (string, error) {
	var rec dedup.PublicationRecord
	if err := json.Unmarshal(c.Payload, &rec); err != nil {
		return "", errors.NewIntegrityViolation("dedup candidate %s payload is not a publication: %v", c.ID, err)
	}

	resultID := targetID
	if action == ResolveMerge {
		if _, err := r.GetPublication(ctx, targetID); err != nil {
			return "", err
		}
		if err := foldPublicationKeys(ctx, r.store.Querier(), targetID, rec); err != nil {
			return "", err
		}
	} else {
		var err error
		if resultID, err = r.insertPublication(ctx, rec); err != nil {
			return "", err
		}
	}
	if c.RunID == "" {
		return resultID, nil
	}
	_, err := r.recordBibliographicClaim(ctx, c.RunID, resultID, rec, 1)
	return resultID, err
}

func (r *Resolver) resolveScholar(ctx context.Context, c *DedupCandidate, action ResolveAction, targetID string) (string, error) {
	var rec dedup.ScholarRecord
	if err := json.Unmarshal(c.Payload, &rec); err != nil {
		return "", errors.NewIntegrityViolation("dedup candidate %s payload is not a scholar: %v", c.ID, err)
	}
	if action == ResolveDistinct {
		return r.insertScholar(ctx, rec)
	}
	if _, err := r.GetScholar(ctx, targetID); err != nil {
		return "", err
	}
	return targetID, foldScholarKeys(ctx, r.store.Querier(), targetID, rec.Keys())
}

func scanCandidate(row interface{ Scan(...interface{}) error }) (*DedupCandidate, error) {
	var (
		c          DedupCandidate
		entity     string
		payload    string
		matchIDs   string
		status     string
		resolvedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &entity, &payload, &c.RunID, &matchIDs, &c.Confidence, &c.Tier, &c.Basis,
		&c.Reason, &status, &c.ResolvedBy, &c.ResolvedID, &resolvedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan dedup candidate")
	}
	c.Entity = Entity(entity)
	c.Status = CandidateStatus(status)
	c.Payload = json.RawMessage(payload)
	if err := json.Unmarshal([]byte(matchIDs), &c.MatchIDs); err != nil {
		return nil, errors.Wrap(err, "failed to decode candidate match ids")
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}
