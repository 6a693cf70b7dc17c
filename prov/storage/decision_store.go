package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/types"
)

const (
	decisionInsertQuery = `
		INSERT INTO decisions (id, subject, kind, chosen_claim_id, decided_by, method, rationale, created_at, supersedes_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	decisionSelectColumns = `id, subject, kind, chosen_claim_id, decided_by, method, rationale, created_at, supersedes_id`

	headInsertQuery = `INSERT INTO decision_heads (subject, kind, decision_id, updated_at) VALUES (?, ?, ?, ?)`

	// The WHERE on decision_id is the compare-and-swap: it only matches while
	// the head still points at the decision the caller read.
	headAdvanceQuery = `
		UPDATE decision_heads SET decision_id = ?, updated_at = ?
		WHERE subject = ? AND kind = ? AND decision_id = ?`

	implicitRationale = "algorithmic consensus in effect before the first recorded decision"

	conflictHint = "re-read the active decision and retry with its id as base_decision_id"
)

// RecordDecision appends a decision and makes it the active one.
//
// req.BaseDecisionID must name the current active decision, or be empty when
// there is none; otherwise the call fails with a ConflictError and nothing is
// written. When the first decision for a subject overrides a different
// algorithmic winner, that winner is journaled first as an implicit
// "algorithm" decision, and the new decision supersedes it.
func (s *SQLStore) RecordDecision(ctx context.Context, req types.DecisionRequest) (string, error) {
	if err := types.Validate(req); err != nil {
		return "", errors.Wrap(err, "record decision")
	}

	var recorded []*types.Decision
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		recorded = recorded[:0]

		chosen, err := getClaim(ctx, tx, req.ChosenClaimID)
		if errors.IsNotFoundError(err) {
			return errors.NewValidationError("chosen claim %s does not exist", req.ChosenClaimID)
		}
		if err != nil {
			return err
		}
		if chosen.Subject.Key() != req.Subject.Key() || chosen.Kind != req.Kind {
			return errors.NewValidationError("claim %s belongs to %s/%s, not %s/%s",
				chosen.ID, chosen.Subject.Key(), chosen.Kind, req.Subject.Key(), req.Kind)
		}
		if err := s.checkChoice(ctx, tx, *chosen); err != nil {
			return err
		}

		headID, err := headDecisionID(ctx, tx, req.Subject, req.Kind)
		if err != nil {
			return err
		}
		if headID != req.BaseDecisionID {
			active := headID
			if active == "" {
				active = "none"
			}
			return errors.WithHint(
				errors.NewConflictError("base decision %q is stale for %s/%s (active: %s)",
					req.BaseDecisionID, req.Subject.Key(), req.Kind, active),
				conflictHint)
		}

		now := s.now()
		supersedes := headID
		if headID == "" {
			implicit, err := s.implicitDefault(ctx, tx, req)
			if err != nil {
				return err
			}
			if implicit != nil {
				implicit.CreatedAt = now
				if err := insertDecision(ctx, tx, implicit); err != nil {
					return err
				}
				recorded = append(recorded, implicit)
				supersedes = implicit.ID
			}
		}

		d := &types.Decision{
			ID:            ids.Decision(),
			Subject:       req.Subject,
			Kind:          req.Kind,
			ChosenClaimID: req.ChosenClaimID,
			DecidedBy:     req.DecidedBy,
			Method:        req.Method,
			Rationale:     req.Rationale,
			CreatedAt:     now,
			SupersedesID:  supersedes,
		}
		if err := insertDecision(ctx, tx, d); err != nil {
			return err
		}
		recorded = append(recorded, d)

		if err := advanceHead(ctx, tx, req.Subject, req.Kind, headID, d.ID, now); err != nil {
			return err
		}
		return s.writeConsensus(ctx, tx, req.Subject, req.Kind, d.ChosenClaimID, true)
	})
	if err != nil {
		if errors.IsConflictError(err) {
			metrics.Decisions.WithLabelValues("conflict").Inc()
			s.logger.Infow("Decision rejected: stale base",
				logger.FieldSubject, req.Subject.Key(),
				logger.FieldKind, req.Kind,
				"base_decision_id", req.BaseDecisionID,
			)
		}
		return "", err
	}

	final := recorded[len(recorded)-1]
	if len(recorded) == 2 {
		metrics.Decisions.WithLabelValues("implicit").Inc()
	}
	metrics.Decisions.WithLabelValues("recorded").Inc()
	s.logger.Infow("Decision recorded",
		logger.FieldDecisionID, final.ID,
		logger.FieldSubject, final.Subject.Key(),
		logger.FieldKind, final.Kind,
		logger.FieldClaimID, final.ChosenClaimID,
		logger.FieldMethod, final.Method,
		"supersedes_id", final.SupersedesID,
	)
	s.notifyDecision(ctx, final)
	return final.ID, nil
}

// implicitDefault returns the algorithmic decision that the first recorded
// decision displaces, or nil when the algorithm already agrees with it.
func (s *SQLStore) implicitDefault(ctx context.Context, q Querier, req types.DecisionRequest) (*types.Decision, error) {
	claims, err := listClaims(ctx, q, req.Subject, req.Kind)
	if err != nil {
		return nil, err
	}
	winner, ok, err := s.algorithmic(ctx, q, req.Subject, req.Kind, claims)
	if errors.IsDecisionRequired(err) {
		// No algorithmic answer was in effect, so there is nothing to journal
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ok || winner.ID == req.ChosenClaimID {
		return nil, nil
	}
	return &types.Decision{
		ID:            ids.Decision(),
		Subject:       req.Subject,
		Kind:          req.Kind,
		ChosenClaimID: winner.ID,
		DecidedBy:     types.SelectorActor,
		Method:        types.MethodAlgorithm,
		Rationale:     implicitRationale,
	}, nil
}

func insertDecision(ctx context.Context, q Querier, d *types.Decision) error {
	_, err := q.ExecContext(ctx, decisionInsertQuery,
		d.ID, d.Subject.Key(), string(d.Kind), d.ChosenClaimID, d.DecidedBy, string(d.Method),
		d.Rationale, d.CreatedAt, nullString(d.SupersedesID))
	if db.IsUniqueViolation(err) {
		// supersedes_id is UNIQUE: someone else already extended this chain
		return errors.WithHint(errors.NewConflictError("decision %s already has a successor", d.SupersedesID), conflictHint)
	}
	return errors.Wrap(err, "failed to insert decision")
}

func advanceHead(ctx context.Context, q Querier, subject types.Subject, kind types.Kind, fromID, toID string, at time.Time) error {
	if fromID == "" {
		_, err := q.ExecContext(ctx, headInsertQuery, subject.Key(), string(kind), toID, at)
		if db.IsUniqueViolation(err) {
			return errors.WithHint(errors.NewConflictError("%s/%s gained an active decision concurrently", subject.Key(), kind), conflictHint)
		}
		return errors.Wrap(err, "failed to create decision head")
	}

	res, err := q.ExecContext(ctx, headAdvanceQuery, toID, at, subject.Key(), string(kind), fromID)
	if err != nil {
		return errors.Wrap(err, "failed to advance decision head")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n != 1 {
		return errors.WithHint(errors.NewConflictError("active decision for %s/%s moved past %s", subject.Key(), kind, fromID), conflictHint)
	}
	return nil
}

func headDecisionID(ctx context.Context, q Querier, subject types.Subject, kind types.Kind) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		"SELECT decision_id FROM decision_heads WHERE subject = ? AND kind = ?",
		subject.Key(), string(kind)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, errors.Wrap(err, "failed to read decision head")
}

// activeDecision returns nil when no decision exists for the subject+kind
func activeDecision(ctx context.Context, q Querier, subject types.Subject, kind types.Kind) (*types.Decision, error) {
	headID, err := headDecisionID(ctx, q, subject, kind)
	if err != nil || headID == "" {
		return nil, err
	}
	d, err := getDecision(ctx, q, headID)
	if errors.IsNotFoundError(err) {
		return nil, errors.NewIntegrityViolation("decision head for %s/%s points at missing decision %s", subject.Key(), kind, headID)
	}
	return d, err
}

// GetActiveDecision returns the decision nothing supersedes yet
func (s *SQLStore) GetActiveDecision(ctx context.Context, subject types.Subject, kind types.Kind) (*types.Decision, error) {
	d, err := activeDecision(ctx, s.q(), subject, kind)
	if err != nil {
		if errors.IsIntegrityViolation(err) {
			s.integrityAlert("missing_head_target", err, subject, kind)
		}
		return nil, err
	}
	if d == nil {
		return nil, errors.NewNotFoundError("no decision for %s/%s", subject.Key(), kind)
	}
	return d, nil
}

// GetDecision fetches one decision by id
func (s *SQLStore) GetDecision(ctx context.Context, decisionID string) (*types.Decision, error) {
	return getDecision(ctx, s.q(), decisionID)
}

func getDecision(ctx context.Context, q Querier, id string) (*types.Decision, error) {
	row := q.QueryRowContext(ctx, "SELECT "+decisionSelectColumns+" FROM decisions WHERE id = ?", id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("decision %s", id)
	}
	return d, err
}

// GetHistory walks supersedes_id back from the active decision and returns the
// chain oldest to newest. The walk is bounded; a cycle, a dangling link, a
// decision from another subject or an over-long chain is an IntegrityViolation.
func (s *SQLStore) GetHistory(ctx context.Context, subject types.Subject, kind types.Kind) ([]types.Decision, error) {
	q := s.q()
	headID, err := headDecisionID(ctx, q, subject, kind)
	if err != nil {
		return nil, err
	}

	var chain []types.Decision
	seen := make(map[string]bool)
	for id := headID; id != ""; {
		if len(chain) >= s.maxHistoryHops {
			err := errors.NewIntegrityViolation("decision chain for %s/%s exceeds %d hops", subject.Key(), kind, s.maxHistoryHops)
			s.integrityAlert("history_bound", err, subject, kind)
			return nil, err
		}
		if seen[id] {
			err := errors.NewIntegrityViolation("decision chain for %s/%s cycles at %s", subject.Key(), kind, id)
			s.integrityAlert("history_cycle", err, subject, kind)
			return nil, err
		}
		seen[id] = true

		d, err := getDecision(ctx, q, id)
		if errors.IsNotFoundError(err) {
			err = errors.NewIntegrityViolation("decision chain for %s/%s references missing decision %s", subject.Key(), kind, id)
			s.integrityAlert("history_gap", err, subject, kind)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		if d.Subject != subject || d.Kind != kind {
			err := errors.NewIntegrityViolation("decision %s in chain for %s/%s belongs to %s/%s",
				d.ID, subject.Key(), kind, d.Subject.Key(), d.Kind)
			s.integrityAlert("history_crossed", err, subject, kind)
			return nil, err
		}
		chain = append(chain, *d)
		id = d.SupersedesID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *SQLStore) integrityAlert(reason string, err error, subject types.Subject, kind types.Kind) {
	metrics.IntegrityViolations.WithLabelValues(reason).Inc()
	logger.IntegrityAlert(s.logger, "Decision chain integrity violation",
		logger.FieldSubject, subject.Key(),
		logger.FieldKind, kind,
		"reason", reason,
		logger.FieldError, err,
	)
}

func scanDecision(row rowScanner) (*types.Decision, error) {
	var (
		d                     types.Decision
		subjectKey, kind, mth string
		supersedes            sql.NullString
	)
	err := row.Scan(&d.ID, &subjectKey, &kind, &d.ChosenClaimID, &d.DecidedBy, &mth, &d.Rationale,
		&d.CreatedAt, &supersedes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan decision")
	}
	subject, err := types.ParseSubject(subjectKey)
	if err != nil {
		return nil, errors.Wrapf(err, "decision %s has malformed subject", d.ID)
	}
	d.Subject = subject
	d.Kind = types.Kind(kind)
	d.Method = types.DecisionMethod(mth)
	d.SupersedesID = supersedes.String
	return &d, nil
}
