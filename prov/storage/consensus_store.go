package storage

import (
	"context"
	"database/sql"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov/consensus"
	"github.com/teranos/provenance/prov/types"
)

const consensusUpsertQuery = `
	INSERT INTO consensus (subject, kind, claim_id, decided, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (subject, kind) DO UPDATE SET
		claim_id = excluded.claim_id,
		decided = excluded.decided,
		updated_at = excluded.updated_at`

// SelectConsensus computes the current claim from the claim set and the active
// decision without writing anything. ErrNotFound when there are no claims.
func (s *SQLStore) SelectConsensus(ctx context.Context, subject types.Subject, kind types.Kind) (*types.Claim, error) {
	out, ok, err := s.selectConsensus(ctx, s.q(), subject, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFoundError("no claims for %s/%s", subject.Key(), kind)
	}
	c := out.Claim
	c.IsConsensus = true
	return &c, nil
}

func (s *SQLStore) selectConsensus(ctx context.Context, q Querier, subject types.Subject, kind types.Kind) (consensus.Outcome, bool, error) {
	claims, err := listClaims(ctx, q, subject, kind)
	if err != nil {
		return consensus.Outcome{}, false, err
	}
	active, err := activeDecision(ctx, q, subject, kind)
	if err != nil {
		return consensus.Outcome{}, false, err
	}
	if active == nil {
		best, ok, err := s.algorithmic(ctx, q, subject, kind, claims)
		return consensus.Outcome{Claim: best}, ok, err
	}
	out, ok, err := s.ranking.Select(claims, active)
	if errors.IsIntegrityViolation(err) {
		metrics.IntegrityViolations.WithLabelValues("dangling_decision").Inc()
		logger.IntegrityAlert(s.logger, "Active decision points outside the claim set",
			logger.FieldSubject, subject.Key(),
			logger.FieldKind, kind,
			logger.FieldDecisionID, active.ID,
		)
	}
	return out, ok, err
}

// GetConsensus reads the materialized current claim. Subjects never
// materialized (deferred batch import) fall back to SelectConsensus.
func (s *SQLStore) GetConsensus(ctx context.Context, subject types.Subject, kind types.Kind) (*types.Claim, error) {
	var claimID string
	err := s.q().QueryRowContext(ctx,
		"SELECT claim_id FROM consensus WHERE subject = ? AND kind = ?", subject.Key(), string(kind)).Scan(&claimID)
	if errors.Is(err, sql.ErrNoRows) {
		return s.SelectConsensus(ctx, subject, kind)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read consensus")
	}
	return getClaim(ctx, s.q(), claimID)
}

// RefreshConsensus re-materializes one subject+kind
func (s *SQLStore) RefreshConsensus(ctx context.Context, subject types.Subject, kind types.Kind) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.refreshConsensus(ctx, tx, subject, kind)
		return err
	})
}

// RecomputeConsensus re-materializes every subject+kind that has claims or a
// stale consensus row. Each subject commits on its own, so an interrupted pass
// leaves earlier subjects refreshed; rerunning converges to the same state.
func (s *SQLStore) RecomputeConsensus(ctx context.Context) (int, error) {
	pairs, err := s.consensusPairs(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, sk := range pairs {
		sk := sk
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		var didChange bool
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			var err error
			didChange, err = s.refreshConsensus(ctx, tx, sk.subject, sk.kind)
			return err
		})
		if err != nil {
			return changed, errors.Wrapf(err, "recompute %s/%s", sk.subject.Key(), sk.kind)
		}
		if didChange {
			changed++
		}
	}

	s.logger.Infow("Consensus recomputed", logger.FieldCount, len(pairs), "changed", changed)
	return changed, nil
}

// consensusPairs loads every pair up front; the rows must be closed before
// the per-subject transactions start.
func (s *SQLStore) consensusPairs(ctx context.Context) ([]subjectKind, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT subject, kind FROM claims
		UNION
		SELECT subject, kind FROM consensus
		ORDER BY 1, 2`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subjects")
	}
	defer rows.Close()

	var pairs []subjectKind
	for rows.Next() {
		var key, kind string
		if err := rows.Scan(&key, &kind); err != nil {
			return nil, errors.Wrap(err, "failed to scan subject")
		}
		subject, err := types.ParseSubject(key)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, subjectKind{subject, types.Kind(kind)})
	}
	return pairs, errors.Wrap(rows.Err(), "failed to iterate subjects")
}

// refreshConsensus writes the selector's answer into the consensus table.
// The table's primary key keeps at most one current claim per subject+kind.
func (s *SQLStore) refreshConsensus(ctx context.Context, q Querier, subject types.Subject, kind types.Kind) (bool, error) {
	out, ok, err := s.selectConsensus(ctx, q, subject, kind)
	if errors.IsDecisionRequired(err) {
		// Nothing is current until a decision settles the tie
		logger.FromContext(ctx, s.logger).Infow("Consensus needs a decision",
			logger.FieldSubject, subject.Key(),
			logger.FieldKind, kind,
			logger.FieldError, err,
		)
		ok, err = false, nil
	}
	if err != nil {
		return false, err
	}

	var (
		currentID string
		decided   bool
	)
	err = q.QueryRowContext(ctx,
		"SELECT claim_id, decided FROM consensus WHERE subject = ? AND kind = ?",
		subject.Key(), string(kind)).Scan(&currentID, &decided)
	hasRow := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, errors.Wrap(err, "failed to read consensus")
	}

	if !ok {
		if !hasRow {
			return false, nil
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM consensus WHERE subject = ? AND kind = ?", subject.Key(), string(kind)); err != nil {
			return false, errors.Wrap(err, "failed to clear consensus")
		}
		if err := s.consensusChanged(ctx, q, subject, kind, ""); err != nil {
			return false, err
		}
		metrics.ConsensusRefreshes.WithLabelValues("cleared").Inc()
		return true, nil
	}

	if hasRow && currentID == out.Claim.ID && decided == out.Decided {
		metrics.ConsensusRefreshes.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	if err := s.writeConsensus(ctx, q, subject, kind, out.Claim.ID, out.Decided); err != nil {
		return false, err
	}
	metrics.ConsensusRefreshes.WithLabelValues("changed").Inc()
	logger.FromContext(ctx, s.logger).Debugw("Consensus changed",
		logger.FieldSubject, subject.Key(),
		logger.FieldKind, kind,
		logger.FieldClaimID, out.Claim.ID,
		"decided", out.Decided,
	)
	return true, nil
}

func (s *SQLStore) writeConsensus(ctx context.Context, q Querier, subject types.Subject, kind types.Kind, claimID string, decided bool) error {
	if _, err := q.ExecContext(ctx, consensusUpsertQuery, subject.Key(), string(kind), claimID, decided, s.now()); err != nil {
		return errors.Wrap(err, "failed to write consensus")
	}
	return s.consensusChanged(ctx, q, subject, kind, claimID)
}
