package storage

import (
	"context"
	"database/sql"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/prov"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/types"
)

const (
	claimInsertQuery = `
		INSERT INTO claims (id, subject, kind, value, confidence, annotation_run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	claimSelect = `
		SELECT c.id, c.subject, c.kind, c.value, c.confidence, c.annotation_run_id, c.created_at, r.source_type,
		       EXISTS(SELECT 1 FROM consensus k WHERE k.subject = c.subject AND k.kind = c.kind AND k.claim_id = c.id)
		FROM claims c
		JOIN annotation_runs r ON r.id = c.annotation_run_id`
)

// SubmitClaim writes one claim and refreshes consensus for its subject
func (s *SQLStore) SubmitClaim(ctx context.Context, in types.ClaimInput) (string, error) {
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.insertClaim(ctx, tx, in, nil)
		if err != nil {
			return err
		}
		if err := addRunRows(ctx, tx, in.RunID, 1); err != nil {
			return err
		}
		_, err = s.refreshConsensus(ctx, tx, in.Subject, in.Kind)
		return err
	})
	if err != nil {
		return "", err
	}
	metrics.ClaimsSubmitted.WithLabelValues(string(in.Kind)).Inc()
	s.logger.Debugw("Claim submitted",
		logger.FieldClaimID, id,
		logger.FieldSubject, in.Subject.Key(),
		logger.FieldKind, in.Kind,
		logger.FieldRunID, in.RunID,
	)
	return id, nil
}

// SubmitClaims writes a batch in one transaction: the claims, each run's
// row_count increment and the BeforeCommit hook commit together or not at all.
// Rows failing validation are tallied and skipped.
func (s *SQLStore) SubmitClaims(ctx context.Context, inputs []types.ClaimInput, opts prov.BatchOptions) (*prov.BatchResult, error) {
	result := &prov.BatchResult{Processed: len(inputs)}
	insertedKinds := make(map[types.Kind]int)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		runTypes := make(map[string]types.SourceType)
		rowsPerRun := make(map[string]int)
		touched := make(map[string]subjectKind)

		for i, in := range inputs {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := s.insertClaim(ctx, tx, in, runTypes)
			if err != nil {
				if !errors.IsValidationError(err) {
					return errors.Wrapf(err, "batch row %d", i)
				}
				result.Failed++
				result.Errors = append(result.Errors, prov.RowError{
					Row:      i,
					Category: errors.Category(err),
					Message:  err.Error(),
				})
				continue
			}
			result.Inserted++
			insertedKinds[in.Kind]++
			result.ClaimIDs = append(result.ClaimIDs, id)
			rowsPerRun[in.RunID]++
			sk := subjectKind{in.Subject, in.Kind}
			touched[sk.key()] = sk
		}

		for runID, n := range rowsPerRun {
			if err := addRunRows(ctx, tx, runID, n); err != nil {
				return err
			}
		}

		if !opts.DeferConsensus {
			for _, sk := range touched {
				if _, err := s.refreshConsensus(ctx, tx, sk.subject, sk.kind); err != nil {
					return err
				}
			}
		}

		if opts.BeforeCommit != nil {
			if err := opts.BeforeCommit(ctx, tx); err != nil {
				return errors.Wrap(err, "batch commit hook failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for kind, n := range insertedKinds {
		metrics.ClaimsSubmitted.WithLabelValues(string(kind)).Add(float64(n))
	}
	if result.Failed > 0 {
		s.logger.Warnw("Claim batch committed with rejected rows",
			logger.FieldCount, result.Inserted,
			"failed", result.Failed,
			"by_category", result.ErrorsByCategory(),
		)
	}
	return result, nil
}

// insertClaim validates and inserts one claim. runTypes caches run lookups
// across a batch and may be nil.
func (s *SQLStore) insertClaim(ctx context.Context, q Querier, in types.ClaimInput, runTypes map[string]types.SourceType) (string, error) {
	if err := types.Validate(in); err != nil {
		return "", err
	}
	if err := s.checkClaim(ctx, q, in); err != nil {
		return "", err
	}
	if _, ok := runTypes[in.RunID]; !ok {
		st, err := s.runSourceType(ctx, q, in.RunID)
		if err != nil {
			return "", err
		}
		if runTypes != nil {
			runTypes[in.RunID] = st
		}
	}

	id := ids.Claim()
	_, err := q.ExecContext(ctx, claimInsertQuery,
		id, in.Subject.Key(), string(in.Kind), in.Value, in.Confidence, in.RunID, s.now())
	if err != nil {
		return "", errors.Wrap(err, "failed to insert claim")
	}
	return id, nil
}

// GetClaim fetches one claim with its consensus flag
func (s *SQLStore) GetClaim(ctx context.Context, claimID string) (*types.Claim, error) {
	return getClaim(ctx, s.q(), claimID)
}

func getClaim(ctx context.Context, q Querier, claimID string) (*types.Claim, error) {
	row := q.QueryRowContext(ctx, claimSelect+" WHERE c.id = ?", claimID)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("claim %s", claimID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClaims returns every claim for a subject+kind, oldest first
func (s *SQLStore) ListClaims(ctx context.Context, subject types.Subject, kind types.Kind) ([]types.Claim, error) {
	return listClaims(ctx, s.q(), subject, kind)
}

func listClaims(ctx context.Context, q Querier, subject types.Subject, kind types.Kind) ([]types.Claim, error) {
	rows, err := q.QueryContext(ctx,
		claimSelect+" WHERE c.subject = ? AND c.kind = ? ORDER BY c.created_at, c.id",
		subject.Key(), string(kind))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list claims")
	}
	defer rows.Close()

	var claims []types.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, errors.Wrap(rows.Err(), "failed to iterate claims")
}

func scanClaim(row rowScanner) (types.Claim, error) {
	var (
		c                            types.Claim
		subjectKey, kind, sourceType string
	)
	err := row.Scan(&c.ID, &subjectKey, &kind, &c.Value, &c.Confidence, &c.AnnotationRunID,
		&c.CreatedAt, &sourceType, &c.IsConsensus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, errors.Wrap(err, "failed to scan claim")
	}
	subject, err := types.ParseSubject(subjectKey)
	if err != nil {
		return c, errors.Wrapf(err, "claim %s has malformed subject", c.ID)
	}
	c.Subject = subject
	c.Kind = types.Kind(kind)
	c.SourceType = types.SourceType(sourceType)
	return c, nil
}

type subjectKind struct {
	subject types.Subject
	kind    types.Kind
}

func (sk subjectKind) key() string {
	return sk.subject.Key() + "\x00" + string(sk.kind)
}
