package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/prov/ids"
	"github.com/teranos/provenance/prov/types"
)

const (
	runInsertQuery = `
		INSERT INTO annotation_runs (id, source_type, source_name, method, scholar_id, publication_id, config_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	runSelectColumns = `id, source_type, source_name, method, scholar_id, publication_id, config_snapshot, created_at, completed_at, row_count`

	runCompleteQuery = `
		UPDATE annotation_runs
		SET completed_at = ?, row_count = CASE WHEN ? >= 0 THEN ? ELSE row_count END
		WHERE id = ? AND completed_at IS NULL`

	runAddRowsQuery = `UPDATE annotation_runs SET row_count = row_count + ? WHERE id = ?`
)

// BeginRun creates an immutable annotation run
func (s *SQLStore) BeginRun(ctx context.Context, spec types.RunSpec) (string, error) {
	if err := types.Validate(spec); err != nil {
		return "", errors.Wrap(err, "begin run")
	}

	snapshot := []byte("{}")
	if len(spec.Config) > 0 {
		var err error
		snapshot, err = json.Marshal(spec.Config)
		if err != nil {
			return "", errors.Wrap(errors.NewValidationError("config is not serializable"), err.Error())
		}
	}

	if spec.ScholarID != "" {
		exists, err := s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM scholars WHERE id = ?)", spec.ScholarID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", errors.NewValidationError("scholar %s does not exist", spec.ScholarID)
		}
	}

	id := ids.Run()
	_, err := s.q().ExecContext(ctx, runInsertQuery,
		id,
		string(spec.SourceType),
		spec.SourceName,
		spec.Method,
		nullString(spec.ScholarID),
		nullString(spec.PublicationID),
		string(snapshot),
		s.now(),
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert annotation run")
	}

	s.logger.Infow("Annotation run started",
		logger.FieldRunID, id,
		logger.FieldSourceType, spec.SourceType,
		logger.FieldSourceName, spec.SourceName,
		logger.FieldMethod, spec.Method,
	)
	return id, nil
}

// CompleteRun stamps completion. It may be called once per run.
func (s *SQLStore) CompleteRun(ctx context.Context, runID string, rowCount int) error {
	res, err := s.q().ExecContext(ctx, runCompleteQuery, s.now(), rowCount, rowCount, runID)
	if err != nil {
		return errors.Wrapf(err, "failed to complete run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 1 {
		s.logger.Infow("Annotation run completed", logger.FieldRunID, runID, logger.FieldCount, rowCount)
		return nil
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return errors.WithHint(
		errors.NewConflictError("run %s already completed at %s", runID, run.CompletedAt.Format("2006-01-02T15:04:05Z07:00")),
		"runs are immutable; begin a new run for further work")
}

// GetRun fetches one run
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*types.AnnotationRun, error) {
	row := s.q().QueryRowContext(ctx, "SELECT "+runSelectColumns+" FROM annotation_runs WHERE id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("annotation run %s", runID)
	}
	return run, err
}

// ListRuns returns the most recent runs first
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]*types.AnnotationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q().QueryContext(ctx,
		"SELECT "+runSelectColumns+" FROM annotation_runs ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*types.AnnotationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// runSourceType returns the run's source type, or a ValidationError when the run is missing
func (s *SQLStore) runSourceType(ctx context.Context, q Querier, runID string) (types.SourceType, error) {
	var st string
	err := q.QueryRowContext(ctx, "SELECT source_type FROM annotation_runs WHERE id = ?", runID).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.NewValidationError("annotation run %s does not exist", runID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up run %s", runID)
	}
	return types.SourceType(st), nil
}

func addRunRows(ctx context.Context, q Querier, runID string, n int) error {
	if n == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, runAddRowsQuery, n, runID)
	return errors.Wrapf(err, "failed to update row count of run %s", runID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*types.AnnotationRun, error) {
	var (
		run                    types.AnnotationRun
		sourceType, snapshot   string
		scholarID, publication sql.NullString
		completedAt            sql.NullTime
	)
	err := row.Scan(&run.ID, &sourceType, &run.SourceName, &run.Method, &scholarID, &publication,
		&snapshot, &run.CreatedAt, &completedAt, &run.RowCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan annotation run")
	}
	run.SourceType = types.SourceType(sourceType)
	run.ScholarID = scholarID.String
	run.PublicationID = publication.String
	run.ConfigSnapshot = json.RawMessage(snapshot)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

func (s *SQLStore) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var ok bool
	if err := s.q().QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "existence check failed")
	}
	return ok, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
