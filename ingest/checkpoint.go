package ingest

import (
	"context"
	"time"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/storage"
)

// stageRun records the run a source was attributed to
const stageRun Stage = "run"

// Checkpoint is the committed progress of one source through one stage
type Checkpoint struct {
	Source    string    `json:"source"`
	Stage     Stage     `json:"stage"`
	RunID     string    `json:"run_id"`
	Offset    int       `json:"row_offset"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updated_at"`
}

const checkpointUpsertQuery = `
	INSERT INTO ingest_checkpoints (source, stage, run_id, row_offset, done, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (source, stage) DO UPDATE SET
		run_id = excluded.run_id,
		row_offset = excluded.row_offset,
		done = excluded.done,
		updated_at = excluded.updated_at`

// saveCheckpoint runs on the batch's own transaction, so the offset only
// moves when the rows it covers are committed.
func saveCheckpoint(ctx context.Context, q storage.Querier, cp Checkpoint) error {
	_, err := q.ExecContext(ctx, checkpointUpsertQuery,
		cp.Source, string(cp.Stage), cp.RunID, cp.Offset, cp.Done, cp.UpdatedAt)
	return errors.Wrapf(err, "failed to save %s/%s checkpoint", cp.Source, cp.Stage)
}

// LoadCheckpoints returns a source's checkpoints keyed by stage
func LoadCheckpoints(ctx context.Context, q storage.Querier, source string) (map[Stage]Checkpoint, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT source, stage, run_id, row_offset, done, updated_at
		FROM ingest_checkpoints WHERE source = ?`, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load checkpoints")
	}
	defer rows.Close()

	out := make(map[Stage]Checkpoint)
	for rows.Next() {
		var (
			cp    Checkpoint
			stage string
		)
		if err := rows.Scan(&cp.Source, &stage, &cp.RunID, &cp.Offset, &cp.Done, &cp.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan checkpoint")
		}
		cp.Stage = Stage(stage)
		out[cp.Stage] = cp
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate checkpoints")
}
