package db

import (
	"context"
	"database/sql"

	"github.com/teranos/provenance/errors"
)

// SubsystemTables lists every table owned by the engine, children before parents
// so deletes never trip a foreign key.
var SubsystemTables = []string{
	"ingest_checkpoints",
	"dedup_candidates",
	"evidence",
	"editions",
	"publication_keys",
	"identifiers",
	"decision_heads",
	"decisions",
	"consensus",
	"claims",
	"annotation_runs",
	"publications",
	"scholar_keys",
	"scholars",
}

// Reset wipes the engine's state in a single transaction. Schema and migration
// history are kept. This is the only path that ever deletes decisions.
func Reset(ctx context.Context, database *sql.DB) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin reset")
	}
	defer tx.Rollback()

	// Publications reference each other through supersedes_id
	if _, err := tx.ExecContext(ctx, "UPDATE publications SET supersedes_id = NULL"); err != nil {
		return errors.Wrap(err, "clear publication supersession")
	}
	for _, table := range SubsystemTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "commit reset")
}
