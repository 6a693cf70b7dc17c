package biblio

import (
	"context"
	"database/sql"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/storage"
)

// queryStrings reads a single string column. Rows are drained before
// returning so the caller can issue the next query on a pinned connection.
func queryStrings(ctx context.Context, q storage.Querier, query string, args ...interface{}) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "scan failed")
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate failed")
}

func queryPairs(ctx context.Context, q storage.Querier, query string, args ...interface{}) ([][2]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, errors.Wrap(err, "scan failed")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate failed")
}

// walkChain follows supersedes_id from id and returns the ancestors, nearest
// first. A loop or a chain longer than limit means the stored data is
// corrupt; both are integrity violations.
func walkChain(ctx context.Context, q storage.Querier, table, id string, limit int) ([]string, error) {
	var ancestors []string
	seen := map[string]bool{id: true}
	cur := id
	for {
		var next sql.NullString
		err := q.QueryRowContext(ctx, "SELECT supersedes_id FROM "+table+" WHERE id = ?", cur).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			if cur == id {
				return nil, errors.NewNotFoundError("%s %s", table, id)
			}
			return nil, errors.NewIntegrityViolation("%s chain from %s references missing %s", table, id, cur)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s chain", table)
		}
		if !next.Valid {
			return ancestors, nil
		}
		if seen[next.String] {
			return nil, errors.NewIntegrityViolation("%s chain from %s loops at %s", table, id, next.String)
		}
		if len(ancestors) >= limit {
			return nil, errors.NewIntegrityViolation("%s chain from %s exceeds %d links", table, id, limit)
		}
		seen[next.String] = true
		ancestors = append(ancestors, next.String)
		cur = next.String
	}
}

// walkDescendants follows the records that supersede id, nearest first, bounded
func walkDescendants(ctx context.Context, q storage.Querier, table, id string, limit int) ([]string, error) {
	var descendants []string
	seen := map[string]bool{id: true}
	cur := id
	for {
		var next string
		err := q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE supersedes_id = ?", cur).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return descendants, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s successors", table)
		}
		if seen[next] {
			return nil, errors.NewIntegrityViolation("%s successors of %s loop at %s", table, id, next)
		}
		if len(descendants) >= limit {
			return nil, errors.NewIntegrityViolation("%s successors of %s exceed %d links", table, id, limit)
		}
		seen[next] = true
		descendants = append(descendants, next)
		cur = next
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
