package storage

import (
	"context"

	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
)

// TableCount is the row count of one engine table
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Stats counts rows in every engine table, in reset order reversed (parents first)
func (s *SQLStore) Stats(ctx context.Context) ([]TableCount, error) {
	tables := db.SubsystemTables
	out := make([]TableCount, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		var n int64
		// Table names come from a fixed list, never from input
		if err := s.q().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tables[i]).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", tables[i])
		}
		out = append(out, TableCount{Table: tables[i], Rows: n})
	}
	return out, nil
}
