// Package storage provides the SQLite implementation of the provenance engine.
// Claims, runs and evidence are insert-only; the decision head row per
// subject+kind is the only row ever updated in place.
package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/provenance/am"
	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/prov"
	"github.com/teranos/provenance/prov/consensus"
	"github.com/teranos/provenance/prov/types"
)

var _ prov.Engine = (*SQLStore)(nil)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements prov.Engine with a SQLite backend
type SQLStore struct {
	db             *sql.DB
	tx             *sql.Tx // set on stores bound to an outer transaction
	logger         *zap.SugaredLogger
	ranking        *consensus.Ranking
	maxHistoryHops int
	now            func() time.Time
	observers      *observerSet
	pending        *[]*pendingDecision
	handlers       map[types.Kind]KindHandler
}

// NewSQLStore creates a store with the default ranking and history bound
func NewSQLStore(database *sql.DB, log *zap.SugaredLogger) *SQLStore {
	return &SQLStore{
		db:             database,
		logger:         logger.OrNop(log),
		ranking:        consensus.DefaultRanking(),
		maxHistoryHops: am.DefaultMaxHistoryHops,
		now:            func() time.Time { return time.Now().UTC() },
		observers:      &observerSet{},
	}
}

// NewSQLStoreFromConfig applies the consensus section of the configuration
func NewSQLStoreFromConfig(database *sql.DB, cfg *am.Config, log *zap.SugaredLogger) (*SQLStore, error) {
	s := NewSQLStore(database, log)
	if cfg == nil {
		return s, nil
	}
	ranking, err := consensus.NewRanking(cfg.Consensus.SourceRank)
	if err != nil {
		return nil, err
	}
	s.WithRanking(ranking)
	if cfg.Consensus.MaxHistoryHops > 0 {
		s.maxHistoryHops = cfg.Consensus.MaxHistoryHops
	}
	return s, nil
}

// WithRanking replaces the source ranking
func (s *SQLStore) WithRanking(r *consensus.Ranking) *SQLStore {
	s.ranking = r
	return s
}

// WithMaxHistoryHops sets the traversal bound for GetHistory
func (s *SQLStore) WithMaxHistoryHops(n int) *SQLStore {
	s.maxHistoryHops = n
	return s
}

// WithClock replaces the time source
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Ranking returns the configured source ranking
func (s *SQLStore) Ranking() *consensus.Ranking {
	return s.ranking
}

// Querier returns the bound transaction, or the database for an unbound store
func (s *SQLStore) Querier() Querier {
	return s.q()
}

// Now is the store's clock
func (s *SQLStore) Now() time.Time {
	return s.now()
}

func (s *SQLStore) q() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// InTx runs fn against a store bound to one transaction. Every write fn makes
// through the bound store commits or rolls back together; decision observers
// fire only after the commit.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx *SQLStore) error) error {
	if s.tx != nil {
		return fn(s)
	}
	var pending []*pendingDecision
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		bound := *s
		bound.tx = tx
		bound.pending = &pending
		return fn(&bound)
	})
	if err != nil {
		return err
	}
	for _, p := range pending {
		s.observers.notify(ctx, p.decision, s.logger)
	}
	return nil
}

// Tx returns the bound transaction, or nil for an unbound store
func (s *SQLStore) Tx() *sql.Tx {
	return s.tx
}

// withTx runs fn in a transaction, joining the bound one if present
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if db.IsDatabaseClosed(err) {
			err = errors.Mark(err, db.ErrDatabaseClosed)
		}
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warnw("Rollback failed", logger.FieldError, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
