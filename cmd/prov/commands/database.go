package commands

import (
	"database/sql"

	"github.com/teranos/provenance/am"
	"github.com/teranos/provenance/biblio"
	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/prov/storage"
)

// DatabasePath is set by the root --db flag
var DatabasePath string

// engine bundles everything a command needs against one open database
type engine struct {
	cfg      *am.Config
	db       *sql.DB
	store    *storage.SQLStore
	resolver *biblio.Resolver
}

func (e *engine) Close() error {
	return e.db.Close()
}

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it loads from am config. Uses logger.Logger for db operations.
func openDatabase(dbPath string, busyTimeoutMS int) (*sql.DB, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		dbPath = path
	}

	return db.OpenWithMigrations(dbPath, busyTimeoutMS, logger.Logger)
}

// openEngine loads config, opens the database and wires the store and resolver
func openEngine() (*engine, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	database, err := openDatabase(DatabasePath, cfg.Database.BusyTimeoutMS)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLStoreFromConfig(database, cfg, logger.ComponentLogger("storage"))
	if err != nil {
		database.Close()
		return nil, err
	}
	resolver := biblio.NewResolverFromConfig(store, cfg.Biblio, logger.ComponentLogger("biblio"))

	return &engine{cfg: cfg, db: database, store: store, resolver: resolver}, nil
}
