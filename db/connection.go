package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/sym"
)

// SQLiteBusyTimeoutMS is how long a writer waits for the lock before failing
const SQLiteBusyTimeoutMS = 5000

// DSN builds a go-sqlite3 connection string.
// Foreign keys and busy timeout are per-connection settings, so they go in the DSN
// rather than a one-off PRAGMA that would only reach the first pooled connection.
// Immediate transaction locking makes every write transaction take the write lock
// up front, so read-then-write sequences (decision CAS) never fail on lock upgrade.
func DSN(path string, busyTimeoutMS int) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = SQLiteBusyTimeoutMS
	}
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", fmt.Sprintf("%d", busyTimeoutMS))
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	return OpenWithTimeout(path, SQLiteBusyTimeoutMS, logger)
}

// OpenWithTimeout is Open with an explicit busy timeout.
func OpenWithTimeout(path string, busyTimeoutMS int, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}
	db, err := sql.Open("sqlite3", DSN(path, busyTimeoutMS))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes (persistent, database-wide)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"symbol", sym.DB,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies all pending migrations.
func OpenWithMigrations(path string, busyTimeoutMS int, logger *zap.SugaredLogger) (*sql.DB, error) {
	database, err := OpenWithTimeout(path, busyTimeoutMS, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	if err := Migrate(database, logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", path)
	}
	return database, nil
}

// OpenMemory opens a migrated in-memory database.
// The pool is pinned to one connection: every go-sqlite3 connection to ":memory:"
// would otherwise get its own private database.
func OpenMemory() (*sql.DB, error) {
	database, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory database")
	}
	database.SetMaxOpenConns(1)
	if err := Migrate(database, nil); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate in-memory database")
	}
	return database, nil
}
