package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - actors, budget_records, flags, escalations
const currentSchemaVersion = 1

// readConns bounds the read-only pool behind Snapshot.
const readConns = 4

// Store provides durable storage for partitions, records, flags and
// escalations. Uses SQLite with WAL mode.
//
// Writes go through a single connection. Snapshot reads use a separate
// read-only pool, so they run alongside each other and alongside a write
// transaction, each seeing the last committed state.
type Store struct {
	db *sql.DB
	ro *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The write connection is configured with:
//   - WAL mode, so readers never block the writer or each other
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - BEGIN IMMEDIATE for every transaction, so a transaction holds the
//     write lock from its first statement and read-then-write sequences
//     cannot interleave across processes
//
// The read pool opens the same file with mode=ro and deferred
// transactions. In-memory databases cannot be shared between pools, so
// there Snapshot falls back to the write connection.
//
// path may be a plain file path or a "file:" URI with its own query
// parameters.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", withParams(path, "_txlock=immediate"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if inMemory(path) {
		return &Store{db: db, ro: db}, nil
	}

	ro, err := openReadPool(path)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, ro: ro}, nil
}

// openReadPool opens the read-only connections behind Snapshot. Runs after
// the schema exists, since mode=ro cannot create the file.
func openReadPool(path string) (*sql.DB, error) {
	ro, err := sql.Open("sqlite3", withParams(fileURI(path),
		"mode=ro",
		"_txlock=deferred",
		"_busy_timeout=5000",
		"_foreign_keys=on",
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	ro.SetMaxOpenConns(readConns)
	ro.SetMaxIdleConns(readConns)

	if err := ro.Ping(); err != nil {
		ro.Close()
		return nil, fmt.Errorf("failed to connect read pool: %w", err)
	}
	return ro, nil
}

// withParams appends DSN query parameters to path, respecting any query it
// already carries.
func withParams(path string, params ...string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// fileURI turns a plain path into a "file:" URI, which the driver needs for
// SQLite-level parameters such as mode.
func fileURI(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + uriEscaper.Replace(path)
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func inMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Close closes the read pool and the write connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	var roErr error
	if s.ro != nil && s.ro != s.db {
		roErr = s.ro.Close()
	}
	return errors.Join(roErr, s.db.Close())
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - writes through DB bypass the chain and are exactly what
// verification is meant to detect.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Atomic runs fn inside a write transaction. The transaction commits if fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
func (s *Store) Atomic(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Snapshot runs fn inside a read-only transaction that is always rolled
// back, giving fn a consistent view across several queries. Writes inside
// fn fail. Snapshot does not wait for an open Atomic transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.ro.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	return fn(&Tx{q: tx})
}

// Repo returns a repository that runs each statement in its own implicit
// transaction. Suitable for single-statement reads and setup.
func (s *Store) Repo() *Tx {
	return &Tx{q: s.db}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. Refuses databases written by a newer schema.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
