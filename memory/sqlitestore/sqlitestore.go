// Package sqlitestore is a [findex.Memory] adapter backed by SQLite, for a
// single-process durable index. Adapted from the teacher's
// internal/store/sql.go: same sql.Open/pragma/schema-version shape, a
// two-column `address BLOB PRIMARY KEY, word BLOB NOT NULL` table standing
// in for the ticket schema, and the guarded write implemented as one
// transaction instead of the teacher's optimistic-concurrency ticket
// writes.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/findexlabs/findex"
)

// currentSchemaVersion is stored in SQLite's user_version pragma, the same
// mechanism the teacher uses to gate a full reindex on schema changes.
const currentSchemaVersion = 1

// sqliteBusyTimeout is how long SQLite waits on a lock before returning
// SQLITE_BUSY, in milliseconds.
const sqliteBusyTimeout = 10000

// Store is a [findex.Memory] backed by a single SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures its schema is
// current.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitestore: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	// One connection: the per-connection pragmas below then cover every
	// statement, and GuardedWrite transactions run strictly one at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("sqlitestore: apply pragmas: %w", err)
	}

	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("sqlitestore: read user_version: %w", err)
	}

	if version == currentSchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		"DROP TABLE IF EXISTS words",
		`CREATE TABLE words (
			address BLOB PRIMARY KEY,
			word BLOB NOT NULL
		) WITHOUT ROWID`,
		fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion),
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: schema statement %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// BatchRead implements [findex.Memory].
func (s *Store) BatchRead(ctx context.Context, addrs []findex.Address) ([]findex.Word, error) {
	out := make([]findex.Word, len(addrs))

	stmt, err := s.db.PrepareContext(ctx, "SELECT word FROM words WHERE address = ?")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: prepare read: %w", err)
	}
	defer stmt.Close()

	for i, a := range addrs {
		var w []byte

		row := stmt.QueryRowContext(ctx, a.Bytes())

		err := row.Scan(&w)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out[i] = nil
		case err != nil:
			return nil, fmt.Errorf("sqlitestore: read: %w", err)
		default:
			out[i] = w
		}
	}

	return out, nil
}

// GuardedWrite implements [findex.Memory]. The read-compare-write sequence
// runs inside one SQLite transaction on the Store's single connection, so
// it is atomic with respect to every other GuardedWrite call against this
// Store.
func (s *Store) GuardedWrite(ctx context.Context, guard findex.Binding, bindings []findex.Binding) (findex.Word, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var observed []byte

	row := tx.QueryRowContext(ctx, "SELECT word FROM words WHERE address = ?", guard.Address.Bytes())

	err = row.Scan(&observed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: guard read: %w", err)
	}

	if !wordsEqual(observed, guard.Word) {
		return observed, tx.Commit()
	}

	dedup := make(map[findex.Address]findex.Word, len(bindings))
	order := make([]findex.Address, 0, len(bindings))

	for _, b := range bindings {
		if _, ok := dedup[b.Address]; !ok {
			order = append(order, b.Address)
		}

		dedup[b.Address] = b.Word
	}

	for _, a := range order {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO words(address, word) VALUES (?, ?) ON CONFLICT(address) DO UPDATE SET word = excluded.word",
			a.Bytes(), []byte(dedup[a]))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: commit: %w", err)
	}

	return observed, nil
}

func wordsEqual(a, b findex.Word) bool {
	if (a == nil) != (b == nil) {
		return false
	}

	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
