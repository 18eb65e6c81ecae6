// Package pgstore is a [findex.Memory] adapter backed by PostgreSQL via
// pgx. Grounded on
// original_source/src/memory/postgresql_store/memory.rs: same two-column
// `a BYTEA PRIMARY KEY, w BYTEA NOT NULL` table and ANY($1::bytea[]) batch
// read; the guarded write is reworked from the source's dedup-CTE SQL
// script into an explicit SERIALIZABLE transaction with
// retry-on-serialization-failure, since pgx's simple query protocol here
// doesn't need the single-roundtrip CTE the Rust driver optimizes for.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/findexlabs/findex"
)

// maxSerializationRetries bounds the retry loop for SQLSTATE 40001
// (serialization_failure) under SERIALIZABLE isolation.
const maxSerializationRetries = 8

// Store is a [findex.Memory] backed by a PostgreSQL table.
type Store struct {
	pool      *pgxpool.Pool
	tableName string
}

// Connect opens a pool against dbURL and ensures tableName exists with the
// expected schema, constrained to exactly addressLength/wordLength bytes
// per row as the source does with its CHECK (octet_length(...) = N).
func Connect(ctx context.Context, dbURL, tableName string, wordLength int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			a BYTEA PRIMARY KEY CHECK (octet_length(a) = %d),
			w BYTEA NOT NULL CHECK (octet_length(w) = %d)
		)`, pgx.Identifier{tableName}.Sanitize(), findex.AddressLength, wordLength)

	if _, err := pool.Exec(ctx, stmt); err != nil {
		pool.Close()

		return nil, fmt.Errorf("pgstore: create table: %w", err)
	}

	return &Store{pool: pool, tableName: tableName}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) table() string { return pgx.Identifier{s.tableName}.Sanitize() }

// BatchRead implements [findex.Memory].
func (s *Store) BatchRead(ctx context.Context, addrs []findex.Address) ([]findex.Word, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	keys := make([][]byte, len(addrs))
	for i, a := range addrs {
		keys[i] = append([]byte(nil), a.Bytes()...)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT a, w FROM %s WHERE a = ANY($1::bytea[])", s.table()), keys)
	if err != nil {
		return nil, fmt.Errorf("pgstore: batch read: %w", err)
	}
	defer rows.Close()

	found := make(map[findex.Address]findex.Word, len(addrs))

	for rows.Next() {
		var a, w []byte
		if err := rows.Scan(&a, &w); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}

		var addr findex.Address
		copy(addr[:], a)
		found[addr] = w
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: rows: %w", err)
	}

	out := make([]findex.Word, len(addrs))
	for i, a := range addrs {
		out[i] = found[a]
	}

	return out, nil
}

// GuardedWrite implements [findex.Memory] as one SERIALIZABLE transaction,
// retrying on serialization failure (SQLSTATE 40001) up to
// maxSerializationRetries times.
func (s *Store) GuardedWrite(ctx context.Context, guard findex.Binding, bindings []findex.Binding) (findex.Word, error) {
	var observed findex.Word

	for attempt := 0; ; attempt++ {
		var err error

		observed, err = s.guardedWriteOnce(ctx, guard, bindings)
		if err == nil {
			return observed, nil
		}

		if !isSerializationFailure(err) || attempt >= maxSerializationRetries {
			return nil, err
		}
	}
}

func (s *Store) guardedWriteOnce(ctx context.Context, guard findex.Binding, bindings []findex.Binding) (findex.Word, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var observed []byte

	err = tx.QueryRow(ctx, fmt.Sprintf("SELECT w FROM %s WHERE a = $1", s.table()), guard.Address.Bytes()).Scan(&observed)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pgstore: guard read: %w", err)
	}

	if !wordsEqual(observed, guard.Word) {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("pgstore: commit: %w", err)
		}

		return observed, nil
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
		_, err := tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (a, w) VALUES ($1, $2) ON CONFLICT (a) DO UPDATE SET w = excluded.w", s.table()),
			a.Bytes(), []byte(dedup[a]))
		if err != nil {
			return nil, fmt.Errorf("pgstore: write: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: commit: %w", err)
	}

	return observed, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == "40001"
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
