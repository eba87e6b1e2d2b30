// Package postgres implements store.TransactionalStore against a
// PostgreSQL table, giving the document-store seam a durable,
// production-shaped option alongside store.MemoryStore, the way the
// teacher's internal/ledger treats Postgres as the source of truth behind
// its hot Redis path.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dhali/claimengine/internal/metrics"
	"github.com/dhali/claimengine/internal/store"
)

// Schema is the DDL this package expects to already exist. Every document
// is one row keyed by its full slash-separated path; conflicts are
// detected with PostgreSQL's row-level locking rather than an in-process
// version counter, since concurrent writers may be separate processes.
const Schema = `
CREATE TABLE IF NOT EXISTS claimengine_documents (
	path TEXT PRIMARY KEY,
	data JSONB NOT NULL
);
`

// Store is a store.TransactionalStore backed by a *sql.DB.
type Store struct {
	db *sql.DB
}

// Open connects to postgresURL and verifies connectivity.
func Open(ctx context.Context, postgresURL string) (*Store, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// sqlTransaction adapts a *sql.Tx, plus the set of paths it has taken a
// row lock on, to the store.Transaction interface.
type sqlTransaction struct {
	ctx    context.Context
	tx     *sql.Tx
	locked map[string]bool
}

func (t *sqlTransaction) Get(ref store.DocRef) (store.Snapshot, error) {
	// SELECT ... FOR UPDATE takes the row lock (or a predicate lock on
	// the gap, for a not-yet-existing row) that makes a concurrent
	// transaction on the same document block until this one commits or
	// rolls back — PostgreSQL's analogue of the in-memory store's
	// version-conflict detection.
	var raw []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT data FROM claimengine_documents WHERE path = $1 FOR UPDATE`,
		ref.Path,
	).Scan(&raw)
	t.locked[ref.Path] = true

	if errors.Is(err, sql.ErrNoRows) {
		return &sqlSnapshot{ref: ref, exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", ref.Path, err)
	}
	return &sqlSnapshot{ref: ref, exists: true, data: raw}, nil
}

func (t *sqlTransaction) Set(ref store.DocRef, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("postgres: marshal %s: %w", ref.Path, err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO claimengine_documents (path, data) VALUES ($1, $2)
		 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data`,
		ref.Path, raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: set %s: %w", ref.Path, err)
	}
	return nil
}

func (t *sqlTransaction) Delete(ref store.DocRef) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM claimengine_documents WHERE path = $1`, ref.Path)
	if err != nil {
		return fmt.Errorf("postgres: delete %s: %w", ref.Path, err)
	}
	return nil
}

type sqlSnapshot struct {
	ref    store.DocRef
	exists bool
	data   []byte
}

func (s *sqlSnapshot) Ref() store.DocRef { return s.ref }
func (s *sqlSnapshot) Exists() bool      { return s.exists }
func (s *sqlSnapshot) DataTo(v interface{}) error {
	if !s.exists {
		return store.ErrNotFound
	}
	return json.Unmarshal(s.data, v)
}

// isSerializationFailure reports whether err is PostgreSQL's "could not
// serialize access due to concurrent update" class (SQLSTATE 40001), the
// only conflict RunTransaction retries on.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}

// RunTransaction implements store.TransactionalStore using a single
// SERIALIZABLE database/sql transaction per attempt: row locks taken by
// Get() make concurrent writers to the same document block or abort, and
// PostgreSQL reports the abort as a 40001 serialization failure, which is
// retried the same way store.MemoryStore retries a version conflict.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Transaction) error) error {
	for attempt := 0; attempt < store.MaxTransactionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("postgres: begin: %w", err)
		}

		txn := &sqlTransaction{ctx: ctx, tx: sqlTx, locked: make(map[string]bool)}
		fnErr := fn(ctx, txn)
		if fnErr != nil {
			_ = sqlTx.Rollback()
			if isSerializationFailure(fnErr) {
				metrics.StoreTransactionRetries.Inc()
				continue
			}
			return fnErr
		}

		commitErr := sqlTx.Commit()
		if commitErr == nil {
			return nil
		}
		if isSerializationFailure(commitErr) {
			metrics.StoreTransactionRetries.Inc()
			continue
		}
		return fmt.Errorf("postgres: commit: %w", commitErr)
	}
	return store.ErrConflict
}

// ListCollection implements store.TransactionalStore. It lists every
// document whose path is a direct child of collectionPath, outside any
// transaction, matching the in-memory store's own discovery semantics.
func (s *Store) ListCollection(ctx context.Context, collectionPath string) ([]store.DocRef, error) {
	prefix := collectionPath + "/"
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM claimengine_documents WHERE path LIKE $1 ORDER BY path`,
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", collectionPath, err)
	}
	defer rows.Close()

	var refs []store.DocRef
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("postgres: list %s: scan: %w", collectionPath, err)
		}
		rest := path[len(prefix):]
		direct := true
		for _, r := range rest {
			if r == '/' {
				direct = false
				break
			}
		}
		if !direct {
			continue
		}
		refs = append(refs, store.DocRef{Path: path})
	}
	return refs, rows.Err()
}
