package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record states. A record is created pending before the blob store write
// and committed once the object is durably stored.
const (
	StatePending   = "pending"
	StateCommitted = "committed"
)

var ErrRecordNotFound = errors.New("upload record not found")

// LedgerError wraps a metadata write failure.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *LedgerError) Unwrap() error { return e.Err }

// Record is one append-only upload ledger entry. Committed records are
// never updated or deleted.
type Record struct {
	ID          uuid.UUID
	Key         string
	ContentType string
	State       string
	CreatedAt   time.Time
}

// Ledger records metadata for every stored artifact.
type Ledger struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Connect opens a pgx pool against the given database URL.
func Connect(ctx context.Context, url string, maxConns int32, connTimeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.ConnConfig.ConnectTimeout = connTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	return pool, nil
}

// Begin inserts a pending record referencing the intended storage key,
// before the object itself is written.
func (l *Ledger) Begin(ctx context.Context, key, contentType string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx, `
		INSERT INTO uploads (id, storage_key, content_type, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, key, contentType, StatePending, time.Now().UTC())
	if err != nil {
		return uuid.Nil, &LedgerError{Op: "begin", Err: err}
	}
	return id, nil
}

// Commit marks a pending record committed after a successful store.
func (l *Ledger) Commit(ctx context.Context, id uuid.UUID) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE uploads SET state = $1 WHERE id = $2 AND state = $3
	`, StateCommitted, id, StatePending)
	if err != nil {
		return &LedgerError{Op: "commit", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &LedgerError{Op: "commit", Err: ErrRecordNotFound}
	}
	return nil
}

// Recent returns the newest committed records.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, storage_key, content_type, state, created_at
		FROM uploads
		WHERE state = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, StateCommitted, limit)
	if err != nil {
		return nil, &LedgerError{Op: "recent", Err: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Key, &r.ContentType, &r.State, &r.CreatedAt); err != nil {
			return nil, &LedgerError{Op: "recent", Err: err}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &LedgerError{Op: "recent", Err: err}
	}
	return records, nil
}

// ReconcileOrphans removes pending records older than maxAge. A pending
// record that old means the store-then-commit sequence died in between;
// the remote object, if it exists, is orphaned cleanup debt.
func (l *Ledger) ReconcileOrphans(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	tag, err := l.pool.Exec(ctx, `
		DELETE FROM uploads WHERE state = $1 AND created_at < $2
	`, StatePending, cutoff)
	if err != nil {
		return 0, &LedgerError{Op: "reconcile", Err: err}
	}
	return tag.RowsAffected(), nil
}
