// Package libdbexec wraps database/sql with a small manager/executor split:
// a DBManager owns the connection pool, an Exec runs statements either on
// the pool or inside a transaction. The chat store builds on it.
package libdbexec

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrNotFound            = errors.New("libdb: not found")
	ErrTxFailed            = errors.New("libdb: transaction failed")
	ErrQueryCanceled       = errors.New("libdb: query canceled")
	ErrUniqueViolation     = errors.New("libdb: unique constraint violation")
	ErrForeignKeyViolation = errors.New("libdb: foreign key constraint violation")
	ErrNotNullViolation    = errors.New("libdb: not null constraint violation")
	ErrMaxRowsReached      = errors.New("libdb: max rows reached")
)

// Exec runs SQL statements. Implementations are either pool-backed or bound
// to one transaction.
type Exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CommitTx commits a transaction started with WithTransaction.
type CommitTx func(ctx context.Context) error

// ReleaseTx rolls the transaction back unless it was committed. Safe to
// defer alongside CommitTx.
type ReleaseTx func() error

// DBManager owns a database connection pool.
type DBManager interface {
	WithoutTransaction() Exec
	WithTransaction(ctx context.Context, onRollback ...func()) (Exec, CommitTx, ReleaseTx, error)
	Close() error
}

// txAwareDB dispatches to either the pool or the bound transaction.
type txAwareDB struct {
	db           *sql.DB
	tx           *sql.Tx
	errTranslate func(error) error
}

func (t *txAwareDB) translate(err error) error {
	if err == nil {
		return nil
	}
	if t.errTranslate != nil {
		return t.errTranslate(err)
	}
	return err
}

func (t *txAwareDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.tx != nil {
		res, err := t.tx.ExecContext(ctx, query, args...)
		return res, t.translate(err)
	}
	res, err := t.db.ExecContext(ctx, query, args...)
	return res, t.translate(err)
}

func (t *txAwareDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if t.tx != nil {
		rows, err := t.tx.QueryContext(ctx, query, args...)
		return rows, t.translate(err)
	}
	rows, err := t.db.QueryContext(ctx, query, args...)
	return rows, t.translate(err)
}

func (t *txAwareDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if t.tx != nil {
		return t.tx.QueryRowContext(ctx, query, args...)
	}
	return t.db.QueryRowContext(ctx, query, args...)
}

var _ Exec = (*txAwareDB)(nil)
