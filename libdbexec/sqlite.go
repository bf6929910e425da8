package libdbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteDBManager struct {
	dbInstance *sql.DB
}

// NewSQLiteDBManager opens (or creates) the SQLite database at path and
// applies the schema. The parent directory is created if missing; pass
// ":memory:" for an ephemeral database in tests.
func NewSQLiteDBManager(ctx context.Context, path string, schema string) (DBManager, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, fmt.Errorf("sqlite parent dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", translateSQLiteError(err))
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite connection failed: %w", translateSQLiteError(err))
	}

	// SQLite does not enforce foreign keys unless asked.
	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite foreign_keys pragma failed: %w", translateSQLiteError(err))
	}

	if schema != "" {
		if _, err = db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize sqlite schema: %w", translateSQLiteError(err))
		}
	}
	return &sqliteDBManager{dbInstance: db}, nil
}

func (sm *sqliteDBManager) WithoutTransaction() Exec {
	return &txAwareDB{db: sm.dbInstance, errTranslate: translateSQLiteError}
}

func (sm *sqliteDBManager) WithTransaction(ctx context.Context, onRollback ...func()) (Exec, CommitTx, ReleaseTx, error) {
	tx, err := sm.dbInstance.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, func() error { return nil }, fmt.Errorf("%w: begin transaction failed: %w", ErrTxFailed, translateSQLiteError(err))
	}

	store := &txAwareDB{tx: tx, errTranslate: translateSQLiteError}
	committed := false

	commitFn := func(commitCtx context.Context) error {
		if ctxErr := commitCtx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: context error before commit: %w", ErrTxFailed, ctxErr)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit failed: %w", ErrTxFailed, translateSQLiteError(err))
		}
		committed = true
		return nil
	}

	releaseFn := func() error {
		rollbackErr := tx.Rollback()
		if !committed {
			for _, f := range onRollback {
				if f != nil {
					f()
				}
			}
		}
		// Rollback after a successful commit reports sql.ErrTxDone; that is
		// the normal deferred-release path, not a failure.
		if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			return fmt.Errorf("%w: rollback failed: %w", ErrTxFailed, translateSQLiteError(rollbackErr))
		}
		return nil
	}

	return store, commitFn, releaseFn, nil
}

func (sm *sqliteDBManager) Close() error {
	if sm.dbInstance != nil {
		return sm.dbInstance.Close()
	}
	return nil
}

// translateSQLiteError maps driver errors onto the package sentinels.
// modernc.org/sqlite reports constraint failures through the error text.
func translateSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryCanceled, err)
	}
	s := err.Error()
	switch {
	case strings.Contains(s, "UNIQUE constraint"):
		return ErrUniqueViolation
	case strings.Contains(s, "FOREIGN KEY constraint"):
		return ErrForeignKeyViolation
	case strings.Contains(s, "NOT NULL constraint"):
		return ErrNotNullViolation
	}
	return fmt.Errorf("libdb: sqlite error: %w", err)
}

// ensureParentDir creates the directory holding the database file. Memory
// databases and file: URIs with query strings are handled.
func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory") {
		return nil
	}
	fsPath := strings.TrimPrefix(path, "file:")
	if before, _, ok := strings.Cut(fsPath, "?"); ok {
		fsPath = before
	}
	dir := filepath.Dir(fsPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var _ DBManager = (*sqliteDBManager)(nil)
