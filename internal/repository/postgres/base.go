package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

const uniqueViolation = "23505"

// BaseRepository provides common functionality for all repositories. db is
// either the pool or an open transaction, so the same queries run in both.
type BaseRepository struct {
	db      sqlx.ExtContext
	timeout time.Duration
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db sqlx.ExtContext, timeout time.Duration) BaseRepository {
	return BaseRepository{db: db, timeout: timeout}
}

func (r *BaseRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *BaseRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return sqlx.GetContext(ctx, r.db, dest, query, args...)
}

func (r *BaseRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return sqlx.SelectContext(ctx, r.db, dest, query, args...)
}

// exec runs a statement and returns the affected row count.
func (r *BaseRepository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// storageErr maps driver errors onto the application taxonomy.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if isUniqueViolation(err) {
		return apperrors.Conflict("record already exists")
	}
	return apperrors.Storage(op, err)
}

// withTx executes a function within a transaction
func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Storage("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage("commit transaction", err)
	}
	return nil
}
