package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
)

// postgres unique_violation
const uniqueViolation = "23505"

type txKey struct{}

// DB runs the repositories against postgres. A transaction started by InTx travels in the context.
type DB struct {
	db *sqlx.DB
}

var _ core.Transactor = (*DB)(nil)

func New(db *sqlx.DB) *DB {
	return &DB{db: db}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// getExec returns the transaction carried by ctx, or the pool.
func (d *DB) getExec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return d.db
}

// uniqueConstraint returns the name of the violated unique constraint, if err is one.
func uniqueConstraint(err error) (string, bool) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
