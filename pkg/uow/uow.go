// Package uow provides the unit-of-work used by every multi-statement
// operation. A transaction opened here travels on the context; repositories
// resolve their executor through GetQuerier so that all statements of one
// operation commit or roll back together.
package uow

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/jmoiron/sqlx"
)

type ctxKey string

const txKey = ctxKey("fern-uow-tx")

// Querier is the subset of database.DB and database.Tx the repositories use
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

// Tx is a handle on the context transaction. Only the handle that opened the
// transaction commits or rolls it back; nested Begin calls get a non-owning
// handle whose Commit and Rollback are no-ops, so inner operations compose
// into the outer transaction.
type Tx struct {
	inner database.Tx
	owner bool
}

// Begin opens a transaction and binds it to the returned context, or joins
// the transaction already on the context.
func Begin(ctx context.Context, db database.DB, logger ectologger.Logger, opts *sql.TxOptions) (context.Context, *Tx, error) {
	if existing, ok := fromContext(ctx); ok && existing.inner.IsOpen() {
		return ctx, &Tx{inner: existing.inner, owner: false}, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, httperror.NewHTTPError(http.StatusInternalServerError, "transaction failure")
	}

	tx := &Tx{inner: database.NewTx(sqlxTx, logger), owner: true}
	return context.WithValue(ctx, txKey, tx), tx, nil
}

// Commit commits the transaction if this handle owns it
func (t *Tx) Commit(ctx context.Context) error {
	if !t.owner {
		return nil
	}
	return t.inner.Commit(ctx)
}

// Rollback rolls the transaction back if this handle owns it and the
// transaction was not already committed. Safe to defer unconditionally.
func (t *Tx) Rollback(ctx context.Context) error {
	if !t.owner {
		return nil
	}
	return t.inner.Rollback(ctx)
}

// GetQuerier returns the open context transaction when one is bound,
// otherwise the database handle itself.
func GetQuerier(ctx context.Context, db database.DB) Querier {
	if tx, ok := fromContext(ctx); ok && tx.inner.IsOpen() {
		return tx.inner
	}
	return db
}

func fromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey).(*Tx)
	return tx, ok && tx != nil
}
