package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bazaar/api/internal/core/domain"
)

// uniqueViolation is the SQLSTATE Postgres reports for duplicate keys.
const uniqueViolation = "23505"

// UnitOfWork mints pgx transactions behind the domain.UnitOfWork
// contract. Every multi-row invariant (latest pointer, ledger row reuse)
// rides on one of these.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

func (u *UnitOfWork) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// txFrom unwraps the opaque handle back into a pgx transaction. A foreign
// handle here means two storage backends were mixed in one operation.
func txFrom(tx domain.Tx) (pgx.Tx, error) {
	wrapper, ok := tx.(*pgxTx)
	if !ok {
		return nil, errors.New("transaction does not belong to the postgres store")
	}
	return wrapper.tx, nil
}

// isUniqueViolation reports whether err is a duplicate-key failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
