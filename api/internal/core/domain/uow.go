package domain

import "context"

// Tx is an opaque transaction handle. The orchestrating service opens one
// per mutating operation and passes it into every store write so that the
// multi-row invariants (single latest pointer, one ledger row per pair)
// commit or roll back as a unit. Each storage backend asserts the handle
// back to its own concrete type.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWork mints transactions.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// RunInTx drives the begin/commit/rollback ceremony around fn. Rollback
// after a failed fn is best-effort; the original error wins.
func RunInTx(ctx context.Context, uow UnitOfWork, fn func(tx Tx) error) error {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
