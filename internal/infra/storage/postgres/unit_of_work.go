package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

var _ storage.Store = (*DB)(nil)

// UnitOfWork bundles all persistence operations of one custody operation into
// a single database transaction, ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	tx       *sqlx.Tx
	readOnly bool
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context, readOnly bool) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx, readOnly: readOnly}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// Atomic runs fn inside a read-write unit of work.
func (db *DB) Atomic(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return db.run(ctx, false, fn)
}

// View runs fn inside a read-only unit of work.
func (db *DB) View(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return db.run(ctx, true, fn)
}

func (db *DB) run(ctx context.Context, readOnly bool, fn func(context.Context, storage.Tx) error) error {
	uow, err := db.NewUnitOfWork(ctx, readOnly)
	if err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	if err := fn(ctx, uow); err != nil {
		metrics.DBTransactionsTotal.WithLabelValues("rollback").Inc()
		return err
	}
	if readOnly {
		return nil
	}
	if err := uow.Commit(); err != nil {
		metrics.DBTransactionsTotal.WithLabelValues("commit_failed").Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.DBTransactionsTotal.WithLabelValues("commit").Inc()
	return nil
}

func (u *UnitOfWork) writable() error {
	if u.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

// Lock takes a transaction-scoped advisory lock on key. It is released on
// commit or rollback.
func (u *UnitOfWork) Lock(ctx context.Context, key string) error {
	if _, err := u.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return nil
}

func (u *UnitOfWork) Wallets() storage.WalletRepository { return &WalletRepo{uow: u} }
func (u *UnitOfWork) Transactions() storage.TransactionRepository { return &TxRepo{uow: u} }
func (u *UnitOfWork) Guardians() storage.GuardianRepository { return &GuardianRepo{uow: u} }
func (u *UnitOfWork) Recoveries() storage.RecoveryRepository { return &RecoveryRepo{uow: u} }
func (u *UnitOfWork) Transfers() storage.TransferRepository { return &TransferRepo{uow: u} }
