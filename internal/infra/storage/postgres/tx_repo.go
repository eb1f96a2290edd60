package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	uow *UnitOfWork
}

type pendingTxRow struct {
	ID          int64  `db:"id"`
	FromOwner   string `db:"from_owner"`
	ToPrincipal string `db:"to_principal"`
	Amount      int64  `db:"amount"`
	Fee         int64  `db:"fee"`
	CreatedAt   int64  `db:"created_at"`
	Executed    bool   `db:"executed"`
	ExecutedAt  int64  `db:"executed_at"`
}

// NextID allocates the next id from the counters table. The row lock is held
// until the transaction ends, so aborted allocations are not consumed.
func (r *TxRepo) NextID(ctx context.Context) (domain.TxID, error) {
	if err := r.uow.writable(); err != nil {
		return 0, err
	}
	var next int64
	err := r.uow.tx.GetContext(ctx, &next, `
		UPDATE counters SET value = value + 1
		WHERE name = 'pending_tx'
		RETURNING value - 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate transaction id: %w", err)
	}
	return domain.TxID(next), nil
}

// Get retrieves a transaction and its approvals.
func (r *TxRepo) Get(ctx context.Context, id domain.TxID) (*domain.PendingTransaction, error) {
	var row pendingTxRow
	err := r.uow.tx.GetContext(ctx, &row, `
		SELECT id, from_owner, to_principal, amount, fee, created_at, executed, executed_at
		FROM pending_transactions WHERE id = $1`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	var credentials []string
	err = r.uow.tx.SelectContext(ctx, &credentials, `
		SELECT credential FROM transaction_approvals
		WHERE tx_id = $1 ORDER BY position`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get approvals: %w", err)
	}

	t := &domain.PendingTransaction{
		ID:         domain.TxID(row.ID),
		From:       domain.Principal(row.FromOwner),
		To:         domain.Principal(row.ToPrincipal),
		Amount:     uint64(row.Amount),
		Fee:        uint64(row.Fee),
		CreatedAt:  uint64(row.CreatedAt),
		Executed:   row.Executed,
		ExecutedAt: uint64(row.ExecutedAt),
	}
	for _, c := range credentials {
		t.Approvals.Add(domain.CredentialID(c))
	}
	return t, nil
}

// Save upserts the transaction. Approvals only ever grow, so existing rows
// are left in place.
func (r *TxRepo) Save(ctx context.Context, t *domain.PendingTransaction) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	_, err := r.uow.tx.ExecContext(ctx, `
		INSERT INTO pending_transactions (
			id, from_owner, to_principal, amount, fee, created_at, executed, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			executed = EXCLUDED.executed,
			executed_at = EXCLUDED.executed_at`,
		int64(t.ID), string(t.From), string(t.To), int64(t.Amount), int64(t.Fee),
		int64(t.CreatedAt), t.Executed, int64(t.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	for i, c := range t.Approvals.Items() {
		_, err := r.uow.tx.ExecContext(ctx, `
			INSERT INTO transaction_approvals (tx_id, credential, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (tx_id, credential) DO NOTHING`,
			int64(t.ID), string(c), i,
		)
		if err != nil {
			return fmt.Errorf("failed to save approval: %w", err)
		}
	}
	return nil
}
