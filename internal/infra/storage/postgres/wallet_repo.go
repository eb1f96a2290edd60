package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	uow *UnitOfWork
}

type walletRow struct {
	Owner             string `db:"owner"`
	Balance           int64  `db:"balance"`
	Nonce             int64  `db:"nonce"`
	ApprovalThreshold int    `db:"approval_threshold"`
	CreatedAt         int64  `db:"created_at"`
}

// Get retrieves a wallet by owner.
func (r *WalletRepo) Get(ctx context.Context, owner domain.Principal) (*domain.WalletAccount, error) {
	var row walletRow
	err := r.uow.tx.GetContext(ctx, &row, `
		SELECT owner, balance, nonce, approval_threshold, created_at
		FROM wallets WHERE owner = $1`, string(owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &domain.WalletAccount{
		Owner:             domain.Principal(row.Owner),
		Balance:           uint64(row.Balance),
		Nonce:             uint64(row.Nonce),
		ApprovalThreshold: row.ApprovalThreshold,
		CreatedAt:         uint64(row.CreatedAt),
	}, nil
}

// Create inserts a new wallet.
func (r *WalletRepo) Create(ctx context.Context, w *domain.WalletAccount) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	_, err := r.uow.tx.ExecContext(ctx, `
		INSERT INTO wallets (owner, balance, nonce, approval_threshold, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(w.Owner), int64(w.Balance), int64(w.Nonce), w.ApprovalThreshold, int64(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// Update overwrites balance, nonce and threshold.
func (r *WalletRepo) Update(ctx context.Context, w *domain.WalletAccount) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	res, err := r.uow.tx.ExecContext(ctx, `
		UPDATE wallets SET balance = $2, nonce = $3, approval_threshold = $4
		WHERE owner = $1`,
		string(w.Owner), int64(w.Balance), int64(w.Nonce), w.ApprovalThreshold,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
