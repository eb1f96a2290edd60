package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// Load reads owner's wallet inside tx, mapping a missing record to
// ErrWalletNotFound.
func Load(ctx context.Context, tx storage.Tx, owner domain.Principal) (*domain.WalletAccount, error) {
	w, err := tx.Wallets().Get(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	return w, err
}

// CheckFunds fails with ErrInvalidAmount when amount+fee exceeds
// domain.MaxAmount and with ErrInsufficientBalance unless w covers it.
func CheckFunds(w *domain.WalletAccount, amount, fee uint64) error {
	if amount > domain.MaxAmount || fee > domain.MaxAmount-amount {
		return fmt.Errorf("%w: %d+%d exceeds %d", domain.ErrInvalidAmount, amount, fee, domain.MaxAmount)
	}
	if debit := amount + fee; w.Balance < debit {
		return fmt.Errorf("%w: balance %d, need %d+%d", domain.ErrInsufficientBalance, w.Balance, amount, fee)
	}
	return nil
}

// Withdraw debits amount+fee from w, bumps the nonce and persists it. The
// caller holds the wallet lock.
func Withdraw(ctx context.Context, tx storage.Tx, w *domain.WalletAccount, amount, fee uint64) error {
	if err := CheckFunds(w, amount, fee); err != nil {
		return err
	}
	w.Balance -= amount + fee
	w.Nonce++
	return tx.Wallets().Update(ctx, w)
}
