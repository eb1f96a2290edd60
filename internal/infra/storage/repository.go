package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
)

var (
	// ErrNotFound is returned when a point lookup finds no record
	ErrNotFound = errors.New("record not found")

	// ErrReadOnly is returned when a write is attempted inside View
	ErrReadOnly = errors.New("write attempted in read-only transaction")
)

// Store runs units of work against the custody data model.
type Store interface {
	// Atomic runs fn in a single transaction. Writes are committed only when
	// fn returns nil; any error discards every write made by fn.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn against committed state. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Health checks the backend is reachable
	Health(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	// Lock serializes writers on key until the transaction ends
	Lock(ctx context.Context, key string) error

	Wallets() WalletRepository
	Transactions() TransactionRepository
	Guardians() GuardianRepository
	Recoveries() RecoveryRepository
	Transfers() TransferRepository
}

// WalletRepository handles wallet account records
type WalletRepository interface {
	// Get retrieves a wallet by owner, ErrNotFound if absent
	Get(ctx context.Context, owner domain.Principal) (*domain.WalletAccount, error)

	// Create inserts a new wallet
	Create(ctx context.Context, w *domain.WalletAccount) error

	// Update overwrites balance, nonce and threshold
	Update(ctx context.Context, w *domain.WalletAccount) error
}

// TransactionRepository handles pending transactions
type TransactionRepository interface {
	// NextID allocates the next transaction id (0, 1, 2, ...)
	NextID(ctx context.Context) (domain.TxID, error)

	// Get retrieves a transaction by id, ErrNotFound if absent
	Get(ctx context.Context, id domain.TxID) (*domain.PendingTransaction, error)

	// Save inserts or replaces a transaction together with its approvals
	Save(ctx context.Context, t *domain.PendingTransaction) error
}

// GuardianRepository handles guardian records and per-owner config
type GuardianRepository interface {
	// Get retrieves a guardian record, ErrNotFound if absent
	Get(ctx context.Context, owner, guardian domain.Principal) (*domain.Guardian, error)

	// Save upserts a guardian record
	Save(ctx context.Context, g *domain.Guardian) error

	// GetConfig retrieves the guardian config, ErrNotFound if absent
	GetConfig(ctx context.Context, owner domain.Principal) (*domain.GuardianConfig, error)

	// SaveConfig upserts the guardian config
	SaveConfig(ctx context.Context, cfg *domain.GuardianConfig) error
}

// RecoveryRepository handles the latest recovery request per owner
type RecoveryRepository interface {
	// Get retrieves the latest request, ErrNotFound if none was ever made
	Get(ctx context.Context, owner domain.Principal) (*domain.RecoveryRequest, error)

	// Save upserts the request, replacing any earlier one for the owner
	Save(ctx context.Context, r *domain.RecoveryRequest) error
}

// TransferRepository is the settlement outbox
type TransferRepository interface {
	// Append stores a transfer and assigns its Seq
	Append(ctx context.Context, t *domain.Transfer) error

	// ListAfter returns up to limit transfers with Seq > after, ordered by Seq
	ListAfter(ctx context.Context, after uint64, limit int) ([]*domain.Transfer, error)

	// SumTo totals transfers paid to a principal, optionally filtered by kind
	SumTo(ctx context.Context, to domain.Principal, kinds ...domain.TransferKind) (uint64, error)
}

// WalletKey is the writer lock key for an owner's wallet.
func WalletKey(owner domain.Principal) string {
	return fmt.Sprintf("wallet:%s", owner)
}

// TxKey is the writer lock key for a pending transaction.
func TxKey(id domain.TxID) string {
	return fmt.Sprintf("tx:%d", id)
}

// GuardianKey is the writer lock key for an owner's guardians and recovery.
func GuardianKey(owner domain.Principal) string {
	return fmt.Sprintf("guardians:%s", owner)
}
