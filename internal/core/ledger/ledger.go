// Package ledger owns pending transactions and drives the transfer approval
// state machine: created, partially approved, executed. A transaction is
// never rejected or expired; an abandoned one stays approvable.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vietddude/custody/internal/core/clock"
	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/emitter"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/core/wallet"
	"github.com/vietddude/custody/internal/identity"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

// Ledger manages withdrawals awaiting approval.
type Ledger struct {
	store    storage.Store
	identity identity.Registry
	fees     *fee.Settlement
	clock    clock.Clock
	events   emitter.Emitter
	policy   domain.Policy
}

func NewLedger(
	store storage.Store,
	registry identity.Registry,
	fees *fee.Settlement,
	clk clock.Clock,
	events emitter.Emitter,
	policy domain.Policy,
) *Ledger {
	return &Ledger{
		store:    store,
		identity: registry,
		fees:     fees,
		clock:    clk,
		events:   events,
		policy:   policy,
	}
}

// CreateWithdrawal opens a transfer of amount from owner to recipient,
// approved by credential. The current transfer fee is fixed on the
// transaction and must be covered by the balance together with amount.
func (l *Ledger) CreateWithdrawal(
	ctx context.Context,
	owner, to domain.Principal,
	amount uint64,
	credential domain.CredentialID,
) (id domain.TxID, err error) {
	defer metrics.RecordOperation("ledger.create_withdrawal", time.Now(), &err)

	txFee := l.fees.TransferFee()
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}
	if amount > domain.MaxAmount || txFee > domain.MaxAmount-amount {
		return 0, fmt.Errorf("%w: %d+%d exceeds %d", domain.ErrInvalidAmount, amount, txFee, domain.MaxAmount)
	}
	if to == "" {
		return 0, domain.ErrInvalidRecipient
	}

	now := l.clock.Now()
	var marked bool
	err = l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.WalletKey(owner)); err != nil {
			return err
		}
		w, err := wallet.Load(ctx, tx, owner)
		if err != nil {
			return err
		}
		if err := wallet.CheckFunds(w, amount, txFee); err != nil {
			return err
		}
		if err := identity.Verify(ctx, l.identity, owner, credential); err != nil {
			return err
		}

		id, err = tx.Transactions().NextID(ctx)
		if err != nil {
			return err
		}
		pt := &domain.PendingTransaction{
			ID:        id,
			From:      owner,
			To:        to,
			Amount:    amount,
			Fee:       txFee,
			Approvals: domain.NewSet(credential),
			CreatedAt: now,
		}
		if err := tx.Transactions().Save(ctx, pt); err != nil {
			return err
		}
		// The identity service is outside this transaction; a use recorded
		// here stays recorded if the commit fails.
		if err := identity.MarkUsed(ctx, l.identity, credential); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		if marked {
			orphanedUse("ledger.create_withdrawal", credential, err)
		}
		return 0, domain.Internal(err)
	}

	slog.Info("Withdrawal created",
		"id", id,
		"owner", owner,
		"to", to,
		"amount", amount,
		"fee", txFee,
	)

	ev := emitter.NewEvent(domain.EventTypeWithdrawalCreated, owner, now)
	ev.Amount = amount
	ev.Keys["tx_id"] = strconv.FormatUint(uint64(id), 10)
	ev.Keys["to"] = string(to)
	emitter.Publish(ctx, l.events, ev)
	return id, nil
}

// ApproveTransaction adds credential to the approvals of id and returns the
// new approval count. Credentials are checked against the transaction's
// owner and may approve once.
func (l *Ledger) ApproveTransaction(ctx context.Context, id domain.TxID, credential domain.CredentialID) (approvals int, err error) {
	defer metrics.RecordOperation("ledger.approve", time.Now(), &err)

	now := l.clock.Now()
	var owner domain.Principal
	var marked bool
	err = l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.TxKey(id)); err != nil {
			return err
		}
		pt, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		if pt.Executed {
			return domain.ErrAlreadyExecuted
		}
		owner = pt.From

		if err := identity.Verify(ctx, l.identity, pt.From, credential); err != nil {
			return err
		}
		if pt.Approvals.Contains(credential) {
			return domain.ErrDuplicateApproval
		}
		if pt.Approvals.Len() >= l.policy.MaxApprovals {
			return domain.ErrMaxApprovalsReached
		}

		pt.Approvals.Add(credential)
		approvals = pt.Approvals.Len()
		if err := tx.Transactions().Save(ctx, pt); err != nil {
			return err
		}
		if err := identity.MarkUsed(ctx, l.identity, credential); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		if marked {
			orphanedUse("ledger.approve", credential, err)
		}
		return 0, domain.Internal(err)
	}

	slog.Info("Withdrawal approved", "id", id, "owner", owner, "approvals", approvals)

	ev := emitter.NewEvent(domain.EventTypeWithdrawalApproved, owner, now)
	ev.Keys["tx_id"] = strconv.FormatUint(uint64(id), 10)
	ev.Keys["approvals"] = strconv.Itoa(approvals)
	emitter.Publish(ctx, l.events, ev)
	return approvals, nil
}

// ExecuteTransaction debits amount+fee from the owner's wallet, records the
// settlement transfers and marks id executed. Quorum is evaluated against the
// wallet threshold at call time.
func (l *Ledger) ExecuteTransaction(ctx context.Context, id domain.TxID) (executed *domain.PendingTransaction, err error) {
	defer metrics.RecordOperation("ledger.execute", time.Now(), &err)

	now := l.clock.Now()
	err = l.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.TxKey(id)); err != nil {
			return err
		}
		pt, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		if pt.Executed {
			return domain.ErrAlreadyExecuted
		}

		if err := tx.Lock(ctx, storage.WalletKey(pt.From)); err != nil {
			return err
		}
		w, err := wallet.Load(ctx, tx, pt.From)
		if err != nil {
			return err
		}
		if pt.Approvals.Len() < w.ApprovalThreshold {
			return fmt.Errorf("%w: %d of %d", domain.ErrThresholdNotMet, pt.Approvals.Len(), w.ApprovalThreshold)
		}
		if err := wallet.Withdraw(ctx, tx, w, pt.Amount, pt.Fee); err != nil {
			return err
		}

		pt.Executed = true
		pt.ExecutedAt = now
		if err := tx.Transactions().Save(ctx, pt); err != nil {
			return err
		}
		if err := l.fees.SettleWithdrawal(ctx, tx, pt, now); err != nil {
			return err
		}
		executed = pt
		return nil
	})
	if err != nil {
		return nil, domain.Internal(err)
	}

	slog.Info("Withdrawal executed",
		"id", id,
		"owner", executed.From,
		"to", executed.To,
		"amount", executed.Amount,
		"fee", executed.Fee,
	)

	ev := emitter.NewEvent(domain.EventTypeWithdrawalExecuted, executed.From, now)
	ev.Amount = executed.Amount
	ev.Keys["tx_id"] = strconv.FormatUint(uint64(id), 10)
	ev.Keys["to"] = string(executed.To)
	events := []*domain.Event{ev}
	if executed.Fee > 0 {
		fe := emitter.NewEvent(domain.EventTypeFeeCharged, executed.From, now)
		fe.Amount = executed.Fee
		fe.Keys["kind"] = string(domain.TransferKindTransferFee)
		fe.Keys["tx_id"] = ev.Keys["tx_id"]
		events = append(events, fe)
	}
	emitter.Publish(ctx, l.events, events...)
	return executed, nil
}

// Get returns the pending transaction id.
func (l *Ledger) Get(ctx context.Context, id domain.TxID) (*domain.PendingTransaction, error) {
	var pt *domain.PendingTransaction
	err := l.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		pt, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, domain.Internal(err)
	}
	return pt, nil
}

func load(ctx context.Context, tx storage.Tx, id domain.TxID) (*domain.PendingTransaction, error) {
	pt, err := tx.Transactions().Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	return pt, err
}

// orphanedUse reports a credential use the identity service recorded for an
// operation whose store transaction did not commit.
func orphanedUse(op string, credential domain.CredentialID, err error) {
	slog.Warn("Credential use recorded for rolled back operation",
		"op", op,
		"credential", credential,
		"error", err,
	)
	metrics.CredentialUseOrphaned.WithLabelValues(op).Inc()
}
