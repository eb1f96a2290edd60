package wallet

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
	"github.com/vietddude/custody/internal/identity"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

// Service owns wallet account records.
type Service struct {
	store    storage.Store
	identity identity.Registry
	fees     *fee.Settlement
	clock    clock.Clock
	events   emitter.Emitter
	policy   domain.Policy
}

// NewService creates a wallet service.
func NewService(
	store storage.Store,
	registry identity.Registry,
	fees *fee.Settlement,
	clk clock.Clock,
	events emitter.Emitter,
	policy domain.Policy,
) *Service {
	return &Service{
		store:    store,
		identity: registry,
		fees:     fees,
		clock:    clk,
		events:   events,
		policy:   policy,
	}
}

// Initialize creates owner's wallet with balance 0 and charges the
// registration fee in the same commit.
func (s *Service) Initialize(ctx context.Context, owner domain.Principal, threshold int) (err error) {
	defer metrics.RecordOperation("wallet.initialize", time.Now(), &err)

	if owner == "" {
		return domain.ErrNotAuthorized
	}
	if threshold < 1 || threshold > s.policy.MaxThreshold {
		return fmt.Errorf("%w: %d not in [1, %d]", domain.ErrInvalidThreshold, threshold, s.policy.MaxThreshold)
	}

	now := s.clock.Now()
	var charged uint64
	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.WalletKey(owner)); err != nil {
			return err
		}
		_, err := tx.Wallets().Get(ctx, owner)
		if err == nil {
			return domain.ErrWalletExists
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		w := &domain.WalletAccount{
			Owner:             owner,
			ApprovalThreshold: threshold,
			CreatedAt:         now,
		}
		if err := tx.Wallets().Create(ctx, w); err != nil {
			return err
		}

		charged, err = s.fees.ChargeRegistration(ctx, tx, owner, now)
		return err
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Wallet initialized", "owner", owner, "threshold", threshold, "fee", charged)

	ev := emitter.NewEvent(domain.EventTypeWalletInitialized, owner, now)
	ev.Keys["threshold"] = strconv.Itoa(threshold)
	events := []*domain.Event{ev}
	if charged > 0 {
		fe := emitter.NewEvent(domain.EventTypeFeeCharged, owner, now)
		fe.Amount = charged
		fe.Keys["kind"] = string(domain.TransferKindRegistrationFee)
		fe.Keys["treasury"] = string(s.fees.Treasury())
		events = append(events, fe)
	}
	emitter.Publish(ctx, s.events, events...)
	return nil
}

// Deposit credits amount to owner's wallet.
func (s *Service) Deposit(ctx context.Context, owner domain.Principal, amount uint64) (err error) {
	defer metrics.RecordOperation("wallet.deposit", time.Now(), &err)

	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	if amount > domain.MaxAmount {
		return fmt.Errorf("%w: %d exceeds %d", domain.ErrInvalidAmount, amount, domain.MaxAmount)
	}

	now := s.clock.Now()
	var balance uint64
	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.WalletKey(owner)); err != nil {
			return err
		}
		w, err := Load(ctx, tx, owner)
		if err != nil {
			return err
		}
		if w.Balance > domain.MaxAmount-amount {
			return fmt.Errorf("%w: balance overflow", domain.ErrInvalidAmount)
		}
		w.Balance += amount
		balance = w.Balance
		return tx.Wallets().Update(ctx, w)
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Deposit credited", "owner", owner, "amount", amount, "balance", balance)

	ev := emitter.NewEvent(domain.EventTypeDeposit, owner, now)
	ev.Amount = amount
	emitter.Publish(ctx, s.events, ev)
	return nil
}

// SetThreshold updates the approval threshold. The bound is the number of
// valid credentials the owner holds, capped by the policy maximum.
func (s *Service) SetThreshold(ctx context.Context, owner domain.Principal, threshold int) (err error) {
	defer metrics.RecordOperation("wallet.set_threshold", time.Now(), &err)

	if threshold < 1 {
		return fmt.Errorf("%w: %d < 1", domain.ErrInvalidThreshold, threshold)
	}

	now := s.clock.Now()
	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.WalletKey(owner)); err != nil {
			return err
		}
		w, err := Load(ctx, tx, owner)
		if err != nil {
			return err
		}

		limit, err := identity.Count(ctx, s.identity, owner)
		if err != nil {
			return err
		}
		limit = min(limit, s.policy.MaxThreshold)
		if threshold > limit {
			return fmt.Errorf("%w: %d > %d", domain.ErrInvalidThreshold, threshold, limit)
		}

		w.ApprovalThreshold = threshold
		return tx.Wallets().Update(ctx, w)
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Wallet threshold updated", "owner", owner, "threshold", threshold)

	ev := emitter.NewEvent(domain.EventTypeThresholdUpdated, owner, now)
	ev.Keys["threshold"] = strconv.Itoa(threshold)
	emitter.Publish(ctx, s.events, ev)
	return nil
}

// GetBalance returns owner's balance, 0 when no wallet exists. Only storage
// failures are returned as errors.
func (s *Service) GetBalance(ctx context.Context, owner domain.Principal) (uint64, error) {
	w, err := s.Get(ctx, owner)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// Get returns owner's wallet record.
func (s *Service) Get(ctx context.Context, owner domain.Principal) (*domain.WalletAccount, error) {
	var w *domain.WalletAccount
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		w, err = Load(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, domain.Internal(err)
	}
	return w, nil
}
