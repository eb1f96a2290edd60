// Package fee settles protocol fees into the outbox.
//
// The registration fee is charged when a wallet is initialized and is paid
// from the owner's external funds, so the wallet balance is not touched. The
// transfer fee is snapshotted on a pending transaction at creation and
// debited from the wallet together with the amount at execution.
package fee

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

// Config holds the fixed fees and the treasury that receives them.
type Config struct {
	Registration uint64           `yaml:"registration"`
	Transfer     uint64           `yaml:"transfer"`
	Treasury     domain.Principal `yaml:"treasury"`
}

// Settlement records fee and withdrawal transfers.
type Settlement struct {
	cfg   Config
	store storage.Store
}

// NewSettlement validates cfg. A non-zero fee needs a treasury.
func NewSettlement(store storage.Store, cfg Config) (*Settlement, error) {
	if cfg.Registration > domain.MaxAmount || cfg.Transfer > domain.MaxAmount {
		return nil, fmt.Errorf("%w: registration=%d transfer=%d",
			domain.ErrInvalidAmount, cfg.Registration, cfg.Transfer)
	}
	if (cfg.Registration > 0 || cfg.Transfer > 0) && cfg.Treasury == "" {
		return nil, fmt.Errorf("%w: registration=%d transfer=%d",
			domain.ErrTreasuryNotConfigured, cfg.Registration, cfg.Transfer)
	}
	return &Settlement{cfg: cfg, store: store}, nil
}

func (s *Settlement) RegistrationFee() uint64 { return s.cfg.Registration }

func (s *Settlement) TransferFee() uint64 { return s.cfg.Transfer }

func (s *Settlement) Treasury() domain.Principal { return s.cfg.Treasury }

// ChargeRegistration appends the registration fee for owner. It returns the
// fee charged, 0 when the fee model is inactive.
func (s *Settlement) ChargeRegistration(ctx context.Context, tx storage.Tx, owner domain.Principal, now uint64) (uint64, error) {
	if s.cfg.Registration == 0 {
		return 0, nil
	}
	err := s.append(ctx, tx, &domain.Transfer{
		Kind:      domain.TransferKindRegistrationFee,
		From:      owner,
		To:        s.cfg.Treasury,
		Amount:    s.cfg.Registration,
		Reference: string(owner),
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}
	return s.cfg.Registration, nil
}

// SettleWithdrawal appends the withdrawal of pt and, when pt carries a fee,
// the matching fee transfer to the treasury.
func (s *Settlement) SettleWithdrawal(ctx context.Context, tx storage.Tx, pt *domain.PendingTransaction, now uint64) error {
	ref := strconv.FormatUint(uint64(pt.ID), 10)
	err := s.append(ctx, tx, &domain.Transfer{
		Kind:      domain.TransferKindWithdrawal,
		From:      pt.From,
		To:        pt.To,
		Amount:    pt.Amount,
		Reference: ref,
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	if pt.Fee == 0 {
		return nil
	}
	if s.cfg.Treasury == "" {
		return domain.ErrTreasuryNotConfigured
	}
	return s.append(ctx, tx, &domain.Transfer{
		Kind:      domain.TransferKindTransferFee,
		From:      pt.From,
		To:        s.cfg.Treasury,
		Amount:    pt.Fee,
		Reference: ref,
		CreatedAt: now,
	})
}

func (s *Settlement) append(ctx context.Context, tx storage.Tx, t *domain.Transfer) error {
	if err := tx.Transfers().Append(ctx, t); err != nil {
		return fmt.Errorf("append %s transfer: %w", t.Kind, err)
	}
	metrics.TransfersRecorded.WithLabelValues(string(t.Kind)).Add(float64(t.Amount))
	return nil
}

// Collected totals the fees recorded to the treasury.
func (s *Settlement) Collected(ctx context.Context) (uint64, error) {
	if s.cfg.Treasury == "" {
		return 0, nil
	}
	var total uint64
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		total, err = tx.Transfers().SumTo(ctx, s.cfg.Treasury,
			domain.TransferKindRegistrationFee, domain.TransferKindTransferFee)
		return err
	})
	if err != nil {
		return 0, domain.Internal(err)
	}
	return total, nil
}
