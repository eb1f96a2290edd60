package guardian

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
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

// Registry owns guardian records and per-owner guardian config.
type Registry struct {
	store  storage.Store
	clock  clock.Clock
	events emitter.Emitter
	policy domain.Policy
}

func NewRegistry(store storage.Store, clk clock.Clock, events emitter.Emitter, policy domain.Policy) *Registry {
	return &Registry{
		store:  store,
		clock:  clk,
		events: events,
		policy: policy,
	}
}

// AddGuardian makes guardian an active guardian of owner. A removed guardian
// is re-activated in place. The first guardian sets the threshold to 1.
func (r *Registry) AddGuardian(ctx context.Context, owner, guardian domain.Principal) (err error) {
	defer metrics.RecordOperation("guardian.add", time.Now(), &err)

	if owner == "" {
		return domain.ErrNotAuthorized
	}
	if guardian == "" {
		return domain.ErrGuardianNotFound
	}
	if guardian == owner {
		return domain.ErrSelfGuardian
	}

	now := r.clock.Now()
	var total int
	err = r.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		cfg, err := LoadConfig(ctx, tx, owner)
		if err != nil {
			return err
		}
		// A re-added guardian keeps its original AddedAt.
		record := &domain.Guardian{Owner: owner, Guardian: guardian, AddedAt: now, IsActive: true}
		prev, err := tx.Guardians().Get(ctx, owner, guardian)
		switch {
		case err == nil:
			if prev.IsActive {
				return domain.ErrAlreadyGuardian
			}
			record.AddedAt = prev.AddedAt
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
		if cfg.TotalGuardians >= r.policy.MaxGuardians {
			return fmt.Errorf("%w: %d active", domain.ErrMaxGuardiansReached, cfg.TotalGuardians)
		}
		if !cfg.GuardianList.Contains(guardian) && cfg.GuardianList.Len() >= r.policy.GuardianListCapacity() {
			return fmt.Errorf("%w: guardian list full", domain.ErrMaxGuardiansReached)
		}

		if err := tx.Guardians().Save(ctx, record); err != nil {
			return err
		}

		cfg.GuardianList.Add(guardian)
		cfg.TotalGuardians++
		if cfg.GuardianThreshold == 0 {
			cfg.GuardianThreshold = 1
		}
		total = cfg.TotalGuardians
		return tx.Guardians().SaveConfig(ctx, cfg)
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Guardian added", "owner", owner, "guardian", guardian, "total", total)

	ev := emitter.NewEvent(domain.EventTypeGuardianAdded, owner, now)
	ev.Keys["guardian"] = string(guardian)
	emitter.Publish(ctx, r.events, ev)
	return nil
}

// RemoveGuardian deactivates guardian. The guardian list keeps the entry and
// the threshold is lowered to the remaining total when it would exceed it.
func (r *Registry) RemoveGuardian(ctx context.Context, owner, guardian domain.Principal) (err error) {
	defer metrics.RecordOperation("guardian.remove", time.Now(), &err)

	now := r.clock.Now()
	var cfg *domain.GuardianConfig
	err = r.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		g, err := tx.Guardians().Get(ctx, owner, guardian)
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrGuardianNotFound
		}
		if err != nil {
			return err
		}
		if !g.IsActive {
			return domain.ErrGuardianNotFound
		}

		g.IsActive = false
		if err := tx.Guardians().Save(ctx, g); err != nil {
			return err
		}

		cfg, err = LoadConfig(ctx, tx, owner)
		if err != nil {
			return err
		}
		cfg.TotalGuardians--
		if cfg.GuardianThreshold > cfg.TotalGuardians {
			cfg.GuardianThreshold = cfg.TotalGuardians
		}
		return tx.Guardians().SaveConfig(ctx, cfg)
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Guardian removed",
		"owner", owner,
		"guardian", guardian,
		"total", cfg.TotalGuardians,
		"threshold", cfg.GuardianThreshold,
	)

	ev := emitter.NewEvent(domain.EventTypeGuardianRemoved, owner, now)
	ev.Keys["guardian"] = string(guardian)
	emitter.Publish(ctx, r.events, ev)
	return nil
}

// SetGuardianThreshold sets the recovery quorum, 1 ≤ threshold ≤ total.
func (r *Registry) SetGuardianThreshold(ctx context.Context, owner domain.Principal, threshold int) (err error) {
	defer metrics.RecordOperation("guardian.set_threshold", time.Now(), &err)

	now := r.clock.Now()
	err = r.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		cfg, err := LoadConfig(ctx, tx, owner)
		if err != nil {
			return err
		}
		if threshold < 1 || threshold > cfg.TotalGuardians {
			return fmt.Errorf("%w: %d not in [1, %d]", domain.ErrInvalidGuardianThreshold, threshold, cfg.TotalGuardians)
		}
		cfg.GuardianThreshold = threshold
		return tx.Guardians().SaveConfig(ctx, cfg)
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Guardian threshold updated", "owner", owner, "threshold", threshold)

	ev := emitter.NewEvent(domain.EventTypeGuardianThreshold, owner, now)
	ev.Keys["threshold"] = strconv.Itoa(threshold)
	emitter.Publish(ctx, r.events, ev)
	return nil
}

// IsGuardian reports whether guardian is an active guardian of owner.
func (r *Registry) IsGuardian(ctx context.Context, owner, guardian domain.Principal) (bool, error) {
	var active bool
	err := r.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		active, err = IsActive(ctx, tx, owner, guardian)
		return err
	})
	if err != nil {
		return false, domain.Internal(err)
	}
	return active, nil
}

// Config returns owner's guardian config, empty when none was ever set.
func (r *Registry) Config(ctx context.Context, owner domain.Principal) (*domain.GuardianConfig, error) {
	var cfg *domain.GuardianConfig
	err := r.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		cfg, err = LoadConfig(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, domain.Internal(err)
	}
	return cfg, nil
}

// ActiveGuardians returns the active guardians of owner in the order they
// were first added.
func (r *Registry) ActiveGuardians(ctx context.Context, owner domain.Principal) ([]domain.Principal, error) {
	var out []domain.Principal
	err := r.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		cfg, err := LoadConfig(ctx, tx, owner)
		if err != nil {
			return err
		}
		for _, g := range cfg.GuardianList.Items() {
			active, err := IsActive(ctx, tx, owner, g)
			if err != nil {
				return err
			}
			if active {
				out = append(out, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Internal(err)
	}
	return out, nil
}
