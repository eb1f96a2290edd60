// Package recovery drives guardian-based ownership recovery.
//
// A guardian initiates a request naming the new owner, other guardians
// approve it, and it executes once the guardian threshold is met and the
// recovery delay has elapsed since initiation. Unanimous approval of all
// active guardians executes immediately. The owner may cancel while the
// request is active.
package recovery

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
	"github.com/vietddude/custody/internal/core/guardian"
	"github.com/vietddude/custody/internal/infra/storage"
	"github.com/vietddude/custody/internal/metrics"
)

// Engine owns recovery requests.
type Engine struct {
	store  storage.Store
	clock  clock.Clock
	events emitter.Emitter
	delay  uint64
}

// NewEngine creates an engine whose timelock is policy.RecoveryDelay units.
func NewEngine(store storage.Store, clk clock.Clock, events emitter.Emitter, policy domain.Policy) *Engine {
	return &Engine{
		store:  store,
		clock:  clk,
		events: events,
		delay:  policy.RecoveryDelay,
	}
}

// InitiateRecovery opens a request to hand owner's account to newOwner,
// approved by caller, who must be an active guardian of owner.
func (e *Engine) InitiateRecovery(ctx context.Context, owner, newOwner, caller domain.Principal) (err error) {
	defer metrics.RecordOperation("recovery.initiate", time.Now(), &err)

	if newOwner == "" || newOwner == owner {
		return domain.ErrInvalidNewOwner
	}

	now := e.clock.Now()
	err = e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		if err := requireGuardian(ctx, tx, owner, caller); err != nil {
			return err
		}
		prev, err := load(ctx, tx, owner)
		if err != nil {
			return err
		}
		if prev.Status() == domain.RecoveryStatusActive {
			return domain.ErrRecoveryAlreadyActive
		}
		if err := checkTransition(prev.Status(), domain.RecoveryStatusActive); err != nil {
			return err
		}

		return tx.Recoveries().Save(ctx, &domain.RecoveryRequest{
			Owner:       owner,
			NewOwner:    newOwner,
			Approvals:   domain.NewSet(caller),
			InitiatedAt: now,
			IsActive:    true,
		})
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Recovery initiated", "owner", owner, "new_owner", newOwner, "guardian", caller)

	ev := emitter.NewEvent(domain.EventTypeRecoveryInitiated, owner, now)
	ev.Keys["new_owner"] = string(newOwner)
	ev.Keys["guardian"] = string(caller)
	emitter.Publish(ctx, e.events, ev)
	return nil
}

// ApproveRecovery adds caller's approval and returns the approval count.
func (e *Engine) ApproveRecovery(ctx context.Context, owner, caller domain.Principal) (approvals int, err error) {
	defer metrics.RecordOperation("recovery.approve", time.Now(), &err)

	now := e.clock.Now()
	err = e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		if err := requireGuardian(ctx, tx, owner, caller); err != nil {
			return err
		}
		req, err := loadActive(ctx, tx, owner)
		if err != nil {
			return err
		}
		if !req.Approvals.Add(caller) {
			return domain.ErrRecoveryDuplicateApproval
		}
		approvals = req.Approvals.Len()
		return tx.Recoveries().Save(ctx, req)
	})
	if err != nil {
		return 0, domain.Internal(err)
	}

	slog.Info("Recovery approved", "owner", owner, "guardian", caller, "approvals", approvals)

	ev := emitter.NewEvent(domain.EventTypeRecoveryApproved, owner, now)
	ev.Keys["guardian"] = string(caller)
	ev.Keys["approvals"] = strconv.Itoa(approvals)
	emitter.Publish(ctx, e.events, ev)
	return approvals, nil
}

// ExecuteRecovery completes an active request once approvals from active
// guardians reach the guardian threshold and the delay has elapsed. It
// returns the new owner; applying the handover is the caller's concern.
func (e *Engine) ExecuteRecovery(ctx context.Context, owner domain.Principal) (newOwner domain.Principal, err error) {
	defer metrics.RecordOperation("recovery.execute", time.Now(), &err)

	now := e.clock.Now()
	err = e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		req, err := loadActive(ctx, tx, owner)
		if err != nil {
			return err
		}
		cfg, err := guardian.LoadConfig(ctx, tx, owner)
		if err != nil {
			return err
		}
		n, err := guardian.CountActive(ctx, tx, owner, req.Approvals)
		if err != nil {
			return err
		}
		if cfg.GuardianThreshold < 1 || n < cfg.GuardianThreshold {
			return fmt.Errorf("%w: %d of %d", domain.ErrRecoveryThresholdNotMet, n, cfg.GuardianThreshold)
		}
		if elapsed := elapsedSince(req.InitiatedAt, now); elapsed < e.delay {
			return fmt.Errorf("%w: %d of %d units elapsed", domain.ErrTimelockNotExpired, elapsed, e.delay)
		}

		newOwner = req.NewOwner
		return e.finish(ctx, tx, req, now)
	})
	if err != nil {
		return "", domain.Internal(err)
	}

	slog.Info("Recovery executed", "owner", owner, "new_owner", newOwner)

	ev := emitter.NewEvent(domain.EventTypeRecoveryExecuted, owner, now)
	ev.Keys["new_owner"] = string(newOwner)
	emitter.Publish(ctx, e.events, ev)
	return newOwner, nil
}

// EmergencyRecovery completes an active request without waiting for the
// delay. Every active guardian must have approved.
func (e *Engine) EmergencyRecovery(ctx context.Context, owner domain.Principal) (newOwner domain.Principal, err error) {
	defer metrics.RecordOperation("recovery.emergency", time.Now(), &err)

	now := e.clock.Now()
	err = e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		req, err := loadActive(ctx, tx, owner)
		if err != nil {
			return err
		}
		cfg, err := guardian.LoadConfig(ctx, tx, owner)
		if err != nil {
			return err
		}
		n, err := guardian.CountActive(ctx, tx, owner, req.Approvals)
		if err != nil {
			return err
		}
		if cfg.TotalGuardians == 0 || n != cfg.TotalGuardians {
			return fmt.Errorf("%w: %d of %d guardians, unanimity required",
				domain.ErrRecoveryThresholdNotMet, n, cfg.TotalGuardians)
		}

		newOwner = req.NewOwner
		return e.finish(ctx, tx, req, now)
	})
	if err != nil {
		return "", domain.Internal(err)
	}

	slog.Warn("Emergency recovery executed", "owner", owner, "new_owner", newOwner)

	ev := emitter.NewEvent(domain.EventTypeRecoveryEmergency, owner, now)
	ev.Keys["new_owner"] = string(newOwner)
	emitter.Publish(ctx, e.events, ev)
	return newOwner, nil
}

// CancelRecovery stops owner's active request. Only the owner may cancel.
func (e *Engine) CancelRecovery(ctx context.Context, owner, caller domain.Principal) (err error) {
	defer metrics.RecordOperation("recovery.cancel", time.Now(), &err)

	if caller != owner {
		return domain.ErrNotAuthorized
	}

	now := e.clock.Now()
	err = e.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Lock(ctx, storage.GuardianKey(owner)); err != nil {
			return err
		}
		req, err := load(ctx, tx, owner)
		if err != nil {
			return err
		}
		switch req.Status() {
		case domain.RecoveryStatusExecuted:
			return domain.ErrRecoveryAlreadyExecuted
		case domain.RecoveryStatusActive:
		default:
			return domain.ErrRecoveryNotActive
		}
		if err := checkTransition(req.Status(), domain.RecoveryStatusCancelled); err != nil {
			return err
		}

		req.IsActive = false
		req.ClosedAt = now
		return tx.Recoveries().Save(ctx, req)
	})
	if err != nil {
		return domain.Internal(err)
	}

	slog.Info("Recovery cancelled", "owner", owner)

	emitter.Publish(ctx, e.events, emitter.NewEvent(domain.EventTypeRecoveryCancelled, owner, now))
	return nil
}

// Get returns owner's most recent request, ErrRecoveryNotActive if none was
// ever made.
func (e *Engine) Get(ctx context.Context, owner domain.Principal) (*domain.RecoveryRequest, error) {
	var req *domain.RecoveryRequest
	err := e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		req, err = load(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, domain.Internal(err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: no recovery requested", domain.ErrRecoveryNotActive)
	}
	return req, nil
}

// Delay returns the timelock in logical units.
func (e *Engine) Delay() uint64 {
	return e.delay
}

func (e *Engine) finish(ctx context.Context, tx storage.Tx, req *domain.RecoveryRequest, now uint64) error {
	if err := checkTransition(req.Status(), domain.RecoveryStatusExecuted); err != nil {
		return err
	}
	req.Executed = true
	req.IsActive = false
	req.ClosedAt = now
	return tx.Recoveries().Save(ctx, req)
}

func requireGuardian(ctx context.Context, tx storage.Tx, owner, caller domain.Principal) error {
	active, err := guardian.IsActive(ctx, tx, owner, caller)
	if err != nil {
		return err
	}
	if !active {
		return domain.ErrNotAuthorized
	}
	return nil
}

// load returns nil, nil when owner never had a request.
func load(ctx context.Context, tx storage.Tx, owner domain.Principal) (*domain.RecoveryRequest, error) {
	req, err := tx.Recoveries().Get(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return req, err
}

func loadActive(ctx context.Context, tx storage.Tx, owner domain.Principal) (*domain.RecoveryRequest, error) {
	req, err := load(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	if req.Status() != domain.RecoveryStatusActive {
		return nil, domain.ErrRecoveryNotActive
	}
	return req, nil
}

func elapsedSince(start, now uint64) uint64 {
	if now < start {
		return 0
	}
	return now - start
}
