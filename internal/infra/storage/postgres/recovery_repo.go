package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// RecoveryRepo implements storage.RecoveryRepository using PostgreSQL.
type RecoveryRepo struct {
	uow *UnitOfWork
}

type recoveryRow struct {
	Owner       string `db:"owner"`
	NewOwner    string `db:"new_owner"`
	InitiatedAt int64  `db:"initiated_at"`
	IsActive    bool   `db:"is_active"`
	Executed    bool   `db:"executed"`
	ClosedAt    int64  `db:"closed_at"`
}

func (r *RecoveryRepo) Get(ctx context.Context, owner domain.Principal) (*domain.RecoveryRequest, error) {
	var row recoveryRow
	err := r.uow.tx.GetContext(ctx, &row, `
		SELECT owner, new_owner, initiated_at, is_active, executed, closed_at
		FROM recovery_requests WHERE owner = $1`, string(owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery request: %w", err)
	}

	var approvals []string
	err = r.uow.tx.SelectContext(ctx, &approvals, `
		SELECT guardian FROM recovery_approvals
		WHERE owner = $1 ORDER BY position`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery approvals: %w", err)
	}

	req := &domain.RecoveryRequest{
		Owner:       domain.Principal(row.Owner),
		NewOwner:    domain.Principal(row.NewOwner),
		InitiatedAt: uint64(row.InitiatedAt),
		IsActive:    row.IsActive,
		Executed:    row.Executed,
		ClosedAt:    uint64(row.ClosedAt),
	}
	for _, g := range approvals {
		req.Approvals.Add(domain.Principal(g))
	}
	return req, nil
}

// Save replaces the owner's request. A new request discards the approvals of
// the previous one.
func (r *RecoveryRepo) Save(ctx context.Context, req *domain.RecoveryRequest) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	_, err := r.uow.tx.ExecContext(ctx, `
		INSERT INTO recovery_requests (owner, new_owner, initiated_at, is_active, executed, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner) DO UPDATE SET
			new_owner = EXCLUDED.new_owner,
			initiated_at = EXCLUDED.initiated_at,
			is_active = EXCLUDED.is_active,
			executed = EXCLUDED.executed,
			closed_at = EXCLUDED.closed_at`,
		string(req.Owner), string(req.NewOwner), int64(req.InitiatedAt),
		req.IsActive, req.Executed, int64(req.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save recovery request: %w", err)
	}

	if _, err := r.uow.tx.ExecContext(ctx,
		`DELETE FROM recovery_approvals WHERE owner = $1`, string(req.Owner)); err != nil {
		return fmt.Errorf("failed to reset recovery approvals: %w", err)
	}
	for i, g := range req.Approvals.Items() {
		_, err := r.uow.tx.ExecContext(ctx, `
			INSERT INTO recovery_approvals (owner, guardian, position)
			VALUES ($1, $2, $3)`,
			string(req.Owner), string(g), i,
		)
		if err != nil {
			return fmt.Errorf("failed to save recovery approval: %w", err)
		}
	}
	return nil
}
