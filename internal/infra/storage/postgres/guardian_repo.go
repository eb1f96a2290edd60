package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// GuardianRepo implements storage.GuardianRepository using PostgreSQL.
type GuardianRepo struct {
	uow *UnitOfWork
}

type guardianRow struct {
	Owner    string `db:"owner"`
	Guardian string `db:"guardian"`
	AddedAt  int64  `db:"added_at"`
	IsActive bool   `db:"is_active"`
}

type guardianConfigRow struct {
	Owner             string `db:"owner"`
	GuardianThreshold int    `db:"guardian_threshold"`
	TotalGuardians    int    `db:"total_guardians"`
}

func (r *GuardianRepo) Get(ctx context.Context, owner, guardian domain.Principal) (*domain.Guardian, error) {
	var row guardianRow
	err := r.uow.tx.GetContext(ctx, &row, `
		SELECT owner, guardian, added_at, is_active
		FROM guardians WHERE owner = $1 AND guardian = $2`,
		string(owner), string(guardian))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian: %w", err)
	}
	return &domain.Guardian{
		Owner:    domain.Principal(row.Owner),
		Guardian: domain.Principal(row.Guardian),
		AddedAt:  uint64(row.AddedAt),
		IsActive: row.IsActive,
	}, nil
}

func (r *GuardianRepo) Save(ctx context.Context, g *domain.Guardian) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	_, err := r.uow.tx.ExecContext(ctx, `
		INSERT INTO guardians (owner, guardian, added_at, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, guardian) DO UPDATE SET
			is_active = EXCLUDED.is_active`,
		string(g.Owner), string(g.Guardian), int64(g.AddedAt), g.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save guardian: %w", err)
	}
	return nil
}

func (r *GuardianRepo) GetConfig(ctx context.Context, owner domain.Principal) (*domain.GuardianConfig, error) {
	var row guardianConfigRow
	err := r.uow.tx.GetContext(ctx, &row, `
		SELECT owner, guardian_threshold, total_guardians
		FROM guardian_configs WHERE owner = $1`, string(owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian config: %w", err)
	}

	var list []string
	err = r.uow.tx.SelectContext(ctx, &list, `
		SELECT guardian FROM guardian_list
		WHERE owner = $1 ORDER BY position`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian list: %w", err)
	}

	cfg := &domain.GuardianConfig{
		Owner:             domain.Principal(row.Owner),
		GuardianThreshold: row.GuardianThreshold,
		TotalGuardians:    row.TotalGuardians,
	}
	for _, g := range list {
		cfg.GuardianList.Add(domain.Principal(g))
	}
	return cfg, nil
}

// SaveConfig upserts the config. The guardian list is append-only, so rows
// already present keep their position.
func (r *GuardianRepo) SaveConfig(ctx context.Context, cfg *domain.GuardianConfig) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	_, err := r.uow.tx.ExecContext(ctx, `
		INSERT INTO guardian_configs (owner, guardian_threshold, total_guardians)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner) DO UPDATE SET
			guardian_threshold = EXCLUDED.guardian_threshold,
			total_guardians = EXCLUDED.total_guardians`,
		string(cfg.Owner), cfg.GuardianThreshold, cfg.TotalGuardians,
	)
	if err != nil {
		return fmt.Errorf("failed to save guardian config: %w", err)
	}

	for i, g := range cfg.GuardianList.Items() {
		_, err := r.uow.tx.ExecContext(ctx, `
			INSERT INTO guardian_list (owner, guardian, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (owner, guardian) DO NOTHING`,
			string(cfg.Owner), string(g), i,
		)
		if err != nil {
			return fmt.Errorf("failed to save guardian list: %w", err)
		}
	}
	return nil
}
