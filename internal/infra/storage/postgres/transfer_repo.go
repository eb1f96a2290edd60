package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// outboxLockKey serializes appends so seq order matches commit order and the
// relay never skips a row committed late with a lower seq.
const outboxLockKey = "outbox"

// TransferRepo implements storage.TransferRepository using PostgreSQL.
type TransferRepo struct {
	uow *UnitOfWork
}

type transferRow struct {
	Seq       int64  `db:"seq"`
	Kind      string `db:"kind"`
	From      string `db:"from_principal"`
	To        string `db:"to_principal"`
	Amount    int64  `db:"amount"`
	Reference string `db:"reference"`
	CreatedAt int64  `db:"created_at"`
}

func (row transferRow) toDomain() *domain.Transfer {
	return &domain.Transfer{
		Seq:       uint64(row.Seq),
		Kind:      domain.TransferKind(row.Kind),
		From:      domain.Principal(row.From),
		To:        domain.Principal(row.To),
		Amount:    uint64(row.Amount),
		Reference: row.Reference,
		CreatedAt: uint64(row.CreatedAt),
	}
}

func (r *TransferRepo) Append(ctx context.Context, t *domain.Transfer) error {
	if err := r.uow.writable(); err != nil {
		return err
	}
	if err := r.uow.Lock(ctx, outboxLockKey); err != nil {
		return err
	}

	var seq int64
	err := r.uow.tx.GetContext(ctx, &seq, `
		INSERT INTO transfers (kind, from_principal, to_principal, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`,
		string(t.Kind), string(t.From), string(t.To), int64(t.Amount), t.Reference, int64(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append transfer: %w", err)
	}
	t.Seq = uint64(seq)
	return nil
}

func (r *TransferRepo) ListAfter(ctx context.Context, after uint64, limit int) ([]*domain.Transfer, error) {
	query := `
		SELECT seq, kind, from_principal, to_principal, amount, reference, created_at
		FROM transfers WHERE seq > $1 ORDER BY seq`
	args := []any{int64(after)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []transferRow
	if err := r.uow.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	out := make([]*domain.Transfer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *TransferRepo) SumTo(ctx context.Context, to domain.Principal, kinds ...domain.TransferKind) (uint64, error) {
	var total int64
	if len(kinds) == 0 {
		err := r.uow.tx.GetContext(ctx, &total, `
			SELECT COALESCE(SUM(amount), 0) FROM transfers WHERE to_principal = $1`, string(to))
		if err != nil {
			return 0, fmt.Errorf("failed to sum transfers: %w", err)
		}
		return uint64(total), nil
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	query, args, err := sqlx.In(`
		SELECT COALESCE(SUM(amount), 0) FROM transfers
		WHERE to_principal = ? AND kind IN (?)`, string(to), names)
	if err != nil {
		return 0, fmt.Errorf("failed to build sum query: %w", err)
	}
	if err := r.uow.tx.GetContext(ctx, &total, r.uow.tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to sum transfers: %w", err)
	}
	return uint64(total), nil
}
