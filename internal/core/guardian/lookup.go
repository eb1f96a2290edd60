package guardian

import (
	"context"
	"errors"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

// LoadConfig reads owner's config inside tx. A missing config is returned
// empty, not as an error.
func LoadConfig(ctx context.Context, tx storage.Tx, owner domain.Principal) (*domain.GuardianConfig, error) {
	cfg, err := tx.Guardians().GetConfig(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return &domain.GuardianConfig{Owner: owner}, nil
	}
	return cfg, err
}

// IsActive reports whether guardian currently guards owner.
func IsActive(ctx context.Context, tx storage.Tx, owner, guardian domain.Principal) (bool, error) {
	g, err := tx.Guardians().Get(ctx, owner, guardian)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.IsActive, nil
}

// CountActive counts the members of approvals that are still active
// guardians of owner.
func CountActive(ctx context.Context, tx storage.Tx, owner domain.Principal, approvals domain.Set[domain.Principal]) (int, error) {
	n := 0
	for _, g := range approvals.Items() {
		active, err := IsActive(ctx, tx, owner, g)
		if err != nil {
			return 0, err
		}
		if active {
			n++
		}
	}
	return n, nil
}
