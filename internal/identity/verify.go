package identity

import (
	"context"
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
)

// Verify checks credential against owner and maps the outcome to domain
// errors: an invalid credential is ErrCredentialNotVerified and any registry
// failure is ErrIdentityUnavailable.
func Verify(ctx context.Context, r Registry, owner domain.Principal, credential domain.CredentialID) error {
	if credential == "" {
		return domain.ErrCredentialNotVerified
	}
	ok, err := r.IsCredentialValid(ctx, owner, credential)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIdentityUnavailable, err)
	}
	if !ok {
		return domain.ErrCredentialNotVerified
	}
	return nil
}

// MarkUsed records a credential use. Failure aborts the calling operation.
func MarkUsed(ctx context.Context, r Registry, credential domain.CredentialID) error {
	if err := r.MarkCredentialUsed(ctx, credential); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIdentityUnavailable, err)
	}
	return nil
}

// Count returns the owner's valid credential count.
func Count(ctx context.Context, r Registry, owner domain.Principal) (int, error) {
	n, err := r.CredentialCount(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIdentityUnavailable, err)
	}
	return n, nil
}
