package identity

import (
	"context"
	"errors"

	"github.com/vietddude/custody/internal/core/domain"
)

// Registry is the external credential (passkey) service. Implementations
// return an error only when the service could not answer; an invalid
// credential is reported as false.
type Registry interface {
	// IsCredentialValid reports whether credential is currently valid for owner
	IsCredentialValid(ctx context.Context, owner domain.Principal, credential domain.CredentialID) (bool, error)

	// MarkCredentialUsed records a use of credential
	MarkCredentialUsed(ctx context.Context, credential domain.CredentialID) error

	// CredentialCount returns the number of valid credentials owner holds
	CredentialCount(ctx context.Context, owner domain.Principal) (int, error)
}

// ErrUnknownCredential is returned by MarkCredentialUsed for a credential the
// registry has never seen.
var ErrUnknownCredential = errors.New("unknown credential")
