package identity

import (
	"context"
	"sync"

	"github.com/vietddude/custody/internal/core/domain"
)

// Credential is a seed entry for the in-memory registry.
type Credential struct {
	Owner domain.Principal    `yaml:"owner"`
	ID    domain.CredentialID `yaml:"id"`
}

type credentialState struct {
	owner   domain.Principal
	revoked bool
	uses    uint64
}

// MemoryRegistry holds credentials in process. It backs tests and single-node
// deployments seeded from config.
type MemoryRegistry struct {
	mu          sync.RWMutex
	credentials map[domain.CredentialID]*credentialState
}

func NewMemoryRegistry(seed ...Credential) *MemoryRegistry {
	r := &MemoryRegistry{credentials: make(map[domain.CredentialID]*credentialState)}
	for _, c := range seed {
		r.Register(c.Owner, c.ID)
	}
	return r
}

// Register adds or re-binds a credential to owner.
func (r *MemoryRegistry) Register(owner domain.Principal, id domain.CredentialID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[id] = &credentialState{owner: owner}
}

// Revoke invalidates a credential. Unknown ids are ignored.
func (r *MemoryRegistry) Revoke(id domain.CredentialID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[id]; ok {
		c.revoked = true
	}
}

// Uses returns how many times a credential was marked used.
func (r *MemoryRegistry) Uses(id domain.CredentialID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.credentials[id]; ok {
		return c.uses
	}
	return 0
}

func (r *MemoryRegistry) IsCredentialValid(ctx context.Context, owner domain.Principal, credential domain.CredentialID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credentials[credential]
	return ok && !c.revoked && c.owner == owner, nil
}

func (r *MemoryRegistry) MarkCredentialUsed(ctx context.Context, credential domain.CredentialID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[credential]
	if !ok {
		return ErrUnknownCredential
	}
	c.uses++
	return nil
}

func (r *MemoryRegistry) CredentialCount(ctx context.Context, owner domain.Principal) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.credentials {
		if c.owner == owner && !c.revoked {
			n++
		}
	}
	return n, nil
}
