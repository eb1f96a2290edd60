package domain

import "math"

// MaxAmount bounds balances, amounts and fees to what a signed 64-bit
// column holds, so every store accepts the same values.
const MaxAmount uint64 = math.MaxInt64

// Principal identifies an account holder, guardian, recipient or treasury.
type Principal string

// CredentialID identifies a passkey registered with the identity service.
type CredentialID string

// WalletAccount is the custodial balance record of a single owner.
type WalletAccount struct {
	Owner             Principal `json:"owner"              db:"owner"`
	Balance           uint64    `json:"balance"            db:"balance"`
	Nonce             uint64    `json:"nonce"              db:"nonce"`
	ApprovalThreshold int       `json:"approval_threshold" db:"approval_threshold"`
	CreatedAt         uint64    `json:"created_at"         db:"created_at"`
}

// Clone returns a copy safe to mutate.
func (w *WalletAccount) Clone() *WalletAccount {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}
