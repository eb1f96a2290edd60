package domain

// TxID is the process-wide identifier of a pending transaction. IDs start at 0
// and are never reused.
type TxID uint64

// PendingTransaction is an outgoing transfer collecting credential approvals.
type PendingTransaction struct {
	ID         TxID              `json:"id"`
	From       Principal         `json:"from"`
	To         Principal         `json:"to"`
	Amount     uint64            `json:"amount"`
	Fee        uint64            `json:"fee"`
	Approvals  Set[CredentialID] `json:"approvals"`
	CreatedAt  uint64            `json:"created_at"`
	Executed   bool              `json:"executed"`
	ExecutedAt uint64            `json:"executed_at,omitempty"`
}

// Clone returns a deep copy.
func (t *PendingTransaction) Clone() *PendingTransaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Approvals = t.Approvals.Clone()
	return &c
}

// Debit is the total amount leaving the wallet when the transaction executes.
func (t *PendingTransaction) Debit() uint64 {
	return t.Amount + t.Fee
}
