package domain

// TransferKind classifies value leaving custody.
type TransferKind string

const (
	TransferKindWithdrawal      TransferKind = "withdrawal"
	TransferKindTransferFee     TransferKind = "transfer_fee"
	TransferKindRegistrationFee TransferKind = "registration_fee"
)

// Transfer is a settlement instruction recorded in the same commit as the
// state change that produced it. Seq is assigned by the store.
type Transfer struct {
	Seq       uint64       `json:"seq"        db:"seq"`
	Kind      TransferKind `json:"kind"       db:"kind"`
	From      Principal    `json:"from"       db:"from_principal"`
	To        Principal    `json:"to"         db:"to_principal"`
	Amount    uint64       `json:"amount"     db:"amount"`
	Reference string       `json:"reference"  db:"reference"`
	CreatedAt uint64       `json:"created_at" db:"created_at"`
}
