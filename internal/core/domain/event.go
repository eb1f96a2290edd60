package domain

// Event is a best-effort notification of a committed state change.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Owner     Principal         `json:"owner"`
	Keys      map[string]string `json:"keys,omitempty"`
	Amount    uint64            `json:"amount,omitempty"`
	Timestamp uint64            `json:"timestamp"`
}

type EventType string

const (
	EventTypeWalletInitialized  EventType = "wallet_initialized"
	EventTypeDeposit            EventType = "deposit"
	EventTypeThresholdUpdated   EventType = "threshold_updated"
	EventTypeWithdrawalCreated  EventType = "withdrawal_created"
	EventTypeWithdrawalApproved EventType = "withdrawal_approved"
	EventTypeWithdrawalExecuted EventType = "withdrawal_executed"
	EventTypeGuardianAdded      EventType = "guardian_added"
	EventTypeGuardianRemoved    EventType = "guardian_removed"
	EventTypeGuardianThreshold  EventType = "guardian_threshold_updated"
	EventTypeRecoveryInitiated  EventType = "recovery_initiated"
	EventTypeRecoveryApproved   EventType = "recovery_approved"
	EventTypeRecoveryExecuted   EventType = "recovery_executed"
	EventTypeRecoveryEmergency  EventType = "recovery_emergency_executed"
	EventTypeRecoveryCancelled  EventType = "recovery_cancelled"
	EventTypeFeeCharged         EventType = "fee_charged"
)
