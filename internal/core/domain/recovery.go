package domain

// RecoveryStatus is the lifecycle state of an owner's recovery request.
type RecoveryStatus string

const (
	RecoveryStatusNone      RecoveryStatus = "none"
	RecoveryStatusActive    RecoveryStatus = "active"
	RecoveryStatusExecuted  RecoveryStatus = "executed"
	RecoveryStatusCancelled RecoveryStatus = "cancelled"
)

// RecoveryRequest is the most recent ownership recovery attempt for an owner.
type RecoveryRequest struct {
	Owner       Principal      `json:"owner"`
	NewOwner    Principal      `json:"new_owner"`
	Approvals   Set[Principal] `json:"approvals"`
	InitiatedAt uint64         `json:"initiated_at"`
	IsActive    bool           `json:"is_active"`
	Executed    bool           `json:"executed"`
	ClosedAt    uint64         `json:"closed_at,omitempty"`
}

// Status derives the lifecycle state from the flags.
func (r *RecoveryRequest) Status() RecoveryStatus {
	switch {
	case r == nil:
		return RecoveryStatusNone
	case r.Executed:
		return RecoveryStatusExecuted
	case r.IsActive:
		return RecoveryStatusActive
	default:
		return RecoveryStatusCancelled
	}
}

// Clone returns a deep copy.
func (r *RecoveryRequest) Clone() *RecoveryRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Approvals = r.Approvals.Clone()
	return &c
}
