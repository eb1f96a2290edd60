package recovery

import (
	"fmt"

	"github.com/vietddude/custody/internal/core/domain"
)

// State is the lifecycle state of an owner's most recent recovery request.
type State = domain.RecoveryStatus

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// A terminal request is replaced when a new recovery is initiated.
var ValidTransitions = map[State][]State{
	domain.RecoveryStatusNone:      {domain.RecoveryStatusActive},
	domain.RecoveryStatusActive:    {domain.RecoveryStatusExecuted, domain.RecoveryStatusCancelled},
	domain.RecoveryStatusExecuted:  {domain.RecoveryStatusActive},
	domain.RecoveryStatusCancelled: {domain.RecoveryStatusActive},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidRecoveryTransition, from, to)
	}
	return nil
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.RecoveryStatusNone:
		return "None - no recovery was ever requested"
	case domain.RecoveryStatusActive:
		return "Active - collecting guardian approvals"
	case domain.RecoveryStatusExecuted:
		return "Executed - ownership handed to the new owner"
	case domain.RecoveryStatusCancelled:
		return "Cancelled - stopped by the owner"
	default:
		return "Unknown state"
	}
}
