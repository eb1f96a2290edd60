package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vietddude/custody/internal/core/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{domain.RecoveryStatusNone, domain.RecoveryStatusActive, true},
		{domain.RecoveryStatusNone, domain.RecoveryStatusExecuted, false},
		{domain.RecoveryStatusActive, domain.RecoveryStatusExecuted, true},
		{domain.RecoveryStatusActive, domain.RecoveryStatusCancelled, true},
		{domain.RecoveryStatusActive, domain.RecoveryStatusActive, false},
		{domain.RecoveryStatusExecuted, domain.RecoveryStatusCancelled, false},
		{domain.RecoveryStatusCancelled, domain.RecoveryStatusExecuted, false},
		{domain.RecoveryStatusCancelled, domain.RecoveryStatusActive, true},
		{domain.RecoveryStatusExecuted, domain.RecoveryStatusActive, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStateDescription(t *testing.T) {
	for state := range ValidTransitions {
		assert.NotEqual(t, "Unknown state", StateDescription(state))
	}
	assert.Equal(t, "Unknown state", StateDescription("bogus"))
}
