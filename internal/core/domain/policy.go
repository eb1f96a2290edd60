package domain

import "fmt"

// Policy holds the quantitative bounds of the custody rules.
type Policy struct {
	// MaxThreshold bounds a wallet's approval threshold
	MaxThreshold int `yaml:"max_threshold" json:"max_threshold"`
	// MaxApprovals bounds the approval set of a pending transaction
	MaxApprovals int `yaml:"max_approvals" json:"max_approvals"`
	// MaxGuardians bounds the active guardians of an owner
	MaxGuardians int `yaml:"max_guardians" json:"max_guardians"`
	// RecoveryDelay is the timelock in logical time units
	RecoveryDelay uint64 `yaml:"recovery_delay" json:"recovery_delay"`
}

// DefaultPolicy returns the standard bounds.
func DefaultPolicy() Policy {
	return Policy{
		MaxThreshold:  10,
		MaxApprovals:  10,
		MaxGuardians:  10,
		RecoveryDelay: 144,
	}
}

// GuardianListCapacity bounds the never-compacted guardian list, which also
// holds removed guardians.
func (p Policy) GuardianListCapacity() int {
	return 2 * p.MaxGuardians
}

// Validate checks the bounds are usable together.
func (p Policy) Validate() error {
	if p.MaxThreshold < 1 {
		return fmt.Errorf("max_threshold must be at least 1, got %d", p.MaxThreshold)
	}
	if p.MaxApprovals < p.MaxThreshold {
		return fmt.Errorf("max_approvals (%d) must be >= max_threshold (%d)", p.MaxApprovals, p.MaxThreshold)
	}
	if p.MaxGuardians < 1 {
		return fmt.Errorf("max_guardians must be at least 1, got %d", p.MaxGuardians)
	}
	return nil
}
