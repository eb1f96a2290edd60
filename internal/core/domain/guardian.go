package domain

// Guardian is the (owner, guardian) membership record. Removal deactivates it;
// records are kept for audit history.
type Guardian struct {
	Owner    Principal `json:"owner"     db:"owner"`
	Guardian Principal `json:"guardian"  db:"guardian"`
	AddedAt  uint64    `json:"added_at"  db:"added_at"`
	IsActive bool      `json:"is_active" db:"is_active"`
}

// GuardianConfig holds the guardian set and recovery threshold of an owner.
// GuardianList is never compacted, so it may contain inactive guardians.
type GuardianConfig struct {
	Owner             Principal      `json:"owner"`
	GuardianList      Set[Principal] `json:"guardian_list"`
	GuardianThreshold int            `json:"guardian_threshold"`
	TotalGuardians    int            `json:"total_guardians"`
}

// Clone returns a deep copy.
func (c *GuardianConfig) Clone() *GuardianConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.GuardianList = c.GuardianList.Clone()
	return &cp
}
