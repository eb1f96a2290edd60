// Package clock supplies logical time to the custody core.
//
// Core services never read the wall clock. They depend on Clock, whose
// readings are monotonically non-decreasing unit counts (for example block
// heights). The recovery timelock is expressed in these units.
//
//	c := clock.NewManual(0)
//	svc := recovery.NewEngine(store, c, ...)
//	c.Advance(144)
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current logical time.
type Clock interface {
	Now() uint64
}

// Manual is a Clock driven by the caller. Safe for concurrent use.
type Manual struct {
	mu  sync.RWMutex
	now uint64
}

// NewManual returns a Manual clock starting at start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading.
func (m *Manual) Now() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance moves the clock forward by n units.
func (m *Manual) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += n
	return m.now
}

// Set moves the clock to t. Moving backwards is rejected.
func (m *Manual) Set(t uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t < m.now {
		return fmt.Errorf("clock cannot move backwards: %d < %d", t, m.now)
	}
	m.now = t
	return nil
}

// Epoch derives logical time from wall time as the number of whole units
// elapsed since Genesis. Readings before Genesis are 0.
type Epoch struct {
	Genesis time.Time
	Unit    time.Duration

	// wall is overridable in tests.
	wall func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewEpoch returns an Epoch clock. Unit must be positive.
func NewEpoch(genesis time.Time, unit time.Duration) (*Epoch, error) {
	if unit <= 0 {
		return nil, fmt.Errorf("epoch unit must be positive, got %s", unit)
	}
	return &Epoch{Genesis: genesis, Unit: unit, wall: time.Now}, nil
}

// Now returns the elapsed unit count. A wall clock stepping backwards never
// lowers the reading.
func (e *Epoch) Now() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	elapsed := e.wall().Sub(e.Genesis)
	var n uint64
	if elapsed > 0 {
		n = uint64(elapsed / e.Unit)
	}
	if n < e.last {
		return e.last
	}
	e.last = n
	return n
}
