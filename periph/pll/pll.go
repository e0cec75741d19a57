// Package pll models a phase-locked loop that needs a fixed settling time
// before it reports lock.
package pll

import (
	"log"

	"github.com/sarchlab/avrcore/sim"
)

// RegPLLCSR is the single control/status register.
const RegPLLCSR uint8 = 0

// PLLCSR bits.
const (
	CtrlLock   uint8 = 1 << 0 // PLOCK, read only
	CtrlEnable uint8 = 1 << 1 // PLLE
)

// LockCycles is the settling time between enabling the PLL and the lock bit
// reading one, in system cycles.
const LockCycles sim.Cycle = 1600

// A PLL is the clock-multiplier unit. Its single predictable event is the
// lock assertion a fixed number of cycles after it is enabled.
type PLL struct {
	sim.PeripheralBase

	enabled  bool
	locked   bool
	lockedAt sim.Cycle
}

// State is the snapshot of the PLL's internal state.
type State struct {
	Enabled      bool      `json:"enabled"`
	Locked       bool      `json:"locked"`
	LockedAt     sim.Cycle `json:"locked_at"`
	LastAdvanced sim.Cycle `json:"last_advanced"`
}

// New creates a PLL.
func New(name string, id sim.PeriphID) *PLL {
	return &PLL{PeripheralBase: sim.MakePeripheralBase(name, id)}
}

// Advance asserts the lock bit once the settling time has passed.
func (p *PLL) Advance(to sim.Cycle) {
	p.BeginAdvance(to)

	if p.enabled && !p.locked && to >= p.lockedAt {
		p.locked = true
	}
}

// NextEvent predicts the lock assertion while the PLL is settling.
func (p *PLL) NextEvent() sim.Cycle {
	if !p.enabled || p.locked {
		return sim.NoEvent
	}

	return p.lockedAt
}

// ReadRegister returns the control/status register.
func (p *PLL) ReadRegister(reg uint8, _ sim.Cycle) uint8 {
	if reg != RegPLLCSR {
		log.Panicf("%s has no register %d", p.Name(), reg)
	}

	v := uint8(0)
	if p.enabled {
		v |= CtrlEnable
	}
	if p.locked {
		v |= CtrlLock
	}

	return v
}

// WriteRegister applies a control write. Disabling the PLL drops the lock
// and cancels a pending lock event; the lock bit itself is read only.
func (p *PLL) WriteRegister(reg uint8, value uint8, now sim.Cycle) {
	if reg != RegPLLCSR {
		log.Panicf("%s has no register %d", p.Name(), reg)
	}

	enable := value&CtrlEnable != 0

	switch {
	case enable && !p.enabled:
		p.enabled = true
		p.locked = false
		p.lockedAt = now + LockCycles
	case !enable && p.enabled:
		p.enabled = false
		p.locked = false
	}
}

// State returns a snapshot of the PLL.
func (p *PLL) State() any {
	return State{
		Enabled:      p.enabled,
		Locked:       p.locked,
		LockedAt:     p.lockedAt,
		LastAdvanced: p.LastAdvanced(),
	}
}

// Reset returns the PLL to its power-on state.
func (p *PLL) Reset() {
	p.enabled = false
	p.locked = false
	p.lockedAt = 0
	p.ResetAdvance()
}
