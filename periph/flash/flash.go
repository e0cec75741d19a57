// Package flash models the self-programming (SPM) sequencer of the flash
// controller: a short arming window followed by fixed-duration page
// operations.
package flash

import (
	"log"

	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/sim"
)

// RegSPMCSR is the single control/status register.
const RegSPMCSR uint8 = 0

// SPMCSR bits.
const (
	CtrlArm       uint8 = 1 << 0 // SPMEN, self-clearing
	CtrlPageErase uint8 = 1 << 1 // PGERS
	CtrlPageWrite uint8 = 1 << 2 // PGWRT
	CtrlBusy      uint8 = 1 << 6 // read only
	CtrlIntEnable uint8 = 1 << 7 // SPMIE
)

// Operation durations in system cycles.
const (
	// ArmWindowCycles is how long the arm bit stays set when no operation
	// follows the arming write.
	ArmWindowCycles sim.Cycle = 4

	// EraseCycles is the duration of a page erase.
	EraseCycles sim.Cycle = 7200

	// WriteCycles is the duration of a page write.
	WriteCycles sim.Cycle = 7200
)

// A Flash is the self-programming sequencer. Its predictable events are the
// expiry of the arming window and the completion of a page operation.
type Flash struct {
	sim.PeripheralBase

	line irq.Line

	armed     bool
	armedTill sim.Cycle
	busy      bool
	busyOp    uint8
	doneAt    sim.Cycle
	intEnable bool

	erases int
	writes int
}

// State is the snapshot of the flash sequencer's internal state.
type State struct {
	Armed        bool      `json:"armed"`
	ArmedTill    sim.Cycle `json:"armed_till"`
	Busy         bool      `json:"busy"`
	BusyOp       uint8     `json:"busy_op"`
	DoneAt       sim.Cycle `json:"done_at"`
	IntEnable    bool      `json:"int_enable"`
	Erases       int       `json:"erases"`
	Writes       int       `json:"writes"`
	LastAdvanced sim.Cycle `json:"last_advanced"`
}

// New creates a flash sequencer.
func New(name string, id sim.PeriphID, line irq.Line) *Flash {
	return &Flash{
		PeripheralBase: sim.MakePeripheralBase(name, id),
		line:           line,
	}
}

// Advance expires the arming window and completes page operations the span
// crossed.
func (f *Flash) Advance(to sim.Cycle) {
	f.BeginAdvance(to)

	if f.armed && to >= f.armedTill {
		f.armed = false
	}

	if f.busy && to >= f.doneAt {
		f.busy = false
		f.busyOp = 0

		if f.intEnable && f.line != nil {
			f.line()
		}
	}
}

// NextEvent predicts the nearer of the window expiry and the operation
// completion.
func (f *Flash) NextEvent() sim.Cycle {
	next := sim.NoEvent

	if f.armed && f.armedTill < next {
		next = f.armedTill
	}
	if f.busy && f.doneAt < next {
		next = f.doneAt
	}

	return next
}

// ReadRegister returns the control/status register.
func (f *Flash) ReadRegister(reg uint8, _ sim.Cycle) uint8 {
	if reg != RegSPMCSR {
		log.Panicf("%s has no register %d", f.Name(), reg)
	}

	v := uint8(0)
	if f.armed {
		v |= CtrlArm
	}
	if f.busy {
		v |= CtrlBusy | f.busyOp
	}
	if f.intEnable {
		v |= CtrlIntEnable
	}

	return v
}

// WriteRegister applies a control write. Writing the arm bit together with
// an operation bit starts the operation; writing the arm bit alone opens a
// window that expires after four cycles. Writes while busy are ignored, as
// the hardware locks the register during an operation.
func (f *Flash) WriteRegister(reg uint8, value uint8, now sim.Cycle) {
	if reg != RegSPMCSR {
		log.Panicf("%s has no register %d", f.Name(), reg)
	}

	f.intEnable = value&CtrlIntEnable != 0

	if f.busy {
		return
	}

	if value&CtrlArm == 0 {
		f.armed = false
		return
	}

	switch {
	case value&CtrlPageErase != 0:
		f.armed = false
		f.busy = true
		f.busyOp = CtrlPageErase
		f.doneAt = now + EraseCycles
		f.erases++
	case value&CtrlPageWrite != 0:
		f.armed = false
		f.busy = true
		f.busyOp = CtrlPageWrite
		f.doneAt = now + WriteCycles
		f.writes++
	default:
		f.armed = true
		f.armedTill = now + ArmWindowCycles
	}
}

// State returns a snapshot of the flash sequencer.
func (f *Flash) State() any {
	return State{
		Armed:        f.armed,
		ArmedTill:    f.armedTill,
		Busy:         f.busy,
		BusyOp:       f.busyOp,
		DoneAt:       f.doneAt,
		IntEnable:    f.intEnable,
		Erases:       f.erases,
		Writes:       f.writes,
		LastAdvanced: f.LastAdvanced(),
	}
}

// Reset returns the flash sequencer to its power-on state.
func (f *Flash) Reset() {
	f.armed = false
	f.armedTill = 0
	f.busy = false
	f.busyOp = 0
	f.doneAt = 0
	f.intEnable = false
	f.erases = 0
	f.writes = 0
	f.ResetAdvance()
}
