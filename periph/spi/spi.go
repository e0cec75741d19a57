// Package spi models an AVR-style SPI master: writing the data register
// shifts one byte out at a divided clock and flags completion.
package spi

import (
	"log"

	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/sim"
)

// Register offsets within the SPI register block.
const (
	RegSPCR uint8 = iota // control
	RegSPSR              // status
	RegSPDR              // data
)

// SPCR bits.
const (
	CtrlClockMask uint8 = 0x03   // clock-select field
	CtrlEnable    uint8 = 1 << 6 // SPE
	CtrlIntEnable uint8 = 1 << 7 // SPIE
)

// SPSR bits.
const (
	StatusDoubleSpeed uint8 = 1 << 0 // SPI2X
	StatusComplete    uint8 = 1 << 7 // SPIF
)

// clockDividers maps the clock-select field to a system-clock divider; the
// double-speed bit halves it.
var clockDividers = [4]sim.Cycle{4, 16, 64, 128}

// A Transfer function exchanges one byte with the connected slave device.
// It receives the shifted-out byte and returns the byte shifted in.
type Transfer func(out uint8) uint8

// An SPI is the serial peripheral interface unit. Its single predictable
// event is the completion of an in-flight byte transfer, 8 bit times after
// the data register write that started it.
type SPI struct {
	sim.PeripheralBase

	line     irq.Line
	transfer Transfer

	spcr uint8
	spsr uint8
	spdr uint8

	busy     bool
	shiftOut uint8
	doneAt   sim.Cycle
}

// State is the snapshot of the SPI unit's internal state.
type State struct {
	Control      uint8     `json:"control"`
	Status       uint8     `json:"status"`
	Data         uint8     `json:"data"`
	Busy         bool      `json:"busy"`
	DoneAt       sim.Cycle `json:"done_at"`
	LastAdvanced sim.Cycle `json:"last_advanced"`
}

// New creates an SPI unit. A nil transfer loops the shifted-out byte back.
func New(name string, id sim.PeriphID, line irq.Line, transfer Transfer) *SPI {
	if transfer == nil {
		transfer = func(out uint8) uint8 { return out }
	}

	return &SPI{
		PeripheralBase: sim.MakePeripheralBase(name, id),
		line:           line,
		transfer:       transfer,
	}
}

// Advance completes an in-flight transfer whose finish cycle the span
// crossed.
func (s *SPI) Advance(to sim.Cycle) {
	s.BeginAdvance(to)

	if !s.busy || to < s.doneAt {
		return
	}

	s.busy = false
	s.spdr = s.transfer(s.shiftOut)
	s.spsr |= StatusComplete

	if s.spcr&CtrlIntEnable != 0 && s.line != nil {
		s.line()
	}
}

// NextEvent predicts the completion of the in-flight transfer, if any.
func (s *SPI) NextEvent() sim.Cycle {
	if !s.busy {
		return sim.NoEvent
	}

	return s.doneAt
}

// ReadRegister returns a register value.
func (s *SPI) ReadRegister(reg uint8, _ sim.Cycle) uint8 {
	switch reg {
	case RegSPCR:
		return s.spcr
	case RegSPSR:
		return s.spsr
	case RegSPDR:
		return s.spdr
	default:
		log.Panicf("%s has no register %d", s.Name(), reg)
		return 0
	}
}

// WriteRegister applies a register write. Writing the data register while
// enabled starts a transfer; the completion flag clears on the write, as the
// hardware clears it on the access sequence.
func (s *SPI) WriteRegister(reg uint8, value uint8, now sim.Cycle) {
	switch reg {
	case RegSPCR:
		s.spcr = value
	case RegSPSR:
		s.spsr = (s.spsr &^ StatusDoubleSpeed) | (value & StatusDoubleSpeed)
	case RegSPDR:
		s.spdr = value
		s.spsr &^= StatusComplete

		if s.spcr&CtrlEnable == 0 {
			return
		}

		s.busy = true
		s.shiftOut = value
		s.doneAt = now + 8*s.bitTime()
	default:
		log.Panicf("%s has no register %d", s.Name(), reg)
	}
}

// State returns a snapshot of the SPI unit.
func (s *SPI) State() any {
	return State{
		Control:      s.spcr,
		Status:       s.spsr,
		Data:         s.spdr,
		Busy:         s.busy,
		DoneAt:       s.doneAt,
		LastAdvanced: s.LastAdvanced(),
	}
}

// Reset returns the SPI unit to its power-on state.
func (s *SPI) Reset() {
	s.spcr = 0
	s.spsr = 0
	s.spdr = 0
	s.busy = false
	s.shiftOut = 0
	s.doneAt = 0
	s.ResetAdvance()
}

func (s *SPI) bitTime() sim.Cycle {
	div := clockDividers[s.spcr&CtrlClockMask]
	if s.spsr&StatusDoubleSpeed != 0 {
		div /= 2
	}

	return div
}
