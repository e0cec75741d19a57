// Package adc models an AVR-style analog-to-digital converter with a
// prescaled conversion clock and an optional free-running mode.
package adc

import (
	"log"

	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/sim"
)

// Register offsets within the ADC register block.
const (
	RegADMUX uint8 = iota // channel select
	RegADCSR              // control and status
	RegADCL               // result low byte
	RegADCH               // result high byte
)

// ADCSR bits.
const (
	CtrlPrescaleMask uint8 = 0x07
	CtrlIntEnable    uint8 = 1 << 3 // ADIE
	CtrlIntFlag      uint8 = 1 << 4 // ADIF, write one to clear
	CtrlAutoTrigger  uint8 = 1 << 5 // ADATE
	CtrlStart        uint8 = 1 << 6 // ADSC
	CtrlEnable       uint8 = 1 << 7 // ADEN
)

// Conversion lengths in ADC clocks. The first conversion after enabling also
// initializes the analog circuitry and takes nearly twice as long.
const (
	firstConversionClocks = 25
	conversionClocks      = 13
)

// prescaleDividers maps the prescaler-select field to a system-clock
// divider. Selection zero behaves as divide-by-two.
var prescaleDividers = [8]sim.Cycle{2, 2, 4, 8, 16, 32, 64, 128}

// A Sampler supplies the analog input for a channel as a 10-bit value.
type Sampler func(channel uint8) uint16

// An ADC is the analog-to-digital conversion unit. Its single predictable
// event is the completion of the running conversion.
type ADC struct {
	sim.PeripheralBase

	line    irq.Line
	sampler Sampler

	admux  uint8
	adcsr  uint8
	result uint16

	converting bool
	firstDone  bool
	doneAt     sim.Cycle
}

// State is the snapshot of the ADC's internal state.
type State struct {
	Mux          uint8     `json:"mux"`
	Control      uint8     `json:"control"`
	Result       uint16    `json:"result"`
	Converting   bool      `json:"converting"`
	FirstDone    bool      `json:"first_done"`
	DoneAt       sim.Cycle `json:"done_at"`
	LastAdvanced sim.Cycle `json:"last_advanced"`
}

// New creates an ADC. A nil sampler reads every channel as zero.
func New(name string, id sim.PeriphID, line irq.Line, sampler Sampler) *ADC {
	if sampler == nil {
		sampler = func(uint8) uint16 { return 0 }
	}

	return &ADC{
		PeripheralBase: sim.MakePeripheralBase(name, id),
		line:           line,
		sampler:        sampler,
	}
}

// Advance completes a conversion whose finish cycle the span crossed. In
// free-running mode the next conversion starts back to back, and a long span
// can complete several of them.
func (a *ADC) Advance(to sim.Cycle) {
	a.BeginAdvance(to)

	for a.converting && a.doneAt <= to {
		a.result = a.sampler(a.admux) & 0x3FF
		a.adcsr |= CtrlIntFlag
		a.firstDone = true

		if a.adcsr&CtrlIntEnable != 0 && a.line != nil {
			a.line()
		}

		if a.adcsr&CtrlAutoTrigger != 0 {
			a.doneAt += conversionClocks * a.divider()
		} else {
			a.converting = false
			a.adcsr &^= CtrlStart
		}
	}
}

// NextEvent predicts the completion of the running conversion, if any.
func (a *ADC) NextEvent() sim.Cycle {
	if !a.converting {
		return sim.NoEvent
	}

	return a.doneAt
}

// ReadRegister returns a register value.
func (a *ADC) ReadRegister(reg uint8, _ sim.Cycle) uint8 {
	switch reg {
	case RegADMUX:
		return a.admux
	case RegADCSR:
		return a.adcsr
	case RegADCL:
		return uint8(a.result)
	case RegADCH:
		return uint8(a.result >> 8)
	default:
		log.Panicf("%s has no register %d", a.Name(), reg)
		return 0
	}
}

// WriteRegister applies a register write.
func (a *ADC) WriteRegister(reg uint8, value uint8, now sim.Cycle) {
	switch reg {
	case RegADMUX:
		a.admux = value
	case RegADCSR:
		wasEnabled := a.adcsr&CtrlEnable != 0

		// The interrupt flag is write-one-to-clear; every other bit takes
		// the written value.
		flag := a.adcsr & CtrlIntFlag
		if value&CtrlIntFlag != 0 {
			flag = 0
		}
		a.adcsr = (value &^ CtrlIntFlag) | flag

		if a.adcsr&CtrlEnable == 0 {
			a.converting = false
			a.firstDone = false
			a.adcsr &^= CtrlStart
			return
		}

		if !wasEnabled {
			a.firstDone = false
		}

		if value&CtrlStart != 0 && !a.converting {
			clocks := sim.Cycle(conversionClocks)
			if !a.firstDone {
				clocks = firstConversionClocks
			}

			a.converting = true
			a.doneAt = now + clocks*a.divider()
		}
	default:
		log.Panicf("%s has no register %d", a.Name(), reg)
	}
}

// State returns a snapshot of the ADC.
func (a *ADC) State() any {
	return State{
		Mux:          a.admux,
		Control:      a.adcsr,
		Result:       a.result,
		Converting:   a.converting,
		FirstDone:    a.firstDone,
		DoneAt:       a.doneAt,
		LastAdvanced: a.LastAdvanced(),
	}
}

// Reset returns the ADC to its power-on state.
func (a *ADC) Reset() {
	a.admux = 0
	a.adcsr = 0
	a.result = 0
	a.converting = false
	a.firstDone = false
	a.doneAt = 0
	a.ResetAdvance()
}

func (a *ADC) divider() sim.Cycle {
	return prescaleDividers[a.adcsr&CtrlPrescaleMask]
}
