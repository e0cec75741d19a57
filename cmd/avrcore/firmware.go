package main

import (
	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/mcu"
	"github.com/sarchlab/avrcore/periph/adc"
	"github.com/sarchlab/avrcore/periph/pll"
	"github.com/sarchlab/avrcore/periph/spi"
	"github.com/sarchlab/avrcore/periph/timer"
	"github.com/sarchlab/avrcore/sim"
)

// demoFirmware is a synthetic instruction stream. It boots by programming
// the peripherals, then spins while serving interrupts.
type demoFirmware struct {
	bus  *mcu.Bus
	irqs *irq.Controller

	boot []bootOp
	pc   int

	interrupts    map[irq.Vector]uint64
	lastADCSample uint16
}

type bootOp struct {
	addr  uint8
	value uint8
}

func newDemoFirmware() *demoFirmware {
	return &demoFirmware{
		boot: []bootOp{
			// Timer1: CTC on compare A every 250 ticks, divider 64.
			{mcu.AddrTimer1 + timer.RegOCRAL, 250},
			{mcu.AddrTimer1 + timer.RegTIMSK, timer.FlagCompareA},
			{mcu.AddrTimer1 + timer.RegTCCR, 0x08 | 0x03},

			// Timer0: free-running with overflow interrupts, divider 1024.
			{mcu.AddrTimer0 + timer.RegTIMSK, timer.FlagOverflow},
			{mcu.AddrTimer0 + timer.RegTCCR, 0x05},

			// ADC: free-running conversions on channel 0, divider 128.
			{mcu.AddrADC + adc.RegADMUX, 0},
			{mcu.AddrADC + adc.RegADCSR,
				adc.CtrlEnable | adc.CtrlStart | adc.CtrlAutoTrigger |
					adc.CtrlIntEnable | 0x07},

			// PLL on.
			{mcu.AddrPLL, pll.CtrlEnable},

			// SPI: enabled with interrupts, clock divider 16, and a first
			// byte on the wire.
			{mcu.AddrSPI + spi.RegSPCR,
				spi.CtrlEnable | spi.CtrlIntEnable | 0x01},
			{mcu.AddrSPI + spi.RegSPDR, 0xA5},
		},
		interrupts: map[irq.Vector]uint64{},
	}
}

// attach wires the firmware to the built machine.
func (f *demoFirmware) attach(m *mcu.Machine) {
	f.bus = m.Bus()
	f.irqs = m.IRQ()
}

// ExecuteNext runs one instruction and returns its cycle cost.
func (f *demoFirmware) ExecuteNext(now sim.Cycle) sim.Cycle {
	if v, ok := f.irqs.Acknowledge(); ok {
		return f.serve(v, now)
	}

	if f.pc < len(f.boot) {
		op := f.boot[f.pc]
		f.pc++
		f.bus.Write(op.addr, op.value, now)

		return 1
	}

	// Idle spin.
	return 1
}

// serve emulates an interrupt dispatch plus the handler body, costing four
// cycles.
func (f *demoFirmware) serve(v irq.Vector, now sim.Cycle) sim.Cycle {
	f.interrupts[v]++

	switch v {
	case mcu.VecTimer1Compare:
		// Clear the flag the timer latched.
		f.bus.Write(mcu.AddrTimer1+timer.RegTIFR, timer.FlagCompareA, now)
	case mcu.VecTimer0Overflow:
		f.bus.Write(mcu.AddrTimer0+timer.RegTIFR, timer.FlagOverflow, now)
	case mcu.VecADCComplete:
		low := f.bus.Read(mcu.AddrADC+adc.RegADCL, now)
		high := f.bus.Read(mcu.AddrADC+adc.RegADCH, now)
		f.lastADCSample = uint16(high)<<8 | uint16(low)
	case mcu.VecSPIComplete:
		// Read the answer and push the next byte.
		in := f.bus.Read(mcu.AddrSPI+spi.RegSPDR, now)
		f.bus.Write(mcu.AddrSPI+spi.RegSPDR, in, now)
	}

	return 4
}

func (f *demoFirmware) totalInterrupts() uint64 {
	var total uint64
	for _, n := range f.interrupts {
		total += n
	}

	return total
}
