package mcu

import (
	"github.com/rs/xid"

	"github.com/sarchlab/avrcore/cpu"
	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/periph/adc"
	"github.com/sarchlab/avrcore/periph/flash"
	"github.com/sarchlab/avrcore/periph/pll"
	"github.com/sarchlab/avrcore/periph/spi"
	"github.com/sarchlab/avrcore/periph/timer"
	"github.com/sarchlab/avrcore/sim"
)

// resetter is implemented by every peripheral in the standard set.
type resetter interface {
	Reset()
}

// Machine is a fully wired microcontroller: a scheduler, an execution loop,
// an interrupt controller, a memory bus, and the standard peripheral set.
type Machine struct {
	id string

	sched *sim.Scheduler
	bus   *Bus
	irqs  *irq.Controller
	loop  *cpu.Loop

	periphs []sim.Peripheral
}

// ID returns the unique identity of this machine instance.
func (m *Machine) ID() string {
	return m.id
}

// Scheduler returns the machine's event scheduler.
func (m *Machine) Scheduler() *sim.Scheduler {
	return m.sched
}

// Bus returns the machine's data-space bus.
func (m *Machine) Bus() *Bus {
	return m.bus
}

// IRQ returns the machine's interrupt controller.
func (m *Machine) IRQ() *irq.Controller {
	return m.irqs
}

// Loop returns the machine's execution loop.
func (m *Machine) Loop() *cpu.Loop {
	return m.loop
}

// Peripherals returns the machine's peripherals, ordered by identity.
func (m *Machine) Peripherals() []sim.Peripheral {
	return m.periphs
}

// PeripheralByName returns the peripheral with the given name, or nil.
func (m *Machine) PeripheralByName(name string) sim.Peripheral {
	for _, p := range m.periphs {
		if p.Name() == name {
			return p
		}
	}

	return nil
}

// Reset returns every peripheral and the interrupt controller to their
// power-on state and clears all scheduler entries.
func (m *Machine) Reset() {
	for _, p := range m.periphs {
		p.(resetter).Reset()
		m.sched.Unschedule(p.ID())
	}

	m.irqs.Reset()
}

func (m *Machine) wire(
	src cpu.InstructionSource,
	transfer spi.Transfer,
	sampler adc.Sampler,
) {
	m.id = xid.New().String()
	m.sched = sim.NewScheduler()
	m.bus = NewBus(m.sched)
	m.irqs = irq.NewController()

	timers := []struct {
		name       string
		id         sim.PeriphID
		width      int
		addr       uint8
		vecCompare irq.Vector
		vecOvf     irq.Vector
	}{
		{"Timer0", IDTimer0, 8, AddrTimer0, VecTimer0Compare, VecTimer0Overflow},
		{"Timer1", IDTimer1, 16, AddrTimer1, VecTimer1Compare, VecTimer1Overflow},
		{"Timer3", IDTimer3, 16, AddrTimer3, VecTimer3Compare, VecTimer3Overflow},
		{"Timer4", IDTimer4, 8, AddrTimer4, VecTimer4Compare, VecTimer4Overflow},
	}
	for _, tc := range timers {
		t := timer.New(tc.name, tc.id, tc.width, timer.Lines{
			Overflow: m.irqs.Line(tc.vecOvf),
			CompareA: m.irqs.Line(tc.vecCompare),
			CompareB: m.irqs.Line(tc.vecCompare),
		})
		m.addPeripheral(t, tc.addr, 9)
	}

	m.addPeripheral(
		spi.New("SPI", IDSPI, m.irqs.Line(VecSPIComplete), transfer),
		AddrSPI, 3)
	m.addPeripheral(
		adc.New("ADC", IDADC, m.irqs.Line(VecADCComplete), sampler),
		AddrADC, 4)
	m.addPeripheral(pll.New("PLL", IDPLL), AddrPLL, 1)
	m.addPeripheral(
		flash.New("Flash", IDFlash, m.irqs.Line(VecSPMReady)),
		AddrFlash, 1)

	m.loop = cpu.NewLoop(m.sched, src, m.bus)
	for _, p := range m.periphs {
		m.loop.RegisterPeripheral(p)
	}
}

func (m *Machine) addPeripheral(p sim.Peripheral, base uint8, regs int) {
	m.periphs = append(m.periphs, p)
	m.bus.MapBlock(p, base, regs)
}
