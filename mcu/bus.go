package mcu

import (
	"log"

	"github.com/sarchlab/avrcore/sim"
)

// Bus dispatches data-space accesses. Addresses mapped to a peripheral are
// routed through its register interface; everything else behaves as plain
// RAM. Every peripheral access follows the same discipline: the peripheral
// is advanced to the access cycle first, the register operation is applied,
// and the scheduler entry is refreshed from the peripheral's new prediction.
type Bus struct {
	sched *sim.Scheduler

	owners [256]sim.Peripheral
	regs   [256]uint8
	ram    [256]uint8

	accessed bool
}

// NewBus creates a Bus whose peripheral accesses maintain entries in sched.
func NewBus(sched *sim.Scheduler) *Bus {
	return &Bus{sched: sched}
}

// Map routes addr to register reg of peripheral p.
func (b *Bus) Map(p sim.Peripheral, addr uint8, reg uint8) {
	if b.owners[addr] != nil {
		log.Panicf("address %#02x is already mapped to %s",
			addr, b.owners[addr].Name())
	}

	b.owners[addr] = p
	b.regs[addr] = reg
}

// MapBlock routes n consecutive addresses starting at base to registers
// 0..n-1 of peripheral p.
func (b *Bus) MapBlock(p sim.Peripheral, base uint8, n int) {
	for i := 0; i < n; i++ {
		b.Map(p, base+uint8(i), uint8(i))
	}
}

// Read returns the value at addr as observed at cycle now.
func (b *Bus) Read(addr uint8, now sim.Cycle) uint8 {
	p := b.owners[addr]
	if p == nil {
		return b.ram[addr]
	}

	b.accessed = true
	p.Advance(now)
	v := p.ReadRegister(b.regs[addr], now)
	sim.Reschedule(b.sched, p)

	return v
}

// Write stores value at addr at cycle now.
func (b *Bus) Write(addr uint8, value uint8, now sim.Cycle) {
	p := b.owners[addr]
	if p == nil {
		b.ram[addr] = value
		return
	}

	b.accessed = true
	p.Advance(now)
	p.WriteRegister(b.regs[addr], value, now)
	sim.Reschedule(b.sched, p)
}

// TakeAccessMark reports whether a peripheral register was accessed since
// the previous call, and clears the mark.
func (b *Bus) TakeAccessMark() bool {
	a := b.accessed
	b.accessed = false
	return a
}
