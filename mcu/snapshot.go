package mcu

import "github.com/sarchlab/avrcore/sim"

// PeripheralSnapshot captures one peripheral at a snapshot cycle.
type PeripheralSnapshot struct {
	Name      string       `json:"name"`
	ID        sim.PeriphID `json:"id"`
	NextEvent sim.Cycle    `json:"next_event"`
	State     any          `json:"state"`
}

// Snapshot captures the complete observable state of a machine at one cycle.
type Snapshot struct {
	MachineID   string               `json:"machine_id"`
	Cycle       sim.Cycle            `json:"cycle"`
	Scheduler   []sim.Entry          `json:"scheduler"`
	Peripherals []PeripheralSnapshot `json:"peripherals"`
	PendingIRQs uint64               `json:"pending_irqs"`
}

// Snapshot captures the machine's current state. Every peripheral is
// advanced to the current cycle first, so the snapshot is exact rather
// than lazily deferred.
func (m *Machine) Snapshot() Snapshot {
	now := m.loop.Now()

	s := Snapshot{
		MachineID: m.id,
		Cycle:     now,
	}

	for _, p := range m.periphs {
		p.Advance(now)
		sim.Reschedule(m.sched, p)

		s.Peripherals = append(s.Peripherals, PeripheralSnapshot{
			Name:      p.Name(),
			ID:        p.ID(),
			NextEvent: p.NextEvent(),
			State:     p.State(),
		})
	}

	s.Scheduler = m.sched.Entries()
	s.PendingIRQs = m.irqs.PendingMask()

	return s
}
