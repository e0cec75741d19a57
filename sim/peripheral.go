package sim

import "log"

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// A Peripheral is an emulated hardware unit that advances independently of
// instruction execution.
//
// Peripheral state is only valid as of the cycle it was last advanced to.
// Callers must bring a peripheral current with Advance before reading its
// state or asking for a new prediction. The register bus and the execution
// loop's settle phase are the only two callers and both follow the
// advance, access, reschedule order.
type Peripheral interface {
	Named

	// ID returns the dense identity the scheduler files this peripheral
	// under.
	ID() PeriphID

	// Advance updates internal state as if the peripheral had been simulated
	// continuously up to the given cycle, raising any interrupt flags that
	// assert within the crossed span. Advancing to the current cycle is a
	// no-op. Advancing backwards is a programming error.
	Advance(to Cycle)

	// NextEvent predicts the next cycle at which the peripheral's externally
	// observable behavior changes, or NoEvent when no future event follows
	// from the current configuration. NextEvent is a pure function of
	// current state.
	NextEvent() Cycle

	// ReadRegister returns the value of one control/status/data register.
	// The caller has already advanced the peripheral to now.
	ReadRegister(reg uint8, now Cycle) uint8

	// WriteRegister applies a register write effect. The caller has already
	// advanced the peripheral to now and reschedules afterwards.
	WriteRegister(reg uint8, value uint8, now Cycle)

	// State returns a snapshot of the peripheral's internal state.
	State() any
}

// Reschedule aligns the scheduler's entry for p with p's current prediction.
//
// Schedule alone can only move an entry earlier, so a stale entry is cleared
// first whenever the prediction changed. After the call the scheduler holds
// exactly NextEvent's result, or nothing when the peripheral predicts no
// event.
func Reschedule(s *Scheduler, p Peripheral) {
	next := p.NextEvent()

	if pending, ok := s.Pending(p.ID()); ok {
		if pending == next {
			return
		}
		s.Unschedule(p.ID())
	}

	if next != NoEvent {
		s.Schedule(p.ID(), next)
	}
}

// PeripheralBase carries the identity and freshness bookkeeping every
// peripheral shares.
type PeripheralBase struct {
	name         string
	id           PeriphID
	lastAdvanced Cycle
}

// MakePeripheralBase creates a PeripheralBase.
func MakePeripheralBase(name string, id PeriphID) PeripheralBase {
	return PeripheralBase{name: name, id: id}
}

// Name returns the name of the peripheral.
func (b *PeripheralBase) Name() string {
	return b.name
}

// ID returns the peripheral's scheduler identity.
func (b *PeripheralBase) ID() PeriphID {
	return b.id
}

// LastAdvanced returns the cycle the peripheral's state is current as of.
func (b *PeripheralBase) LastAdvanced() Cycle {
	return b.lastAdvanced
}

// BeginAdvance moves the freshness mark to the given cycle and returns the
// number of cycles crossed. Moving backwards indicates a defect in the
// caller's ordering, never a property of emulated input, and panics.
func (b *PeripheralBase) BeginAdvance(to Cycle) Cycle {
	if to < b.lastAdvanced {
		log.Panicf("%s advanced backwards, from cycle %d to %d",
			b.name, b.lastAdvanced, to)
	}

	elapsed := to - b.lastAdvanced
	b.lastAdvanced = to

	return elapsed
}

// ResetAdvance rewinds the freshness mark to cycle zero, for machine reset.
func (b *PeripheralBase) ResetAdvance() {
	b.lastAdvanced = 0
}
