package mcu

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/avrcore/periph/timer"
	"github.com/sarchlab/avrcore/sim"
)

// programOp is one scripted instruction: an optional bus operation plus a
// cycle cost.
type programOp struct {
	cost sim.Cycle
	run  func(b *Bus, now sim.Cycle)
}

func write(addr uint8, value uint8) programOp {
	return programOp{
		cost: 1,
		run: func(b *Bus, now sim.Cycle) {
			b.Write(addr, value, now)
		},
	}
}

// program is a scripted instruction source. Once the script runs out it
// spins on one-cycle no-ops.
type program struct {
	bus *Bus
	ops []programOp
	pc  int
}

func (p *program) ExecuteNext(now sim.Cycle) sim.Cycle {
	if p.pc >= len(p.ops) {
		return 1
	}

	op := p.ops[p.pc]
	p.pc++

	if op.run != nil {
		op.run(p.bus, now)
	}

	return op.cost
}

func buildMachine(ops ...programOp) (*Machine, *program) {
	src := &program{ops: ops}
	m := MakeBuilder().
		WithInstructionSource(src).
		Build()
	src.bus = m.Bus()

	return m, src
}

var _ = Describe("Builder", func() {
	It("should wire the standard peripheral set", func() {
		m, _ := buildMachine()

		Expect(m.ID()).NotTo(BeEmpty())
		Expect(m.Peripherals()).To(HaveLen(int(NumPeripherals)))
		Expect(m.PeripheralByName("Timer1").ID()).To(Equal(IDTimer1))
		Expect(m.PeripheralByName("ADC").ID()).To(Equal(IDADC))
		Expect(m.PeripheralByName("nope")).To(BeNil())
	})

	It("should refuse to build without an instruction source", func() {
		Expect(func() {
			MakeBuilder().Build()
		}).To(Panic())
	})
})

var _ = Describe("Bus", func() {
	var m *Machine

	BeforeEach(func() {
		m, _ = buildMachine()
	})

	It("should treat unmapped addresses as RAM", func() {
		m.Bus().Write(0xE0, 0x5A, 0)

		Expect(m.Bus().Read(0xE0, 0)).To(Equal(uint8(0x5A)))
		Expect(m.Bus().TakeAccessMark()).To(BeFalse())
	})

	It("should mark peripheral accesses", func() {
		m.Bus().Write(AddrTimer0+timer.RegOCRAL, 10, 0)

		Expect(m.Bus().TakeAccessMark()).To(BeTrue())
		Expect(m.Bus().TakeAccessMark()).To(BeFalse())
	})

	It("should refuse double mapping", func() {
		Expect(func() {
			m.Bus().Map(m.PeripheralByName("SPI"), AddrTimer0, 0)
		}).To(Panic())
	})

	It("should keep the scheduler in sync with every access", func() {
		rng := rand.New(rand.NewSource(7))

		now := sim.Cycle(0)
		for i := 0; i < 2000; i++ {
			now += sim.Cycle(rng.Intn(50))
			reg := uint8(rng.Intn(9))
			m.Bus().Write(AddrTimer1+reg, uint8(rng.Intn(256)), now)

			p := m.PeripheralByName("Timer1")
			next := p.NextEvent()
			cycle, ok := m.Scheduler().Pending(IDTimer1)
			if next == sim.NoEvent {
				Expect(ok).To(BeFalse())
			} else {
				Expect(ok).To(BeTrue())
				Expect(cycle).To(Equal(next))
			}
		}
	})
})

var _ = Describe("Machine", func() {
	It("should fire a timer compare interrupt at the predicted cycle", func() {
		m, _ := buildMachine(
			write(AddrTimer1+timer.RegOCRAL, 100),
			write(AddrTimer1+timer.RegTIMSK, timer.FlagCompareA),
			write(AddrTimer1+timer.RegTCCR, 0x02), // divider 8, normal mode
		)

		m.Loop().RunUntil(700)
		Expect(m.IRQ().IsRaised(VecTimer1Compare)).To(BeFalse())

		// The timer starts counting at cycle 2, so the hundredth tick
		// lands at cycle 802.
		m.Loop().RunUntil(1000)
		Expect(m.IRQ().IsRaised(VecTimer1Compare)).To(BeTrue())

		tifr := m.Bus().Read(AddrTimer1+timer.RegTIFR, m.Loop().Now())
		Expect(tifr & timer.FlagCompareA).NotTo(BeZero())
	})

	It("should settle simultaneous events from several peripherals", func() {
		// Timer0 starts at cycle 5 with divider 8 and compare 100; Timer1
		// starts at cycle 6 with divider 1 and compare 799. Both match at
		// cycle 805.
		m, _ := buildMachine(
			write(AddrTimer0+timer.RegOCRAL, 100),
			write(AddrTimer0+timer.RegTIMSK, timer.FlagCompareA),
			write(AddrTimer1+timer.RegOCRAH, 799>>8),
			write(AddrTimer1+timer.RegOCRAL, 799&0xFF),
			write(AddrTimer1+timer.RegTIMSK, timer.FlagCompareA),
			write(AddrTimer0+timer.RegTCCR, 0x02),
			write(AddrTimer1+timer.RegTCCR, 0x01),
		)

		m.Loop().RunUntil(805)

		Expect(m.IRQ().IsRaised(VecTimer0Compare)).To(BeTrue())
		Expect(m.IRQ().IsRaised(VecTimer1Compare)).To(BeTrue())
	})

	It("should acknowledge interrupts in priority order", func() {
		m, _ := buildMachine(
			write(AddrTimer0+timer.RegOCRAL, 100),
			write(AddrTimer0+timer.RegTIMSK, timer.FlagCompareA),
			write(AddrTimer1+timer.RegOCRAH, 799>>8),
			write(AddrTimer1+timer.RegOCRAL, 799&0xFF),
			write(AddrTimer1+timer.RegTIMSK, timer.FlagCompareA),
			write(AddrTimer0+timer.RegTCCR, 0x02),
			write(AddrTimer1+timer.RegTCCR, 0x01),
		)

		m.Loop().RunUntil(805)

		v, ok := m.IRQ().Acknowledge()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(VecTimer0Compare))

		v, ok = m.IRQ().Acknowledge()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(VecTimer1Compare))

		_, ok = m.IRQ().Acknowledge()
		Expect(ok).To(BeFalse())
	})

	It("should reset to power-on state", func() {
		m, _ := buildMachine(
			write(AddrTimer1+timer.RegOCRAL, 100),
			write(AddrTimer1+timer.RegTIMSK, timer.FlagCompareA),
			write(AddrTimer1+timer.RegTCCR, 0x02),
		)

		m.Loop().RunUntil(1000)
		Expect(m.Scheduler().Len()).NotTo(BeZero())

		m.Reset()

		Expect(m.Scheduler().Len()).To(BeZero())
		Expect(m.IRQ().Pending()).To(BeFalse())

		st := m.PeripheralByName("Timer1").State().(timer.State)
		Expect(st.Counter).To(BeZero())
		Expect(st.Control).To(BeZero())
	})
})

var _ = Describe("Snapshot", func() {
	It("should capture every peripheral exactly at the current cycle", func() {
		m, _ := buildMachine(
			write(AddrTimer1+timer.RegOCRAL, 100),
			write(AddrTimer1+timer.RegTCCR, 0x02),
		)

		m.Loop().RunUntil(500)

		s := m.Snapshot()

		Expect(s.MachineID).To(Equal(m.ID()))
		Expect(s.Cycle).To(Equal(m.Loop().Now()))
		Expect(s.Peripherals).To(HaveLen(int(NumPeripherals)))

		for _, ps := range s.Peripherals {
			Expect(ps.State).NotTo(BeNil())
		}

		// The running timer was brought current by the snapshot.
		var t1 PeripheralSnapshot
		for _, ps := range s.Peripherals {
			if ps.ID == IDTimer1 {
				t1 = ps
			}
		}
		Expect(t1.Name).To(Equal("Timer1"))
		st := t1.State.(timer.State)
		Expect(st.LastAdvanced).To(Equal(s.Cycle))

		for _, e := range s.Scheduler {
			Expect(e.Cycle).To(BeNumerically(">", s.Cycle))
		}
	})
})
