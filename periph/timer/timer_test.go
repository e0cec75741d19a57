package timer

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/avrcore/sim"
)

// tccr builds a control value from a waveform mode and a clock-select field.
func tccr(mode WaveformMode, clockSelect uint8) uint8 {
	return uint8(mode)<<modeShift | clockSelect
}

var _ = Describe("Timer", func() {
	var (
		t         *Timer
		overflows int
		matchesA  int
		matchesB  int
	)

	BeforeEach(func() {
		overflows, matchesA, matchesB = 0, 0, 0
		t = New("Timer1", 1, 16, Lines{
			Overflow: func() { overflows++ },
			CompareA: func() { matchesA++ },
			CompareB: func() { matchesB++ },
		})
	})

	It("should predict no event while stopped", func() {
		Expect(t.NextEvent()).To(Equal(sim.NoEvent))
	})

	It("should predict the first compare match through the prescaler", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0) // divide by 8

		Expect(t.NextEvent()).To(Equal(sim.Cycle(800)))
	})

	It("should keep the prediction stable across partial advances", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0)

		t.Advance(5)
		Expect(t.NextEvent()).To(Equal(sim.Cycle(800)))

		t.Advance(797)
		Expect(t.NextEvent()).To(Equal(sim.Cycle(800)))
	})

	It("should raise the compare flag when the span crosses the match", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0)
		t.WriteRegister(RegTIMSK, FlagCompareA, 0)

		t.Advance(800)

		Expect(t.ReadRegister(RegTIFR, 800) & FlagCompareA).NotTo(BeZero())
		Expect(matchesA).To(Equal(1))
		Expect(t.ReadRegister(RegTCNTL, 800)).To(Equal(uint8(100)))
	})

	It("should not fire a masked interrupt line", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0)

		t.Advance(800)

		Expect(t.ReadRegister(RegTIFR, 800) & FlagCompareA).NotTo(BeZero())
		Expect(matchesA).To(Equal(0))
	})

	It("should fire when unmasking an already-pending flag", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0)
		t.Advance(800)

		t.WriteRegister(RegTIMSK, FlagCompareA, 800)

		Expect(matchesA).To(Equal(1))
	})

	It("should clear flags on a write-one-to-clear", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0)
		t.Advance(800)

		t.WriteRegister(RegTIFR, FlagCompareA, 800)

		Expect(t.ReadRegister(RegTIFR, 800)).To(Equal(uint8(0)))
	})

	It("should count every event in a long span", func() {
		t.WriteRegister(RegOCRAL, 10, 0)
		t.WriteRegister(RegTCCR, tccr(ModeCTC, 1), 0) // divide by 1
		t.WriteRegister(RegTIMSK, FlagCompareA, 0)

		// CTC period is top+1 ticks: matches at ticks 10, 21, ..., 109,
		// and the tick after the tenth match wraps the counter to zero.
		t.Advance(110)

		Expect(matchesA).To(Equal(10))
		Expect(t.ReadRegister(RegTCNTL, 110)).To(Equal(uint8(0)))
	})

	It("should wrap to zero on the tick after a CTC match", func() {
		t.WriteRegister(RegOCRAL, 10, 0)
		t.WriteRegister(RegTCCR, tccr(ModeCTC, 1), 0)

		t.Advance(11)

		Expect(t.ReadRegister(RegTCNTL, 11)).To(Equal(uint8(0)))
	})

	It("should free-run to max when the counter is above the CTC top", func() {
		t.WriteRegister(RegOCRAL, 10, 0)
		t.WriteRegister(RegTCCR, tccr(ModeCTC, 1), 0)
		t.WriteRegister(RegTCNTH, 0xFF, 0)
		t.WriteRegister(RegTCNTL, 0xFE, 0)
		t.WriteRegister(RegTIMSK, FlagOverflow, 0)

		t.Advance(2)

		Expect(overflows).To(Equal(1))
		Expect(t.ReadRegister(RegTCNTL, 2)).To(Equal(uint8(0)))
	})

	It("should overflow at top in fast PWM", func() {
		t.WriteRegister(RegOCRAL, 99, 0)
		t.WriteRegister(RegTCCR, tccr(ModeFastPWM, 1), 0)
		t.WriteRegister(RegTIMSK, FlagOverflow|FlagCompareA, 0)

		t.Advance(99)

		Expect(overflows).To(Equal(1))
		Expect(matchesA).To(Equal(1))
	})

	It("should predict the second compare channel", func() {
		t.WriteRegister(RegOCRAL, 200, 0)
		t.WriteRegister(RegOCRBL, 50, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 1), 0)

		Expect(t.NextEvent()).To(Equal(sim.Cycle(50)))

		t.Advance(50)
		Expect(t.ReadRegister(RegTIFR, 50)).To(Equal(FlagCompareB))
		Expect(t.NextEvent()).To(Equal(sim.Cycle(200)))
	})

	It("should access the 16-bit counter through the temp register", func() {
		t.WriteRegister(RegTCNTH, 0x12, 0)
		t.WriteRegister(RegTCNTL, 0x34, 0)

		Expect(t.ReadRegister(RegTCNTL, 0)).To(Equal(uint8(0x34)))
		Expect(t.ReadRegister(RegTCNTH, 0)).To(Equal(uint8(0x12)))
	})

	It("should reset to power-on state", func() {
		t.WriteRegister(RegOCRAL, 100, 0)
		t.WriteRegister(RegTCCR, tccr(ModeNormal, 2), 0)
		t.Advance(800)

		t.Reset()

		state := t.State().(State)
		Expect(state).To(Equal(State{}))
		Expect(t.NextEvent()).To(Equal(sim.NoEvent))
	})

	Describe("phase-correct mode", func() {
		var t8 *Timer

		BeforeEach(func() {
			t8 = New("Timer0", 0, 8, Lines{
				Overflow: func() { overflows++ },
				CompareA: func() { matchesA++ },
			})
			t8.WriteRegister(RegOCRAL, 100, 0)
			t8.WriteRegister(RegTCCR, tccr(ModePhaseCorrect, 1), 0)
		})

		It("should match on the way up", func() {
			Expect(t8.NextEvent()).To(Equal(sim.Cycle(100)))

			t8.Advance(100)
			Expect(t8.ReadRegister(RegTIFR, 100)).To(Equal(FlagCompareA))
		})

		It("should match again on the way down", func() {
			t8.Advance(100)
			t8.WriteRegister(RegTIFR, FlagCompareA, 100)

			// Top is 255: turnaround at tick 255, down through 100 at
			// tick 255 + 155 = 410.
			Expect(t8.NextEvent()).To(Equal(sim.Cycle(410)))

			t8.Advance(410)
			Expect(t8.ReadRegister(RegTIFR, 410)).To(Equal(FlagCompareA))

			state := t8.State().(State)
			Expect(state.CountingDown).To(BeTrue())
			Expect(state.Counter).To(Equal(uint16(100)))
		})

		It("should overflow at the bottom", func() {
			// Full dual-slope period: up 255 ticks, down 255 ticks.
			t8.Advance(510)

			Expect(t8.ReadRegister(RegTIFR, 510) & FlagOverflow).NotTo(BeZero())

			state := t8.State().(State)
			Expect(state.Counter).To(Equal(uint16(0)))
			Expect(state.CountingDown).To(BeFalse())
		})
	})

	It("should panic when advanced backwards", func() {
		t.Advance(100)
		Expect(func() { t.Advance(99) }).To(Panic())
	})
})
