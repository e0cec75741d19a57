package cpu

import (
	gomock "go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/avrcore/sim"
)

// tickCounter is a minimal peripheral that fires once every period cycles.
type tickCounter struct {
	sim.PeripheralBase

	period sim.Cycle
	fired  int
}

func newTickCounter(id sim.PeriphID, period sim.Cycle) *tickCounter {
	return &tickCounter{
		PeripheralBase: sim.MakePeripheralBase("TickCounter", id),
		period:         period,
	}
}

func (t *tickCounter) Advance(to sim.Cycle) {
	t.BeginAdvance(to)
	t.fired = int(to / t.period)
}

func (t *tickCounter) NextEvent() sim.Cycle {
	return (sim.Cycle(t.fired) + 1) * t.period
}

func (t *tickCounter) ReadRegister(_ uint8, _ sim.Cycle) uint8 { return 0 }

func (t *tickCounter) WriteRegister(_, _ uint8, _ sim.Cycle) {}

func (t *tickCounter) State() any { return t.fired }

var _ = Describe("Loop", func() {
	var (
		mockCtrl *gomock.Controller
		sched    *sim.Scheduler
		src      *MockInstructionSource
		bus      *MockAccessMarker
		loop     *Loop
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sched = sim.NewScheduler()
		src = NewMockInstructionSource(mockCtrl)
		bus = NewMockAccessMarker(mockCtrl)
		loop = NewLoop(sched, src, bus)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should run a batch up to the cap when nothing is scheduled", func() {
		loop.SetBatchCycles(16)
		src.EXPECT().ExecuteNext(gomock.Any()).Return(sim.Cycle(1)).Times(16)
		bus.EXPECT().TakeAccessMark().Return(false).Times(16)

		loop.StepBatch(sim.NoEvent)

		Expect(loop.Now()).To(Equal(sim.Cycle(16)))
	})

	It("should bound the batch by the nearest pending event", func() {
		periph := NewMockPeripheral(mockCtrl)
		periph.EXPECT().ID().Return(sim.PeriphID(2)).AnyTimes()
		loop.RegisterPeripheral(periph)

		sched.Schedule(2, 10)
		src.EXPECT().ExecuteNext(gomock.Any()).Return(sim.Cycle(3)).Times(4)
		bus.EXPECT().TakeAccessMark().Return(false).Times(4)
		periph.EXPECT().Advance(sim.Cycle(12))
		periph.EXPECT().NextEvent().Return(sim.Cycle(100))

		loop.StepBatch(sim.NoEvent)

		Expect(loop.Now()).To(Equal(sim.Cycle(12)))

		pending, _ := sched.Pending(2)
		Expect(pending).To(Equal(sim.Cycle(100)))
	})

	It("should end the batch on a register access", func() {
		loop.SetBatchCycles(100)
		src.EXPECT().ExecuteNext(gomock.Any()).Return(sim.Cycle(1)).Times(2)
		gomock.InOrder(
			bus.EXPECT().TakeAccessMark().Return(false),
			bus.EXPECT().TakeAccessMark().Return(true),
		)

		loop.StepBatch(sim.NoEvent)

		Expect(loop.Now()).To(Equal(sim.Cycle(2)))
	})

	It("should settle simultaneous events in the same phase", func() {
		periphA := NewMockPeripheral(mockCtrl)
		periphA.EXPECT().ID().Return(sim.PeriphID(1)).AnyTimes()
		periphB := NewMockPeripheral(mockCtrl)
		periphB.EXPECT().ID().Return(sim.PeriphID(2)).AnyTimes()
		loop.RegisterPeripheral(periphA)
		loop.RegisterPeripheral(periphB)

		sched.Schedule(1, 500)
		sched.Schedule(2, 500)

		src.EXPECT().ExecuteNext(gomock.Any()).Return(sim.Cycle(500))
		bus.EXPECT().TakeAccessMark().Return(false)

		advanceA := periphA.EXPECT().Advance(sim.Cycle(500))
		periphA.EXPECT().NextEvent().Return(sim.Cycle(900))
		periphB.EXPECT().Advance(sim.Cycle(500)).After(advanceA)
		periphB.EXPECT().NextEvent().Return(sim.Cycle(1000))

		loop.StepBatch(sim.NoEvent)

		Expect(loop.Now()).To(Equal(sim.Cycle(500)))
		Expect(sched.Len()).To(Equal(2))
	})

	It("should produce the same result as per-instruction settling", func() {
		costs := []sim.Cycle{1, 3, 2, 7, 1, 4, 2, 2, 5, 1}
		target := sim.Cycle(100000)

		// Reference: settle the peripheral after every single instruction.
		ref := newTickCounter(0, 17)
		refNow := sim.Cycle(0)
		for i := 0; refNow < target; i++ {
			refNow += costs[i%len(costs)]
			ref.Advance(refNow)
		}

		periph := newTickCounter(0, 17)
		loop.RegisterPeripheral(periph)
		sim.Reschedule(sched, periph)

		i := 0
		src.EXPECT().ExecuteNext(gomock.Any()).DoAndReturn(
			func(_ sim.Cycle) sim.Cycle {
				cost := costs[i%len(costs)]
				i++
				return cost
			}).AnyTimes()
		bus.EXPECT().TakeAccessMark().Return(false).AnyTimes()

		loop.RunUntil(target)
		periph.Advance(loop.Now())

		Expect(loop.Now()).To(Equal(refNow))
		Expect(periph.fired).To(Equal(ref.fired))
	})

	It("should stop at a batch boundary when the stop condition holds", func() {
		loop.SetBatchCycles(8)
		loop.RegisterStopCondition(func() bool { return loop.Now() >= 24 })

		src.EXPECT().ExecuteNext(gomock.Any()).Return(sim.Cycle(1)).Times(24)
		bus.EXPECT().TakeAccessMark().Return(false).Times(24)

		loop.Run()

		Expect(loop.Now()).To(Equal(sim.Cycle(24)))
	})

	It("should panic on a zero-cost instruction", func() {
		src.EXPECT().ExecuteNext(gomock.Any()).Return(sim.Cycle(0))

		Expect(func() { loop.StepBatch(sim.NoEvent) }).To(Panic())
	})

	It("should panic when a scheduled peripheral is unknown", func() {
		sched.Schedule(9, 0)

		Expect(func() { loop.StepBatch(sim.NoEvent) }).To(Panic())
	})

	It("should panic when a peripheral makes no progress", func() {
		periph := NewMockPeripheral(mockCtrl)
		periph.EXPECT().ID().Return(sim.PeriphID(4)).AnyTimes()
		periph.EXPECT().Name().Return("Stuck").AnyTimes()
		loop.RegisterPeripheral(periph)

		sched.Schedule(4, 0)
		periph.EXPECT().Advance(sim.Cycle(0))
		periph.EXPECT().NextEvent().Return(sim.Cycle(0))

		Expect(func() { loop.StepBatch(sim.NoEvent) }).To(Panic())
	})
})
