package sim

import (
	gomock "go.uber.org/mock/gomock"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("PeripheralBase", func() {
	var base PeripheralBase

	ginkgo.BeforeEach(func() {
		base = MakePeripheralBase("Timer0", 0)
	})

	ginkgo.It("should report the cycles crossed by an advance", func() {
		Expect(base.BeginAdvance(100)).To(Equal(Cycle(100)))
		Expect(base.BeginAdvance(250)).To(Equal(Cycle(150)))
		Expect(base.LastAdvanced()).To(Equal(Cycle(250)))
	})

	ginkgo.It("should treat advancing to the current cycle as a no-op", func() {
		base.BeginAdvance(100)
		Expect(base.BeginAdvance(100)).To(Equal(Cycle(0)))
	})

	ginkgo.It("should panic when advanced backwards", func() {
		base.BeginAdvance(100)
		Expect(func() { base.BeginAdvance(99) }).To(Panic())
	})
})

var _ = ginkgo.Describe("Reschedule", func() {
	var (
		mockCtrl *gomock.Controller
		s        *Scheduler
		periph   *MockPeripheral
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		s = NewScheduler()
		periph = NewMockPeripheral(mockCtrl)
		periph.EXPECT().ID().Return(PeriphID(3)).AnyTimes()
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should schedule a fresh prediction", func() {
		periph.EXPECT().NextEvent().Return(Cycle(800))

		Reschedule(s, periph)

		pending, ok := s.Pending(3)
		Expect(ok).To(BeTrue())
		Expect(pending).To(Equal(Cycle(800)))
	})

	ginkgo.It("should move a stale entry later", func() {
		s.Schedule(3, 500)
		periph.EXPECT().NextEvent().Return(Cycle(800))

		Reschedule(s, periph)

		pending, _ := s.Pending(3)
		Expect(pending).To(Equal(Cycle(800)))
	})

	ginkgo.It("should move a stale entry earlier", func() {
		s.Schedule(3, 500)
		periph.EXPECT().NextEvent().Return(Cycle(200))

		Reschedule(s, periph)

		pending, _ := s.Pending(3)
		Expect(pending).To(Equal(Cycle(200)))
	})

	ginkgo.It("should leave a matching entry untouched", func() {
		s.Schedule(3, 500)
		periph.EXPECT().NextEvent().Return(Cycle(500))

		Reschedule(s, periph)

		pending, _ := s.Pending(3)
		Expect(pending).To(Equal(Cycle(500)))
	})

	ginkgo.It("should clear the entry when no event is predictable", func() {
		s.Schedule(3, 500)
		periph.EXPECT().NextEvent().Return(NoEvent)

		Reschedule(s, periph)

		_, ok := s.Pending(3)
		Expect(ok).To(BeFalse())
	})
})
