// Package cpu provides the batched instruction execution loop that drives the
// cycle scheduler and the peripherals.
package cpu

import (
	"log"
	"sync"

	"github.com/sarchlab/avrcore/sim"
)

// DefaultBatchCycles bounds how many cycles of instructions the loop executes
// between two peripheral inspections when no event is due sooner.
const DefaultBatchCycles = 4096

// An InstructionSource supplies executable instructions. The loop is agnostic
// to opcodes; it only consumes the cycle cost of whatever the source executed.
// Register accesses performed by an instruction must be routed through the
// register bus, which reports them back to the loop.
type InstructionSource interface {
	// ExecuteNext fetches and executes one instruction at the given cycle
	// and returns its cycle cost. The cost must be at least one cycle.
	ExecuteNext(now sim.Cycle) sim.Cycle
}

// An AccessMarker reports whether a peripheral register access happened since
// the last call. The register bus implements it.
type AccessMarker interface {
	TakeAccessMark() bool
}

// BatchSpan describes one batch of instructions for hooks.
type BatchSpan struct {
	Start sim.Cycle
	End   sim.Cycle
}

// A Loop owns the global cycle counter and alternates between executing
// batches of instructions and settling due peripherals.
//
// A batch runs to the nearest pending event or the batch cap, whichever is
// sooner, and ends early the moment an instruction touches a peripheral
// register, since that access may have changed the peripheral's schedule.
// The settle phase then drains every peripheral whose event cycle has
// arrived, all of them before any further instruction executes.
type Loop struct {
	sim.HookableBase

	sched   *sim.Scheduler
	src     InstructionSource
	bus     AccessMarker
	periphs [sim.MaxPeripherals]sim.Peripheral

	now        sim.Cycle
	batchCap   sim.Cycle
	stop       func() bool
	isPaused   bool
	pausedLock sync.Mutex
	pauseLock  sync.Mutex
}

// NewLoop creates a Loop over the given scheduler, instruction source, and
// register bus.
func NewLoop(
	sched *sim.Scheduler,
	src InstructionSource,
	bus AccessMarker,
) *Loop {
	l := new(Loop)

	l.sched = sched
	l.src = src
	l.bus = bus
	l.batchCap = DefaultBatchCycles
	l.stop = func() bool { return false }

	return l
}

// RegisterPeripheral makes the loop responsible for settling p when its
// scheduled event arrives.
func (l *Loop) RegisterPeripheral(p sim.Peripheral) {
	id := p.ID()
	if l.periphs[id] != nil {
		log.Panicf("peripheral id %d registered twice", id)
	}

	l.periphs[id] = p
}

// SetBatchCycles overrides the batch cap.
func (l *Loop) SetBatchCycles(n sim.Cycle) {
	if n == 0 {
		log.Panic("batch cap must be at least one cycle")
	}

	l.batchCap = n
}

// RegisterStopCondition sets the predicate Run checks once per batch
// boundary. Mid-batch cancellation is unsupported; a batch is opaque.
func (l *Loop) RegisterStopCondition(stop func() bool) {
	l.stop = stop
}

// Name returns the name of the loop.
func (l *Loop) Name() string {
	return "CPU"
}

// Now returns the global cycle counter.
func (l *Loop) Now() sim.Cycle {
	return l.now
}

// NextEventCycle returns the nearest pending event cycle, or NoEvent.
func (l *Loop) NextEventCycle() sim.Cycle {
	cycle, _ := l.sched.Peek()
	return cycle
}

// Run executes batches until the stop condition holds.
func (l *Loop) Run() {
	for !l.stop() {
		l.pauseLock.Lock()
		l.StepBatch(sim.NoEvent)
		l.pauseLock.Unlock()
	}
}

// RunUntil executes batches until the cycle counter reaches target. The last
// instruction may overshoot the target by its own cost.
func (l *Loop) RunUntil(target sim.Cycle) {
	for l.now < target && !l.stop() {
		l.pauseLock.Lock()
		l.StepBatch(target)
		l.pauseLock.Unlock()
	}
}

// Pause prevents the Loop from starting another batch until Continue.
func (l *Loop) Pause() {
	l.pausedLock.Lock()
	defer l.pausedLock.Unlock()

	if l.isPaused {
		return
	}

	l.pauseLock.Lock()
	l.isPaused = true
}

// Continue allows a paused Loop to proceed.
func (l *Loop) Continue() {
	l.pausedLock.Lock()
	defer l.pausedLock.Unlock()

	if !l.isPaused {
		return
	}

	l.pauseLock.Unlock()
	l.isPaused = false
}

// StepBatch executes a single batch bounded by limit, then settles every due
// peripheral. It returns the number of cycles the counter moved.
func (l *Loop) StepBatch(limit sim.Cycle) sim.Cycle {
	start := l.now

	batchEnd := l.saturatingBatchEnd(limit)

	hookCtx := sim.HookCtx{
		Domain: l,
		Pos:    sim.HookPosBeforeBatch,
		Item:   BatchSpan{Start: start, End: batchEnd},
	}
	l.InvokeHook(hookCtx)

	for l.now < batchEnd {
		cost := l.src.ExecuteNext(l.now)
		if cost == 0 {
			log.Panic("instruction cost must be at least one cycle")
		}

		l.now += cost

		if l.bus.TakeAccessMark() {
			break
		}
	}

	hookCtx.Pos = sim.HookPosAfterBatch
	hookCtx.Item = BatchSpan{Start: start, End: l.now}
	l.InvokeHook(hookCtx)

	l.settle()

	return l.now - start
}

// saturatingBatchEnd computes min(now+batchCap, limit, nearest event) without
// wrapping near the sentinel.
func (l *Loop) saturatingBatchEnd(limit sim.Cycle) sim.Cycle {
	batchEnd := l.now + l.batchCap
	if batchEnd < l.now {
		batchEnd = sim.NoEvent
	}

	if limit < batchEnd {
		batchEnd = limit
	}

	if next, _ := l.sched.Peek(); next < batchEnd {
		batchEnd = next
	}

	return batchEnd
}

// settle drains every peripheral whose event cycle has arrived. Peripherals
// due at the same cycle are all advanced and rescheduled here, lowest id
// first, before any further instruction executes.
func (l *Loop) settle() {
	for {
		cycle, id := l.sched.Peek()
		if cycle > l.now {
			return
		}

		l.sched.Pop()

		p := l.periphs[id]
		if p == nil {
			log.Panicf("scheduled peripheral id %d is not registered", id)
		}

		hookCtx := sim.HookCtx{
			Domain: l,
			Pos:    sim.HookPosBeforeSettle,
			Item:   p,
			Detail: l.now,
		}
		l.InvokeHook(hookCtx)

		p.Advance(l.now)
		sim.Reschedule(l.sched, p)

		if next, ok := l.sched.Pending(id); ok && next <= l.now {
			log.Panicf("peripheral %s rescheduled itself at cycle %d "+
				"without making progress", p.Name(), next)
		}

		hookCtx.Pos = sim.HookPosAfterSettle
		l.InvokeHook(hookCtx)
	}
}
