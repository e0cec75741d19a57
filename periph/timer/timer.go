// Package timer models an AVR-style timer/counter with prescaler, waveform
// generation modes, and two output-compare channels.
package timer

import (
	"log"

	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/sim"
)

// Register offsets within the timer's register block.
const (
	RegTCNTL uint8 = iota // counter low byte
	RegTCNTH              // counter high byte, via the shared temp register
	RegOCRAL              // compare A low byte
	RegOCRAH              // compare A high byte
	RegOCRBL              // compare B low byte
	RegOCRBH              // compare B high byte
	RegTCCR               // clock select and waveform mode
	RegTIFR               // interrupt flags, write one to clear
	RegTIMSK              // interrupt mask
)

// TCCR fields: bits 0-2 select the clock, bits 3-4 the waveform mode.
const (
	clockSelectMask = 0x07
	modeShift       = 3
	modeMask        = 0x03
)

// Interrupt flag bits in TIFR and TIMSK.
const (
	FlagOverflow uint8 = 1 << iota
	FlagCompareA
	FlagCompareB
)

// WaveformMode selects how the counter sequences between bottom and top.
type WaveformMode uint8

// The supported waveform generation modes.
const (
	// ModeNormal counts up through the full range and overflows at max.
	ModeNormal WaveformMode = iota

	// ModeCTC counts up to compare A and clears on the tick after the match.
	ModeCTC

	// ModeFastPWM counts up to compare A, raising overflow at top, and
	// clears on the tick after.
	ModeFastPWM

	// ModePhaseCorrect counts up to max, then back down to zero, raising
	// overflow at the bottom. Compare matches fire in both directions.
	ModePhaseCorrect
)

// prescaleDividers maps the TCCR clock-select field to a system-clock
// divider. Zero means the timer is stopped.
var prescaleDividers = [8]sim.Cycle{0, 1, 8, 64, 256, 1024, 0, 0}

// Lines are the interrupt lines a timer can raise. Nil lines are ignored.
type Lines struct {
	Overflow irq.Line
	CompareA irq.Line
	CompareB irq.Line
}

// A Timer is one timer/counter unit. Its externally observable events are
// overflow and compare-match flag assertions; both are predicted in closed
// form from the prescaler divider, the prescaler phase, the counter, the
// compare values, the waveform mode, and the count direction.
type Timer struct {
	sim.PeripheralBase

	maxValue uint16
	lines    Lines

	cnt      uint16
	ocrA     uint16
	ocrB     uint16
	tccr     uint8
	tifr     uint8
	timsk    uint8
	down     bool
	phase    sim.Cycle // system cycles accumulated toward the next tick
	tempHigh uint8     // shared high-byte temp register
}

// State is the snapshot of a timer's internal registers.
type State struct {
	Counter       uint16       `json:"counter"`
	CompareA      uint16       `json:"compare_a"`
	CompareB      uint16       `json:"compare_b"`
	Control       uint8        `json:"control"`
	Flags         uint8        `json:"flags"`
	Mask          uint8        `json:"mask"`
	CountingDown  bool         `json:"counting_down"`
	PrescalePhase sim.Cycle    `json:"prescale_phase"`
	LastAdvanced  sim.Cycle    `json:"last_advanced"`
	Mode          WaveformMode `json:"mode"`
}

// New creates a timer of the given counter width. Width must be 8 or 16.
func New(name string, id sim.PeriphID, width int, lines Lines) *Timer {
	t := &Timer{
		PeripheralBase: sim.MakePeripheralBase(name, id),
		lines:          lines,
	}

	switch width {
	case 8:
		t.maxValue = 0xFF
	case 16:
		t.maxValue = 0xFFFF
	default:
		log.Panicf("timer width must be 8 or 16, not %d", width)
	}

	return t
}

// Advance brings the timer current to the given cycle, raising every
// overflow and compare-match flag the crossed span contains.
func (t *Timer) Advance(to sim.Cycle) {
	elapsed := t.BeginAdvance(to)
	if elapsed == 0 {
		return
	}

	d := t.divider()
	if d == 0 {
		return
	}

	total := t.phase + elapsed
	t.phase = total % d
	t.applyTicks(total / d)
}

// NextEvent predicts the cycle of the next flag assertion. A stopped timer
// predicts no event. NextEvent does not mutate the timer.
func (t *Timer) NextEvent() sim.Cycle {
	d := t.divider()
	if d == 0 {
		return sim.NoEvent
	}

	cnt, down := t.cnt, t.down
	ticks := sim.Cycle(0)

	// Walk tick boundaries until one raises a flag. Every running
	// configuration reaches a flag within one full counting period, so the
	// walk is bounded by a handful of segments.
	for {
		e := t.edgeFrom(cnt, down)
		ticks += e.delta

		if e.flags != 0 {
			return t.LastAdvanced() + (d - t.phase) + (ticks-1)*d
		}

		cnt, down = e.cnt, e.down
	}
}

// ReadRegister returns a register value. The bus advanced the timer first.
func (t *Timer) ReadRegister(reg uint8, _ sim.Cycle) uint8 {
	switch reg {
	case RegTCNTL:
		t.tempHigh = uint8(t.cnt >> 8)
		return uint8(t.cnt)
	case RegTCNTH:
		return t.tempHigh
	case RegOCRAL:
		return uint8(t.ocrA)
	case RegOCRAH:
		return uint8(t.ocrA >> 8)
	case RegOCRBL:
		return uint8(t.ocrB)
	case RegOCRBH:
		return uint8(t.ocrB >> 8)
	case RegTCCR:
		return t.tccr
	case RegTIFR:
		return t.tifr
	case RegTIMSK:
		return t.timsk
	default:
		log.Panicf("%s has no register %d", t.Name(), reg)
		return 0
	}
}

// WriteRegister applies a register write. The bus advanced the timer first
// and reschedules afterwards.
func (t *Timer) WriteRegister(reg uint8, value uint8, _ sim.Cycle) {
	switch reg {
	case RegTCNTL:
		t.cnt = (uint16(t.tempHigh)<<8 | uint16(value)) & t.maxValue
	case RegTCNTH:
		t.tempHigh = value
	case RegOCRAL:
		t.ocrA = (t.ocrA&0xFF00 | uint16(value)) & t.maxValue
	case RegOCRAH:
		t.ocrA = (uint16(value)<<8 | t.ocrA&0x00FF) & t.maxValue
	case RegOCRBL:
		t.ocrB = (t.ocrB&0xFF00 | uint16(value)) & t.maxValue
	case RegOCRBH:
		t.ocrB = (uint16(value)<<8 | t.ocrB&0x00FF) & t.maxValue
	case RegTCCR:
		t.tccr = value
		if d := t.divider(); d != 0 {
			t.phase %= d
		}
	case RegTIFR:
		t.tifr &^= value
	case RegTIMSK:
		t.timsk = value
		t.fireEnabled(t.tifr & value)
	default:
		log.Panicf("%s has no register %d", t.Name(), reg)
	}
}

// State returns a snapshot of the timer.
func (t *Timer) State() any {
	return State{
		Counter:       t.cnt,
		CompareA:      t.ocrA,
		CompareB:      t.ocrB,
		Control:       t.tccr,
		Flags:         t.tifr,
		Mask:          t.timsk,
		CountingDown:  t.down,
		PrescalePhase: t.phase,
		LastAdvanced:  t.LastAdvanced(),
		Mode:          t.mode(),
	}
}

// Reset returns the timer to its power-on state.
func (t *Timer) Reset() {
	t.cnt = 0
	t.ocrA = 0
	t.ocrB = 0
	t.tccr = 0
	t.tifr = 0
	t.timsk = 0
	t.down = false
	t.phase = 0
	t.tempHigh = 0
	t.ResetAdvance()
}

func (t *Timer) divider() sim.Cycle {
	return prescaleDividers[t.tccr&clockSelectMask]
}

func (t *Timer) mode() WaveformMode {
	return WaveformMode((t.tccr >> modeShift) & modeMask)
}

// An edge is the nearest tick at which the counter hits an interesting
// value: a compare match, an overflow, or a dual-slope turnaround.
type edge struct {
	delta sim.Cycle // ticks until the edge, always at least 1
	flags uint8     // flags asserted on arrival
	cnt   uint16    // counter value on arrival
	down  bool      // direction after arrival
}

// applyTicks moves the counter by the given number of prescaler ticks,
// processing every edge the span crosses in order.
func (t *Timer) applyTicks(ticks sim.Cycle) {
	for ticks > 0 {
		e := t.edgeFrom(t.cnt, t.down)

		if e.delta > ticks {
			if t.down {
				t.cnt -= uint16(ticks)
			} else {
				t.cnt += uint16(ticks)
			}
			return
		}

		t.cnt, t.down = e.cnt, e.down
		t.raise(e.flags)
		ticks -= e.delta
	}
}

// edgeFrom computes the nearest edge from the given counter value and
// direction under the current mode and compare configuration.
func (t *Timer) edgeFrom(cnt uint16, down bool) edge {
	switch t.mode() {
	case ModeNormal:
		return t.upEdge(cnt, t.maxValue, FlagOverflow, false)
	case ModeCTC:
		if cnt > t.ocrA {
			// Runaway: the counter was set above top and free-runs to max.
			return t.upEdge(cnt, t.maxValue, FlagOverflow, false)
		}
		return t.upEdge(cnt, t.ocrA, 0, false)
	case ModeFastPWM:
		if cnt > t.ocrA {
			return t.upEdge(cnt, t.maxValue, FlagOverflow, false)
		}
		return t.upEdge(cnt, t.ocrA, 0, true)
	case ModePhaseCorrect:
		if down {
			return t.downEdge(cnt)
		}
		return t.phaseCorrectUpEdge(cnt)
	default:
		log.Panicf("%s has an invalid waveform mode", t.Name())
		return edge{}
	}
}

// upEdge handles the single-slope modes: the counter runs from cnt towards
// top and wraps to zero on the tick after top. wrapFlags are raised when the
// wrap happens; topOverflow additionally raises overflow on reaching top
// (fast PWM behavior).
func (t *Timer) upEdge(
	cnt, top uint16,
	wrapFlags uint8,
	topOverflow bool,
) edge {
	period := sim.Cycle(top) + 1

	wrap := edge{
		delta: sim.Cycle(top-cnt) + 1,
		flags: wrapFlags,
		cnt:   0,
	}
	best := wrap

	consider := func(target uint16, flag uint8) {
		if target > top {
			return
		}

		delta := sim.Cycle(target) - sim.Cycle(cnt)
		if target <= cnt {
			delta += period
		}

		if delta < best.delta {
			best = edge{delta: delta, flags: flag, cnt: target}
		} else if delta == best.delta {
			best.flags |= flag
		}
	}

	consider(t.ocrA, FlagCompareA)
	consider(t.ocrB, FlagCompareB)

	if topOverflow && best.cnt == top {
		best.flags |= FlagOverflow
	}

	return best
}

// phaseCorrectUpEdge handles the rising half of the dual-slope mode. The
// turnaround at top raises no flag by itself; a compare value at top fires
// once per period, on arrival.
func (t *Timer) phaseCorrectUpEdge(cnt uint16) edge {
	top := t.maxValue

	if cnt == top {
		// A counter write can land exactly on top; turn around in place.
		return t.downEdge(cnt)
	}

	best := edge{delta: sim.Cycle(top - cnt), cnt: top, down: true}

	consider := func(target uint16, flag uint8) {
		if target <= cnt {
			return
		}

		delta := sim.Cycle(target - cnt)
		if delta < best.delta {
			best = edge{delta: delta, flags: flag, cnt: target}
		} else if delta == best.delta {
			best.flags |= flag
			best.down = target == top
		}
	}

	consider(t.ocrA, FlagCompareA)
	consider(t.ocrB, FlagCompareB)

	return best
}

// downEdge handles the falling half of the dual-slope mode. Reaching bottom
// raises overflow and turns the counter around.
func (t *Timer) downEdge(cnt uint16) edge {
	if cnt == 0 {
		// Symmetric to the top turnaround after a counter write.
		return t.phaseCorrectUpEdge(cnt)
	}

	best := edge{delta: sim.Cycle(cnt), flags: FlagOverflow, cnt: 0}

	consider := func(target uint16, flag uint8) {
		if target >= cnt {
			return
		}

		delta := sim.Cycle(cnt - target)
		if delta < best.delta {
			best = edge{delta: delta, flags: flag, cnt: target, down: true}
		} else if delta == best.delta {
			best.flags |= flag
		}
	}

	consider(t.ocrA, FlagCompareA)
	consider(t.ocrB, FlagCompareB)

	return best
}

// raise latches flags and fires the interrupt lines enabled in the mask.
func (t *Timer) raise(flags uint8) {
	if flags == 0 {
		return
	}

	t.tifr |= flags
	t.fireEnabled(flags & t.timsk)
}

func (t *Timer) fireEnabled(flags uint8) {
	fire := func(flag uint8, line irq.Line) {
		if flags&flag != 0 && line != nil {
			line()
		}
	}

	fire(FlagOverflow, t.lines.Overflow)
	fire(FlagCompareA, t.lines.CompareA)
	fire(FlagCompareB, t.lines.CompareB)
}
