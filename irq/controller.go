// Package irq models the interrupt-flag plane shared by the peripherals and
// the CPU execution loop.
package irq

import (
	"log"
	"math/bits"
)

// Vector identifies one interrupt source. Vectors are dense and double as
// the priority order, lowest vector first.
type Vector int

// MaxVectors is the controller capacity.
const MaxVectors = 64

// A Line raises one interrupt vector. Peripherals hold bound lines so that
// they can assert flags without knowing about the controller.
type Line func()

// A Controller latches raised interrupt vectors until they are acknowledged.
type Controller struct {
	pending uint64
}

// NewController creates a Controller with no pending interrupts.
func NewController() *Controller {
	return &Controller{}
}

// Line returns a Line bound to vector v.
func (c *Controller) Line(v Vector) Line {
	c.mustBeValidVector(v)
	return func() { c.Raise(v) }
}

// Raise latches vector v. Raising an already-pending vector is a no-op, as
// interrupt flags are level-latched, not counted.
func (c *Controller) Raise(v Vector) {
	c.mustBeValidVector(v)
	c.pending |= 1 << uint(v)
}

// Pending reports whether any vector is latched.
func (c *Controller) Pending() bool {
	return c.pending != 0
}

// PendingMask returns the latched vectors as a bitmask, vector v in bit v.
func (c *Controller) PendingMask() uint64 {
	return c.pending
}

// IsRaised reports whether vector v is latched.
func (c *Controller) IsRaised(v Vector) bool {
	c.mustBeValidVector(v)
	return c.pending&(1<<uint(v)) != 0
}

// Acknowledge clears and returns the highest-priority pending vector. The
// second return value is false when nothing is pending.
func (c *Controller) Acknowledge() (Vector, bool) {
	if c.pending == 0 {
		return 0, false
	}

	v := Vector(bits.TrailingZeros64(c.pending))
	c.pending &^= 1 << uint(v)

	return v, true
}

// Reset drops every pending vector.
func (c *Controller) Reset() {
	c.pending = 0
}

func (c *Controller) mustBeValidVector(v Vector) {
	if v < 0 || v >= MaxVectors {
		log.Panicf("interrupt vector %d out of range", v)
	}
}
