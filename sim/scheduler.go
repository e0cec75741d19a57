package sim

import (
	"log"
	"math/bits"
)

// An Entry is one pending revisit request, as reported by Scheduler.Entries.
type Entry struct {
	ID    PeriphID `json:"id"`
	Cycle Cycle    `json:"cycle"`
}

// A Scheduler tracks, per peripheral, the next cycle at which the peripheral
// must be revisited, and reports the global minimum in O(1).
//
// Each peripheral has at most one pending entry. A set bit in the membership
// word marks the entry as pending. The minimum over all pending entries is
// cached so that Peek costs nothing; Schedule maintains the cache with a
// single comparison, and only Pop and Unschedule rescan the membership bits.
//
// A general priority queue is a poor fit here: a register access can
// invalidate a peripheral's prediction at any moment, and a heap has no cheap
// decrease-key. Re-scheduling dominates extraction in this workload, so the
// design trades a bounded scan in Pop for O(1) everywhere else.
type Scheduler struct {
	entries  [MaxPeripherals]Cycle
	members  uint64
	minCycle Cycle
	minID    PeriphID
}

// NewScheduler creates a Scheduler with no pending entries.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	for i := range s.entries {
		s.entries[i] = NoEvent
	}
	s.minCycle = NoEvent
	s.minID = -1
	return s
}

// Schedule requests that peripheral id be revisited no later than cycle.
//
// The call obeys the monotonic-decrease discipline: it takes effect only when
// id has no pending entry or its pending entry is strictly later than cycle.
// Otherwise the call is a no-op. Moving an entry later requires Unschedule
// followed by Schedule.
func (s *Scheduler) Schedule(id PeriphID, cycle Cycle) {
	s.mustBeValidID(id)

	if cycle == NoEvent {
		log.Panic("cannot schedule the no-event sentinel")
	}

	if s.isPending(id) && s.entries[id] <= cycle {
		return
	}

	s.entries[id] = cycle
	s.members |= 1 << uint(id)

	if cycle < s.minCycle || (cycle == s.minCycle && id < s.minID) {
		s.minCycle = cycle
		s.minID = id
	}
}

// Unschedule clears the pending entry of peripheral id, if any.
func (s *Scheduler) Unschedule(id PeriphID) {
	s.mustBeValidID(id)

	if !s.isPending(id) {
		return
	}

	s.entries[id] = NoEvent
	s.members &^= 1 << uint(id)

	if id == s.minID {
		s.refreshMin()
	}
}

// Peek returns the earliest pending entry without removing it. When nothing
// is pending, the returned cycle is NoEvent and the id is negative.
func (s *Scheduler) Peek() (Cycle, PeriphID) {
	return s.minCycle, s.minID
}

// Pop removes the earliest pending entry and returns its peripheral id.
// Popping an empty scheduler is a programming error.
func (s *Scheduler) Pop() PeriphID {
	if s.members == 0 {
		log.Panic("pop on an empty scheduler")
	}

	id := s.minID
	s.entries[id] = NoEvent
	s.members &^= 1 << uint(id)
	s.refreshMin()

	return id
}

// Pending reports the pending cycle of peripheral id, and whether one exists.
func (s *Scheduler) Pending(id PeriphID) (Cycle, bool) {
	s.mustBeValidID(id)

	if !s.isPending(id) {
		return NoEvent, false
	}

	return s.entries[id], true
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	return bits.OnesCount64(s.members)
}

// Entries returns every pending entry, in ascending peripheral-id order. The
// result, together with the cycle counter and peripheral states, is the
// complete scheduler contribution to a machine snapshot.
func (s *Scheduler) Entries() []Entry {
	entries := make([]Entry, 0, s.Len())
	for m := s.members; m != 0; m &= m - 1 {
		id := PeriphID(bits.TrailingZeros64(m))
		entries = append(entries, Entry{ID: id, Cycle: s.entries[id]})
	}
	return entries
}

// refreshMin rescans the pending entries for the new cached minimum. The scan
// walks only set membership bits, lowest id first, so ties at the same cycle
// always resolve to the lowest peripheral id.
func (s *Scheduler) refreshMin() {
	s.minCycle = NoEvent
	s.minID = -1

	for m := s.members; m != 0; m &= m - 1 {
		id := PeriphID(bits.TrailingZeros64(m))
		if s.entries[id] < s.minCycle {
			s.minCycle = s.entries[id]
			s.minID = id
		}
	}
}

func (s *Scheduler) isPending(id PeriphID) bool {
	return s.members&(1<<uint(id)) != 0
}

func (s *Scheduler) mustBeValidID(id PeriphID) {
	if id < 0 || id >= MaxPeripherals {
		log.Panicf("peripheral id %d out of range", id)
	}
}
