package sim

import "math"

// Cycle counts emulated clock ticks since machine reset. The counter is
// monotonically non-decreasing and is owned by the execution loop; everything
// else only reads it.
type Cycle uint64

// NoEvent is the sentinel cycle meaning "no event pending". It compares
// greater than every reachable cycle.
const NoEvent = Cycle(math.MaxUint64)

// PeriphID identifies one peripheral. IDs are dense, fixed at machine build
// time, and double as indices into the scheduler's entry table.
type PeriphID int

// MaxPeripherals is the scheduler capacity. One machine word of membership
// bits covers every peripheral a single microcontroller carries.
const MaxPeripherals = 64
