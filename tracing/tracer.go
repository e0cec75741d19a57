package tracing

import "github.com/sarchlab/avrcore/sim"

// A Tracer can collect task traces.
type Tracer interface {
	StartTask(task Task)
	EndTask(task Task)
}

// A TracerBackend can write tasks to a destination such as a file or a
// database.
type TracerBackend interface {
	// Init prepares the backend for writing.
	Init()

	// Write writes a task. The backend may buffer it.
	Write(task Task)

	// Flush forces all buffered tasks out.
	Flush()
}

// A CycleTeller reports the machine's current cycle. The execution loop is
// one.
type CycleTeller interface {
	Now() sim.Cycle
}
