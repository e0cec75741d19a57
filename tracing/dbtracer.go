package tracing

import "github.com/sarchlab/avrcore/sim"

// DBTracer is a tracer that keeps track of tasks that have started but not
// ended, and writes the completed tasks through a backend.
type DBTracer struct {
	teller  CycleTeller
	backend TracerBackend

	tracingTasks map[string]Task
}

// NewDBTracer creates a DBTracer over the given backend. The backend is
// initialized here. Tasks carrying NoEvent as a cycle are stamped from the
// teller; all other cycles, including zero, are kept as given.
func NewDBTracer(teller CycleTeller, backend TracerBackend) *DBTracer {
	backend.Init()

	return &DBTracer{
		teller:       teller,
		backend:      backend,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask records that a task has started.
func (t *DBTracer) StartTask(task Task) {
	if task.StartCycle == sim.NoEvent && t.teller != nil {
		task.StartCycle = t.teller.Now()
	}

	t.tracingTasks[task.ID] = task
}

// EndTask writes the completed task through the backend. Ending a task that
// never started is a no-op.
func (t *DBTracer) EndTask(task Task) {
	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	originalTask.EndCycle = task.EndCycle
	if originalTask.EndCycle == sim.NoEvent && t.teller != nil {
		originalTask.EndCycle = t.teller.Now()
	}

	t.backend.Write(originalTask)
}
