package tracing

import "sync"

// CollectorTracer is a tracer that keeps completed tasks in memory.
type CollectorTracer struct {
	lock     sync.Mutex
	inflight map[string]Task
	tasks    []Task
}

// NewCollectorTracer creates a CollectorTracer.
func NewCollectorTracer() *CollectorTracer {
	return &CollectorTracer{
		inflight: make(map[string]Task),
	}
}

// StartTask records that a task has started.
func (t *CollectorTracer) StartTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflight[task.ID] = task
}

// EndTask moves the task to the completed list.
func (t *CollectorTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	delete(t.inflight, task.ID)
	originalTask.EndCycle = task.EndCycle
	t.tasks = append(t.tasks, originalTask)
}

// Tasks returns a copy of the completed tasks so far.
func (t *CollectorTracer) Tasks() []Task {
	t.lock.Lock()
	defer t.lock.Unlock()

	tasks := make([]Task, len(t.tasks))
	copy(tasks, t.tasks)

	return tasks
}
