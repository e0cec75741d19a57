package tracing

import "github.com/sarchlab/avrcore/sim"

// A Task is a span of cycles during which the machine was doing one thing,
// such as executing an instruction batch or settling a peripheral event.
type Task struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id"`
	Kind       string    `json:"kind"`
	What       string    `json:"what"`
	Where      string    `json:"where"`
	StartCycle sim.Cycle `json:"start_cycle"`
	EndCycle   sim.Cycle `json:"end_cycle"`
	Detail     any       `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this
// function returns true, the task is considered useful.
type TaskFilter func(t Task) bool
