package tracing

import "github.com/sarchlab/avrcore/sim"

// NamedHookable represents something that both has a name and can be hooked.
type NamedHookable interface {
	sim.Named
	sim.Hookable
	InvokeHook(sim.HookCtx)
	NumHooks() int
}

// A list of hook positions for the tracing hooks to apply to.
var (
	HookPosTaskStart = &sim.HookPos{Name: "HookPosTaskStart"}
	HookPosTaskEnd   = &sim.HookPos{Name: "HookPosTaskEnd"}
)

// StartTask notifies the hooks attached to the domain about the start of a
// task.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	start sim.Cycle,
	detail any,
) {
	if domain.NumHooks() == 0 {
		return
	}

	mustHaveRequiredFields(id, domain, kind, what)

	task := Task{
		ID:         id,
		ParentID:   parentID,
		Kind:       kind,
		What:       what,
		Where:      domain.Name(),
		StartCycle: start,
		Detail:     detail,
	}
	domain.InvokeHook(sim.HookCtx{
		Domain: domain,
		Item:   task,
		Pos:    HookPosTaskStart,
	})
}

// EndTask notifies the hooks attached to the domain about the completion of
// a task.
func EndTask(id string, domain NamedHookable, end sim.Cycle) {
	if domain.NumHooks() == 0 {
		return
	}

	if id == "" {
		panic("id must not be empty")
	}

	task := Task{
		ID:       id,
		EndCycle: end,
	}
	domain.InvokeHook(sim.HookCtx{
		Domain: domain,
		Item:   task,
		Pos:    HookPosTaskEnd,
	})
}

// CollectTrace attaches tracer t to the domain so that it receives all the
// tasks the domain emits.
func CollectTrace(t Tracer, domain NamedHookable) {
	domain.AcceptHook(tracerHook{tracer: t})
}

// CollectInterestingTrace attaches tracer t to the domain, forwarding only
// the tasks the filter accepts.
func CollectInterestingTrace(
	t Tracer,
	domain NamedHookable,
	filter TaskFilter,
) {
	domain.AcceptHook(tracerHook{tracer: t, filter: filter})
}

// tracerHook forwards task hook events to a Tracer.
type tracerHook struct {
	tracer Tracer
	filter TaskFilter
}

func (h tracerHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		task := ctx.Item.(Task)
		if h.filter != nil && !h.filter(task) {
			return
		}
		h.tracer.StartTask(task)
	case HookPosTaskEnd:
		h.tracer.EndTask(ctx.Item.(Task))
	}
}

func mustHaveRequiredFields(
	id string,
	domain NamedHookable,
	kind string,
	what string,
) {
	if id == "" {
		panic("id must not be empty")
	}

	if domain == nil || domain.Name() == "" {
		panic("domain must have a name")
	}

	if kind == "" {
		panic("kind must not be empty")
	}

	if what == "" {
		panic("what must not be empty")
	}
}
