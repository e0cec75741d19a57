package tracing

import (
	"github.com/rs/xid"

	"github.com/sarchlab/avrcore/cpu"
	"github.com/sarchlab/avrcore/sim"
)

// TraceLoop instruments the execution loop so that every instruction batch
// and every settled peripheral event becomes a task. Attach tracers to the
// loop with CollectTrace before or after calling this.
func TraceLoop(l *cpu.Loop) {
	l.AcceptHook(&loopTaskEmitter{loop: l})
}

// loopTaskEmitter lowers the loop's hook positions into task events.
type loopTaskEmitter struct {
	loop *cpu.Loop

	settleID string
}

func (e *loopTaskEmitter) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosAfterBatch:
		span := ctx.Item.(cpu.BatchSpan)
		if span.End == span.Start {
			return
		}

		id := xid.New().String()
		StartTask(id, "", e.loop, "batch", "execute", span.Start, nil)
		EndTask(id, e.loop, span.End)
	case sim.HookPosBeforeSettle:
		p := ctx.Item.(sim.Peripheral)
		e.settleID = xid.New().String()
		StartTask(e.settleID, "", e.loop,
			"event", p.Name(), ctx.Detail.(sim.Cycle), nil)
	case sim.HookPosAfterSettle:
		EndTask(e.settleID, e.loop, ctx.Detail.(sim.Cycle))
	}
}
