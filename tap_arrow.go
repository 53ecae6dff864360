package topology

import "context"

// TapArrow runs a ProcessorBehavior sequentially against each event popped
// from its input queue. It is always the terminal stage of a level (no
// downstream arrow consumes its output); the engine routes each processed
// event back to the level's Pool (spec.md §4.5's wiring rule).
type TapArrow struct {
	arrowBase
	behavior ProcessorBehavior
	inQueue  *Queue
	pool     *Pool // non-nil when this tap is terminal for its level
}

// NewTapArrow constructs a TapArrow named name at lvl, consuming inQueue.
// If pool is non-nil, Fire's output (port 1) is bound to it and the engine
// releases each processed event back to the pool; otherwise port 1 is
// unbound and Fire's emit is dropped (a tap with no downstream binding).
func NewTapArrow(name Name, lvl Level, behavior ProcessorBehavior, inQueue *Queue, pool *Pool) *TapArrow {
	ports := []Port{{Kind: PortQueueIn, Queue: inQueue}}
	if pool != nil {
		ports = append(ports, Port{Kind: PortPool, Pool: pool})
	}
	return &TapArrow{
		arrowBase: newArrowBase(name, lvl, false, 1, ports),
		behavior:  behavior,
		inQueue:   inQueue,
		pool:      pool,
	}
}

// hasInput reports whether inQueue looks poppable at loc.
func (t *TapArrow) hasInput(loc int) bool { return queueHasInput(t.inQueue, loc) }

// maxOutputsPerFire is 1, though TapArrow has no queue-backed output port
// to reserve against — its only output is a Pool release, which never
// needs pre-admission reservation (invariant 1 bounds a Pool by
// construction).
func (t *TapArrow) maxOutputsPerFire() int { return 1 }

// Fire pops one event, runs the behavior, and emits it on port 1 for the
// engine to route — to this tap's terminal pool when bound, dropped
// otherwise.
func (t *TapArrow) Fire(ctx context.Context, _ *Event, outputs *OutputBuffer) (FireStatus, error) {
	return t.traceFire(ctx, func(ctx context.Context) (FireStatus, error) {
		loc := locationFromContext(ctx)
		events, status := t.inQueue.Pop(1, loc)
		if len(events) == 0 {
			if status == StatusCongested {
				return ComeBackLater, nil
			}
			return ComeBackLater, nil
		}
		ev := events[0]
		if err := t.behavior.Process(ctx, ev); err != nil {
			return FireError, WithContext(err, "", t.name, "", KindUserException)
		}

		// Whether this tap is terminal (pool != nil) or has port 1 unbound
		// (the engine then drops the output), the event is handed back
		// through the output buffer so the engine
		// routes it under its own lock — the same path every other arrow
		// uses to release/push (spec.md §4.6 step 1), keeping eventsDone
		// and the ArrowFired/EventRetired hooks accurate for every retire
		// point, not just the cross-level ones.
		outputs.Emit(ev, 1)
		return KeepGoing, nil
	})
}
