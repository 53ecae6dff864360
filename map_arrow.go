package topology

import "context"

// ProcessorBehavior is the user-supplied callback run by both MapArrow and
// TapArrow (spec.md §4.3). It inspects/mutates the event in place via its
// FactorySet — it does not return a value, since all data flows through
// Factory Get/Insert calls (spec.md §3).
type ProcessorBehavior interface {
	Process(ctx context.Context, ev *Event) error
}

// MapArrow runs a ProcessorBehavior against each event from its input
// queue and forwards the same event to its output queue. Unlike TapArrow,
// a MapArrow is typically parallel: many events may be in-flight
// concurrently (spec.md §4.3's firing rules).
type MapArrow struct {
	arrowBase
	behavior ProcessorBehavior
	inQueue  *Queue
	outQueue *Queue
}

// NewMapArrow constructs a MapArrow named name at lvl, consuming inQueue
// and producing to outQueue. Grounded on original_source/.../JArrow.h's
// "parallel processing" shape combined with the teacher's workerpool.go
// concurrency discipline.
func NewMapArrow(name Name, lvl Level, behavior ProcessorBehavior, inQueue, outQueue *Queue, parallel bool, chunkSize int) *MapArrow {
	ports := []Port{
		{Kind: PortQueueIn, Queue: inQueue},
		{Kind: PortQueueOut, Queue: outQueue},
	}
	return &MapArrow{
		arrowBase: newArrowBase(name, lvl, parallel, chunkSize, ports),
		behavior:  behavior,
		inQueue:   inQueue,
		outQueue:  outQueue,
	}
}

// hasInput reports whether inQueue looks poppable at loc.
func (m *MapArrow) hasInput(loc int) bool { return queueHasInput(m.inQueue, loc) }

// maxOutputsPerFire is chunkSize: one Fire call pops and forwards at most
// that many events.
func (m *MapArrow) maxOutputsPerFire() int { return m.chunkSize }

// Fire pops up to the engine's output grant for this call (never more
// than ChunkSize, and never more than outQueue has room for — spec.md
// §4.2's reservation-before-production rule), runs the behavior on each,
// and forwards survivors to the output port.
func (m *MapArrow) Fire(ctx context.Context, _ *Event, outputs *OutputBuffer) (FireStatus, error) {
	return m.traceFire(ctx, func(ctx context.Context) (FireStatus, error) {
		loc := locationFromContext(ctx)
		grant := outputGrantFor(ctx, 1)
		if grant <= 0 {
			return ComeBackLater, nil
		}
		events, status := m.inQueue.Pop(grant, loc)
		if len(events) == 0 {
			if status == StatusCongested {
				return ComeBackLater, nil
			}
			return ComeBackLater, nil
		}
		for _, ev := range events {
			if err := m.behavior.Process(ctx, ev); err != nil {
				return FireError, WithContext(err, "", m.name, "", KindUserException)
			}
			ev.MarkWarmedUp()
			outputs.Emit(ev, 1)
		}
		return KeepGoing, nil
	})
}
