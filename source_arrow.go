package topology

import (
	"context"
	"sync/atomic"
)

// SourceBehavior is the user-supplied callback contract for a SourceArrow
// (spec.md §4.3). Emit fills ev (already fresh from the arrow's pool) and
// reports whether more events are likely available. A source that will
// never produce more data returns Finished.
type SourceBehavior interface {
	Emit(ctx context.Context, ev *Event) (FireStatus, error)
}

// SourceArrow pulls a fresh Event from its pool, lets the user behavior
// fill it, assigns a monotonically increasing event number (spec.md
// invariant 7), and pushes it to its single output queue.
type SourceArrow struct {
	arrowBase
	behavior SourceBehavior
	pool     *Pool
	nextNum  uint64
}

// NewSourceArrow constructs a SourceArrow named name at lvl, reading fresh
// events from pool and pushing to outQueue. Grounded on
// original_source/.../JEventSourceArrow.h.
func NewSourceArrow(name Name, lvl Level, behavior SourceBehavior, pool *Pool, outQueue *Queue, parallel bool, chunkSize int) *SourceArrow {
	ports := []Port{
		{Kind: PortPool, Pool: pool},
		{Kind: PortQueueOut, Queue: outQueue},
	}
	return &SourceArrow{
		arrowBase: newArrowBase(name, lvl, parallel, chunkSize, ports),
		behavior:  behavior,
		pool:      pool,
	}
}

// hasInput reports whether the source's own pool has a fresh event ready
// to acquire at loc — without one, Fire can only return ComeBackLater.
func (s *SourceArrow) hasInput(loc int) bool { return s.pool.SizeAt(loc) > 0 }

// maxOutputsPerFire is 1: Fire acquires and emits exactly one event per
// call, regardless of chunkSize (which sets the Pop batch size on Map and
// Folder arrows; SourceArrow's Acquire always takes one event).
func (s *SourceArrow) maxOutputsPerFire() int { return 1 }

// Fire acquires one fresh event from the pool, invokes the user behavior,
// and if it produced data, stamps a sequence number and emits it to the
// single output port.
func (s *SourceArrow) Fire(ctx context.Context, _ *Event, outputs *OutputBuffer) (FireStatus, error) {
	return s.traceFire(ctx, func(ctx context.Context) (FireStatus, error) {
		loc := locationFromContext(ctx)
		events, status := s.pool.Acquire(ctx, 1, loc)
		if status == StatusEmpty || len(events) == 0 {
			return ComeBackLater, nil
		}
		ev := events[0]

		fireStatus, err := s.behavior.Emit(ctx, ev)
		if err != nil {
			s.pool.Release(ctx, events, loc)
			return FireError, WithContext(err, "", s.name, "", KindUserException)
		}
		if fireStatus == Finished || fireStatus == ComeBackLater {
			s.pool.Release(ctx, events, loc)
			if fireStatus == Finished {
				s.markFinished()
			}
			return fireStatus, nil
		}

		ev.SetNumber(atomic.AddUint64(&s.nextNum, 1))
		outputs.Emit(ev, 1)
		return KeepGoing, nil
	})
}
