package topology

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// Status is the internal, advisory return from Queue operations (spec.md
// §4.2): the engine uses these as scheduling hints only — authoritative
// readiness is always recomputed under the engine's own lock.
type Status int

const (
	StatusReady Status = iota
	StatusCongested
	StatusEmpty
	StatusFull
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusCongested:
		return "Congested"
	case StatusEmpty:
		return "Empty"
	case StatusFull:
		return "Full"
	default:
		return "Unknown"
	}
}

// localQueue is one location partition of a Queue: a mutex-guarded slice
// deque plus its outstanding reservation count. Grounded directly on
// original_source's JMailbox::LocalQueue.
type localQueue struct {
	mu       sync.Mutex
	items    []*Event
	reserved int
}

// Queue is a bounded, multi-producer multi-consumer container of Event
// handles, partitioned into Locations sub-queues, with reservation-based
// backpressure (spec.md §3, §4.2). A Pool has the identical shape (see
// pool.go) and is implemented by embedding a Queue.
type Queue struct {
	name      Name
	level     Level
	threshold int // soft per-location capacity
	stealing  bool
	locs      []localQueue
}

// NewQueue returns an empty Queue with the given per-location threshold
// and number of location partitions.
func NewQueue(name Name, level Level, threshold, locations int, stealing bool) *Queue {
	if locations < 1 {
		locations = 1
	}
	return &Queue{
		name:      name,
		level:     level,
		threshold: threshold,
		stealing:  stealing,
		locs:      make([]localQueue, locations),
	}
}

// Name, Level, Threshold, Locations, Stealing are read-only accessors used
// by the Builder's validation pass and the supervisor's status report.
func (q *Queue) Name() Name        { return q.name }
func (q *Queue) Level() Level      { return q.level }
func (q *Queue) Threshold() int    { return q.threshold }
func (q *Queue) Locations() int    { return len(q.locs) }
func (q *Queue) Stealing() bool    { return q.stealing }

// Size returns the total resident item count across all locations. Meant
// for status reports and tests only — it takes every location's lock in
// turn, per spec.md §4.2's caveat that size() "should be used sparingly".
func (q *Queue) Size() int {
	total := 0
	for i := range q.locs {
		lq := &q.locs[i]
		lq.mu.Lock()
		total += len(lq.items)
		lq.mu.Unlock()
	}
	return total
}

// SizeAt returns the resident item count for one location.
func (q *Queue) SizeAt(loc int) int {
	lq := &q.locs[loc%len(q.locs)]
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return len(lq.items)
}

// Reserve keeps the queue's occupancy bounded (spec.md §4.2's reservation
// protocol, invariant 3). It grants up to requested slots on location loc,
// never more than the remaining headroom (threshold - resident -
// already-reserved), and never fails outright — a zero-length grant means
// "not ready", handled by the caller as such.
func (q *Queue) Reserve(ctx context.Context, requested, loc int) int {
	lq := &q.locs[loc%len(q.locs)]
	lq.mu.Lock()
	defer lq.mu.Unlock()
	doable := q.threshold - len(lq.items) - lq.reserved
	if doable <= 0 {
		capitan.Warn(ctx, SignalQueueCongested,
			FieldName.Field(q.name),
			FieldLocation.Field(loc),
			FieldRequested.Field(requested),
		)
		return 0
	}
	granted := requested
	if doable < granted {
		granted = doable
	}
	lq.reserved += granted
	return granted
}

// Push appends items to location loc, releasing reserved slots that were
// previously granted by Reserve. Push always succeeds — it may exceed
// threshold if the caller pushed without reserving, mirroring
// original_source's JMailbox::push contract.
func (q *Queue) Push(ctx context.Context, items []*Event, reserved, loc int) Status {
	lq := &q.locs[loc%len(q.locs)]
	lq.mu.Lock()
	defer lq.mu.Unlock()
	lq.reserved -= reserved
	if lq.reserved < 0 {
		lq.reserved = 0
	}
	lq.items = append(lq.items, items...)
	if len(lq.items) > q.threshold {
		capitan.Warn(ctx, SignalQueueFull,
			FieldName.Field(q.name),
			FieldLocation.Field(loc),
			FieldOccupancy.Field(len(lq.items)),
			FieldCapacity.Field(q.threshold),
		)
		return StatusFull
	}
	return StatusReady
}

// Pop removes up to max items from location loc. It is wait-free when
// uncontended: if the location's lock is already held, Pop returns
// immediately with StatusCongested instead of blocking (spec.md §4.2's
// "try_pop is wait-free when uncontended").
func (q *Queue) Pop(max, loc int) ([]*Event, Status) {
	lq := &q.locs[loc%len(q.locs)]
	if !lq.mu.TryLock() {
		return nil, StatusCongested
	}
	defer lq.mu.Unlock()

	n := max
	if n > len(lq.items) {
		n = len(lq.items)
	}
	if n == 0 {
		return nil, StatusEmpty
	}
	out := make([]*Event, n)
	copy(out, lq.items[:n])
	lq.items = lq.items[n:]

	if len(lq.items) >= q.threshold {
		return out, StatusFull
	}
	if len(lq.items) > 0 {
		return out, StatusReady
	}
	return out, StatusEmpty
}

// TryStealPop attempts Pop against every location other than loc, in
// order, returning the first non-empty result. It does nothing unless
// stealing is enabled on this Queue (spec.md §4.2). No arrow calls it;
// arrows pop only from their own location.
func (q *Queue) TryStealPop(max, loc int) ([]*Event, Status, int) {
	if !q.stealing {
		return nil, StatusEmpty, loc
	}
	for i := range q.locs {
		if i == loc%len(q.locs) {
			continue
		}
		if items, status := q.Pop(max, i); len(items) > 0 {
			return items, status, i
		}
	}
	return nil, StatusEmpty, loc
}
