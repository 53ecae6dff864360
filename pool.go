package topology

import "context"

// Pool is a Queue pre-filled at construction with a fixed number of fresh
// Events (spec.md §3, §4.2). Pools are the only source and sink of Event
// handles: a SourceArrow pops from its Pool to mint a fresh Event, and the
// engine releases retired Events back when an arrow emits them on a port
// bound to the Pool.
type Pool struct {
	*Queue
	capacity int
}

// NewPool pre-fills a Pool of capacity fresh Events for lvl, partitioned
// into the given number of locations. The events are distributed
// round-robin across locations so every worker's home location starts
// with roughly equal headroom.
func NewPool(name Name, lvl Level, capacity, locations int) *Pool {
	q := NewQueue(name, lvl, capacity, locations, false)
	p := &Pool{Queue: q, capacity: capacity}
	for i := 0; i < capacity; i++ {
		loc := i % len(q.locs)
		q.locs[loc].items = append(q.locs[loc].items, NewEvent(lvl))
	}
	return p
}

// Capacity returns the pool's fixed initial size — the invariant spec.md
// §3 requires to hold constant across a run (invariant 1).
func (p *Pool) Capacity() int { return p.capacity }

// Acquire pops up to n fresh Events from location loc, returning fewer if
// the pool holds fewer there. It reports StatusEmpty only when no event was
// acquired. Events returned are freshly Reset by Release when they last
// came back, so Acquire never needs to clear state itself.
func (p *Pool) Acquire(ctx context.Context, n, loc int) ([]*Event, Status) {
	items, _ := p.Pop(n, loc)
	if len(items) == 0 {
		return nil, StatusEmpty
	}
	return items, StatusReady
}

// Release resets and returns events to location loc, reserving space for
// them first the way any other Queue push requires. Reservation against a
// Pool's own capacity cannot fail in practice, since a Pool never holds
// more resident events than its initial capacity (invariant 1).
func (p *Pool) Release(ctx context.Context, events []*Event, loc int) {
	for _, ev := range events {
		ev.Reset()
	}
	reserved := p.Reserve(ctx, len(events), loc)
	p.Push(ctx, events, reserved, loc)
}
