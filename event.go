package topology

import "sync/atomic"

// Event is the unit of work carried through the topology. At any instant
// it is owned by exactly one of: a Pool (idle), a Queue (in transit), or a
// worker (being processed by an Arrow) — spec.md §3, invariant 2. Events
// are recycled, not destroyed, for the duration of a run.
type Event struct {
	number    uint64
	runNumber uint32
	level     Level
	parent    *Event // weak: the parent is owned by its unfolder slot, never by the child
	factories *FactorySet

	// warmedUp and callGraph are implementation-private bookkeeping
	// (spec.md §3): warmedUp is set by MapArrow once the event has been
	// processed (the supervisor's warmup/steady-state timeout choice uses
	// the worker's own flag, not this one); callGraph records the sequence
	// of factory Gets for diagnostics.
	warmedUp  atomic.Bool
	callGraph []string
}

// NewEvent allocates a fresh Event for lvl, backed by a new FactorySet.
// Pools call this once per pre-filled slot; it is never called per-fire.
func NewEvent(lvl Level) *Event {
	return &Event{level: lvl, factories: NewFactorySet()}
}

// Number returns the event's 64-bit sequence number, assigned by a source
// monotonically non-decreasing within a level (spec.md invariant 7).
func (e *Event) Number() uint64 { return e.number }

// SetNumber assigns the event number. Called by a SourceArrow when it
// pulls a fresh Event from its pool.
func (e *Event) SetNumber(n uint64) { e.number = n }

// RunNumber returns the 32-bit run number currently associated with this
// event.
func (e *Event) RunNumber() uint32 { return e.runNumber }

// SetRunNumber assigns the run number, triggering ChangeRun on any
// factory Get call that observes a change (spec.md §4.1).
func (e *Event) SetRunNumber(n uint32) { e.runNumber = n }

// Level returns the level (Timeslice, PhysicsEvent, Subevent, ...) this
// event belongs to.
func (e *Event) Level() Level { return e.level }

// Parent returns the non-owning back-reference to the parent event this
// event was unfolded from, or nil for top-level events. The back-reference
// is only valid for the duration of the unfolder/folder exchange: the
// parent's lifetime is governed by the unfolder's internal slot, not by
// any child holding this pointer (spec.md §9).
func (e *Event) Parent() *Event { return e.parent }

// SetParent attaches the non-owning parent back-reference. Called by an
// UnfolderArrow when minting a child.
func (e *Event) SetParent(p *Event) { e.parent = p }

// Factories returns the FactorySet owned by this event.
func (e *Event) Factories() *FactorySet { return e.factories }

// WarmedUp reports whether MarkWarmedUp has been called on this event. The
// supervisor does not read it; its timeout choice uses
// WorkerSnapshot.WarmedUp.
func (e *Event) WarmedUp() bool { return e.warmedUp.Load() }

// MarkWarmedUp records that this event has completed at least one fire.
func (e *Event) MarkWarmedUp() { e.warmedUp.Store(true) }

// RecordCall appends one step string to the event's private call graph, used only for diagnostics (backtraces, status reports).
func (e *Event) RecordCall(step string) {
	e.callGraph = append(e.callGraph, step)
}

// CallGraph returns a copy of the recorded call sequence.
func (e *Event) CallGraph() []string {
	out := make([]string, len(e.callGraph))
	copy(out, e.callGraph)
	return out
}

// Reset returns the event to its pristine, recyclable state: clears all
// non-persistent factory collections, resets factory states, and drops the
// parent reference and call graph. Called exactly once, when the event is
// returned to its Pool.
func (e *Event) Reset() {
	e.factories.Reset()
	e.parent = nil
	e.callGraph = e.callGraph[:0]
	e.warmedUp.Store(false)
	e.number = 0
	e.runNumber = 0
}
