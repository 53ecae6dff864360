package topology

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys, grounded on the teacher's hookz wiring in backoff.go:
// each key names one lifecycle moment external callers may subscribe to
// without modifying the scheduler itself.
var (
	HookArrowFired        = hookz.Key("arrow.fired")
	HookRunStateChanged   = hookz.Key("engine.run-state-changed")
	HookWorkerTimeout     = hookz.Key("supervisor.worker-timeout")
	HookParentReleased    = hookz.Key("unfolder.parent-released")
	HookEventRetired      = hookz.Key("engine.event-retired")
)

// ArrowFiredEvent is emitted every time an arrow's Fire call returns.
type ArrowFiredEvent struct {
	Arrow     Name
	Level     Level
	Status    FireStatus
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// RunStateChangedEvent is emitted on every RunState transition.
type RunStateChangedEvent struct {
	From      RunState
	To        RunState
	Timestamp time.Time
}

// WorkerTimeoutEvent is emitted when the supervisor detects a stalled
// worker.
type WorkerTimeoutEvent struct {
	WorkerID  int
	Arrow     Name
	Stalled   time.Duration
	Timestamp time.Time
}

// ParentReleasedEvent describes an unfolder releasing a parent event back
// to its pool (or forwarding it to the matching folder). Nothing in this
// package emits it.
type ParentReleasedEvent struct {
	Unfolder     Name
	ParentNumber uint64
	ChildCount   int
	Timestamp    time.Time
}

// EventRetiredEvent is emitted when the engine returns an event to its pool
// from any pool-bound output port: a terminal tap, a folder, or an unfolder
// with no paired folder.
type EventRetiredEvent struct {
	Level     Level
	Number    uint64
	Timestamp time.Time
}

// lifecycleHooks bundles the five typed hookz registries an Engine exposes.
// Each field is a distinct hookz.Hooks instance because hookz.Hooks[T] is
// generic over a single event payload type, matching the teacher's
// one-registry-per-connector pattern (scaffold.go, backoff.go) generalized
// to one registry per event shape.
type lifecycleHooks struct {
	arrowFired      *hookz.Hooks[ArrowFiredEvent]
	runStateChanged *hookz.Hooks[RunStateChangedEvent]
	workerTimeout   *hookz.Hooks[WorkerTimeoutEvent]
	parentReleased  *hookz.Hooks[ParentReleasedEvent]
	eventRetired    *hookz.Hooks[EventRetiredEvent]
}

func newLifecycleHooks() *lifecycleHooks {
	return &lifecycleHooks{
		arrowFired:      hookz.New[ArrowFiredEvent](),
		runStateChanged: hookz.New[RunStateChangedEvent](),
		workerTimeout:   hookz.New[WorkerTimeoutEvent](),
		parentReleased:  hookz.New[ParentReleasedEvent](),
		eventRetired:    hookz.New[EventRetiredEvent](),
	}
}

func (h *lifecycleHooks) close() {
	h.arrowFired.Close()
	h.runStateChanged.Close()
	h.workerTimeout.Close()
	h.parentReleased.Close()
	h.eventRetired.Close()
}

// OnArrowFired registers a handler invoked after every Fire call.
func (e *Engine) OnArrowFired(handler func(context.Context, ArrowFiredEvent) error) error {
	_, err := e.hooks.arrowFired.Hook(HookArrowFired, handler)
	return err
}

// OnRunStateChanged registers a handler invoked on every lifecycle
// transition (spec.md §4.6's run-state machine).
func (e *Engine) OnRunStateChanged(handler func(context.Context, RunStateChangedEvent) error) error {
	_, err := e.hooks.runStateChanged.Hook(HookRunStateChanged, handler)
	return err
}

// OnWorkerTimeout registers a handler invoked when the supervisor detects a
// stalled worker.
func (e *Engine) OnWorkerTimeout(handler func(context.Context, WorkerTimeoutEvent) error) error {
	_, err := e.hooks.workerTimeout.Hook(HookWorkerTimeout, handler)
	return err
}

// OnParentReleased registers a handler for ParentReleasedEvent. Nothing in
// this package emits that event, so the handler is not invoked.
func (e *Engine) OnParentReleased(handler func(context.Context, ParentReleasedEvent) error) error {
	_, err := e.hooks.parentReleased.Hook(HookParentReleased, handler)
	return err
}

// OnEventRetired registers a handler invoked whenever the engine returns an
// event to its pool (see EventRetiredEvent).
func (e *Engine) OnEventRetired(handler func(context.Context, EventRetiredEvent) error) error {
	_, err := e.hooks.eventRetired.Hook(HookEventRetired, handler)
	return err
}
