package topology

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"golang.org/x/sync/errgroup"
)

// Engine drives a built Topology through the run-state machine of spec.md
// §4.6: a dynamically resizable worker pool plus exactly one mutex/condvar
// scheduler. Workers never hold mu while executing user code; every
// scheduling decision happens inside ExchangeTask, under mu.
type Engine struct {
	mu   sync.Mutex
	cond *sync.Cond

	state    RunState
	topology *Topology
	mapping  ProcessorMapping
	clock    clockz.Clock

	workers      []*worker
	desired      int
	rotateStart  int
	startTime    time.Time
	eventsDone   uint64
	firstErr     *Error

	wg      *errgroup.Group
	hooks   *lifecycleHooks
	metrics *metricz.Registry
	tracer  *tracez.Tracer
}

// NewEngine constructs an Engine for top, addressed by mapping. It starts
// no workers; they are spawned by Run or Scale.
func NewEngine(top *Topology, mapping ProcessorMapping, clock clockz.Clock) *Engine {
	if clock == nil {
		clock = defaultClock()
	}
	e := &Engine{
		state:    StatePaused,
		topology: top,
		mapping:  mapping,
		clock:    clock,
		hooks:    newLifecycleHooks(),
		metrics:  newMetricsRegistry(),
		tracer:   tracez.New(),
		wg:       &errgroup.Group{},
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// State returns the engine's current RunState.
func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Topology returns the Topology this engine runs.
func (e *Engine) Topology() *Topology { return e.topology }

// EventsRetired returns the count of events the topology has fully
// retired since this Engine was constructed.
func (e *Engine) EventsRetired() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eventsDone
}

// WorkerSnapshot is a point-in-time, lock-free copy of one worker's
// bookkeeping, used by the supervisor's timeout check and status report.
type WorkerSnapshot struct {
	ID           int
	LastArrow    Name
	LastEventNr  uint64
	LastCheckout time.Time
	WarmedUp     bool
	Active       bool
}

// SnapshotWorkers returns a copy of every worker's bookkeeping.
func (e *Engine) SnapshotWorkers() []WorkerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]WorkerSnapshot, len(e.workers))
	for i, w := range e.workers {
		out[i] = WorkerSnapshot{
			ID:           w.id,
			LastArrow:    w.lastArrow,
			LastEventNr:  w.lastEventNr,
			LastCheckout: w.lastCheckout,
			WarmedUp:     w.warmedUp,
			Active:       w.active,
		}
	}
	return out
}

// transitionLocked moves the engine to next, emitting the lifecycle hook
// and capitan signal spec.md §4.6 requires of every state change. Callers
// must hold mu. An invalid transition is a no-op — callers check
// canTransitionTo themselves where it matters for error reporting.
func (e *Engine) transitionLocked(next RunState) {
	if !e.state.canTransitionTo(next) {
		return
	}
	from := e.state
	e.state = next
	now := e.clock.Now()

	capitan.Info(context.Background(), SignalEngineStateChanged,
		FieldFromState.Field(from.String()),
		FieldToState.Field(next.String()),
	)
	if e.hooks != nil {
		_ = e.hooks.runStateChanged.Emit(context.Background(), HookRunStateChanged, RunStateChangedEvent{
			From: from, To: next, Timestamp: now,
		})
	}
}

// peekReadyLocked reports whether any arrow could actually make progress
// right now, at any location — without committing to firing it (no
// tryBeginTask/reservation side effects). A free concurrency slot is not
// enough: it is true of any allowed, unfinished arrow the instant
// totalActiveTasksLocked reaches zero, which would make the topology look
// permanently ready. Gate on real input availability instead, the way
// original_source's FindNextReadyTask_Unsafe does. Used by checkPauseLocked
// to decide whether the topology has truly drained.
func (e *Engine) peekReadyLocked() bool {
	locs := e.mapping.Locations()
	if locs < 1 {
		locs = 1
	}
	for _, a := range e.topology.Arrows {
		if a.finished() || !e.arrowAllowedLocked(a) {
			continue
		}
		for loc := 0; loc < locs; loc++ {
			if a.hasInput(loc) {
				return true
			}
		}
	}
	return false
}

// arrowAllowedLocked applies the Pausing/Draining gating rule of spec.md
// §4.6: Pausing deactivates every arrow immediately, source or not, so
// only work already in flight drains to completion (original_source's
// PauseTopology sets every Running arrow to Paused); Draining deactivates
// only sources, letting the rest of the pipeline empty out (DrainTopology).
func (e *Engine) arrowAllowedLocked(a Arrow) bool {
	_, isSource := a.(*SourceArrow)
	switch e.state {
	case StatePausing:
		return false
	case StateDraining:
		return !isSource
	case StateRunning:
		return true
	default:
		return false
	}
}

// totalActiveTasksLocked sums active_tasks across every arrow.
func (e *Engine) totalActiveTasksLocked() int32 {
	var total int32
	for _, a := range e.topology.Arrows {
		total += a.activeTasks()
	}
	return total
}

// allSourcesFinishedLocked reports whether every SourceArrow in the
// topology has returned Finished.
func (e *Engine) allSourcesFinishedLocked() bool {
	for _, a := range e.topology.Arrows {
		if s, ok := a.(*SourceArrow); ok && !s.finished() {
			return false
		}
	}
	return true
}

// checkPauseLocked implements spec.md §4.6 step 1's trailing clause
// ("re-evaluate whether the whole topology has reached the
// draining/paused terminal state") and step 3 ("if none found and no
// active tasks remain and no source can still emit, transition to
// Paused").
func (e *Engine) checkPauseLocked() {
	if e.state == StateRunning && e.allSourcesFinishedLocked() {
		e.transitionLocked(StateDraining)
	}
	switch e.state {
	case StateDraining, StatePausing, StateRunning:
		if e.totalActiveTasksLocked() == 0 && !e.peekReadyLocked() {
			e.transitionLocked(StatePaused)
			e.cond.Broadcast()
		}
	}
}

// pickArrowLocked performs spec.md §4.6 step 2: a round-robin scan over
// the arrow list, skipping finished/gated/input-starved/already-busy
// arrows, admitting the first candidate whose firing discipline and
// downstream reservation both allow a new task. hasInput is checked before
// tryBeginTask (cheap) and reserveOutputsLocked (a per-port Reserve call)
// is tried only once a concurrency slot is actually taken, so a busy arrow
// never pays for a reservation it won't use.
func (e *Engine) pickArrowLocked(loc int) (Arrow, map[int]int, bool) {
	n := len(e.topology.Arrows)
	if n == 0 {
		return nil, nil, false
	}
	for i := 0; i < n; i++ {
		idx := (e.rotateStart + i) % n
		a := e.topology.Arrows[idx]
		if a.finished() || !e.arrowAllowedLocked(a) {
			continue
		}
		if !a.hasInput(loc) {
			continue
		}
		if !a.tryBeginTask() {
			continue
		}
		grant, ok := e.reserveOutputsLocked(a, loc)
		if !ok {
			a.endTask()
			continue
		}
		e.rotateStart = (idx + 1) % n
		return a, grant, true
	}
	return nil, nil, false
}

// reserveOutputsLocked reserves, on every queue-backed output port of a,
// enough headroom for one Fire call before that Fire is allowed to run —
// spec.md §4.2's reservation protocol gates admission, not just the
// eventual Push. Pool-backed outputs need no reservation: a Pool's size is
// fixed by construction (invariant 1), so it can never overflow. Returns
// false, with any partial grant already released, if some queue-backed
// port lacks room for a.maxOutputsPerFire() items.
func (e *Engine) reserveOutputsLocked(a Arrow, loc int) (map[int]int, bool) {
	need := a.maxOutputsPerFire()
	if need < 1 {
		need = 1
	}
	ports := a.Ports()
	grant := make(map[int]int, len(ports))
	for idx, port := range ports {
		if port.Kind != PortQueueOut {
			continue
		}
		got := port.Queue.Reserve(context.Background(), need, loc)
		if got < need {
			if got > 0 {
				port.Queue.Push(context.Background(), nil, got, loc)
			}
			for pidx, g := range grant {
				ports[pidx].Queue.Push(context.Background(), nil, g, loc)
			}
			return nil, false
		}
		grant[idx] = got
	}
	return grant, true
}

// routeOutputsLocked pushes every output the just-completed task produced
// to its port-indicated queue or pool (spec.md §4.6 step 1), releasing the
// downstream reservation pickArrowLocked took out before Fire ran — a
// queue-backed port that received fewer events than it was granted (or
// none, on ComeBackLater) still gives back its unused slots rather than
// holding them past this task. Retires the arrow if it reported Finished,
// and emits the lifecycle hooks that only the engine has enough context to
// observe (ArrowFired, EventRetired).
func (e *Engine) routeOutputsLocked(t *task) {
	ports := t.arrow.Ports()
	byPort := make(map[int][]*Event, len(t.outputs.Items()))
	for _, out := range t.outputs.Items() {
		if out.Port < 0 || out.Port >= len(ports) {
			continue
		}
		byPort[out.Port] = append(byPort[out.Port], out.Event)
	}
	for idx, port := range ports {
		switch port.Kind {
		case PortQueueOut:
			port.Queue.Push(context.Background(), byPort[idx], t.grant[idx], t.loc)
		case PortPool:
			events := byPort[idx]
			if len(events) == 0 {
				continue
			}
			for _, ev := range events {
				e.eventsDone++
				if e.hooks != nil {
					_ = e.hooks.eventRetired.Emit(context.Background(), HookEventRetired, EventRetiredEvent{
						Level: t.arrow.Level(), Number: ev.Number(), Timestamp: e.clock.Now(),
					})
				}
			}
			port.Pool.Release(context.Background(), events, t.loc)
		}
	}
	if e.hooks != nil {
		_ = e.hooks.arrowFired.Emit(context.Background(), HookArrowFired, ArrowFiredEvent{
			Arrow: t.arrow.Name(), Level: t.arrow.Level(), Status: t.status, Err: t.err,
			Duration: e.clock.Now().Sub(t.started), Timestamp: e.clock.Now(),
		})
	}
	if t.status == Finished {
		t.arrow.markFinished()
	}
	if t.err != nil && e.firstErr == nil {
		if ferr, ok := t.err.(*Error); ok {
			e.firstErr = ferr
		} else {
			e.firstErr = WithContext(t.err, "", t.arrow.Name(), "", KindUserException)
		}
		e.transitionLocked(StateFailed)
		e.cond.Broadcast()
	}
}

// exchangeTask is the engine-mutex-guarded core of the worker loop
// (spec.md §4.6's "ExchangeTask"). It accounts for the previous task (if
// any), then blocks until either a new task is ready, the worker is told
// to stop (shrinking pool), or the engine has reached a terminal state.
func (e *Engine) exchangeTask(w *worker, prev *task) *task {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev != nil {
		prev.arrow.endTask()
		e.routeOutputsLocked(prev)
		if items := prev.outputs.Items(); len(items) > 0 {
			w.lastEventNr = items[len(items)-1].Event.Number()
		}
		// The worker has now completed at least one fire on this task
		// slot, so any subsequent stall uses the steady-state timeout
		// rather than the (typically longer) warmup timeout — spec.md
		// §4.7's "checks every worker's last_checkout_time against the
		// warmup or steady-state timeout".
		w.warmedUp = true
	}
	e.checkPauseLocked()

	for {
		if w.stop {
			w.active = false
			return &task{}
		}
		if a, grant, ok := e.pickArrowLocked(w.location); ok {
			w.lastArrow = a.Name()
			w.lastCheckout = e.clock.Now()
			w.active = true
			e.cond.Signal()
			return &task{
				arrow:   a,
				outputs: NewOutputBuffer(a.ChunkSize()),
				started: e.clock.Now(),
				loc:     w.location,
				grant:   grant,
			}
		}
		if e.state == StatePaused || e.state == StateFailed || e.state == StateFinished {
			w.active = false
			return &task{}
		}
		e.cond.Wait()
	}
}

// runWorker is the per-worker loop of spec.md §4.6, wrapped for
// golang.org/x/sync/errgroup: it always returns nil, since user errors are
// routed through the engine's firstErr bookkeeping (routeOutputsLocked)
// rather than the goroutine's return value — errgroup here is a
// coordinated-shutdown primitive, not an error-propagation one.
func (e *Engine) runWorker(w *worker) error {
	var prev *task
	for {
		t := e.exchangeTask(w, prev)
		if t.arrow == nil {
			return nil
		}
		ctx := WithLocation(context.Background(), w.location)
		ctx = WithOutputGrant(ctx, t.grant)
		status, err := t.arrow.Fire(ctx, t.input, t.outputs)
		t.status = status
		t.err = err
		prev = t
	}
}

// Run transitions the engine from Paused to Running, brings the worker
// pool up to its last-requested size (or 1, if Scale was never called),
// and blocks until every worker has exited — which happens once the
// engine reaches Paused or Failed. It returns the stored first error on
// Failed, nil otherwise (spec.md §4.6, §7).
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state.canTransitionTo(StateRunning) {
		// Workers from an earlier Run, or launched by Scale while Paused,
		// exit on their own once the engine is Paused and no arrow is
		// ready. Waiting for them lets
		// their records be dropped below, so Scale launches a full pool.
		e.mu.Unlock()
		e.wg.Wait()
		e.mu.Lock()
	}
	if !e.state.canTransitionTo(StateRunning) {
		err := WithContext(ErrEngineFailed, "", "Engine", "", KindConfiguration)
		e.mu.Unlock()
		return err
	}
	e.transitionLocked(StateRunning)
	e.workers = nil
	e.startTime = e.clock.Now()
	desired := e.desired
	if desired < 1 {
		desired = 1
	}
	e.mu.Unlock()

	e.Scale(desired)
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateFailed {
		if e.firstErr != nil {
			return e.firstErr
		}
		return ErrEngineFailed
	}
	return nil
}

// RequestPause moves a Running engine to Pausing (spec.md §4.6).
func (e *Engine) RequestPause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.transitionLocked(StatePausing)
		e.cond.Broadcast()
	}
}

// Finish calls finalize() on every arrow and transitions a Paused engine
// to the terminal Finished state (spec.md §4.6).
func (e *Engine) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return WithContext(ErrEngineFailed, "", "Engine", "", KindConfiguration)
	}
	for _, a := range e.topology.Arrows {
		a.finalize()
	}
	e.transitionLocked(StateFinished)
	return nil
}

// FailWorker records err as the engine's failure cause (if none is
// recorded yet) and transitions to Failed, waking every blocked worker so
// they observe the terminal state and exit. Used by the supervisor on
// timeout detection (spec.md §4.7).
func (e *Engine) FailWorker(workerID int, err *Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.firstErr == nil {
		e.firstErr = err
	}
	e.transitionLocked(StateFailed)
	if e.hooks != nil {
		_ = e.hooks.workerTimeout.Emit(context.Background(), HookWorkerTimeout, WorkerTimeoutEvent{
			WorkerID: workerID, Timestamp: e.clock.Now(),
		})
	}
	e.cond.Broadcast()
}

// Scale sets the worker pool size to n (spec.md §4.6's "Scaling").
// Growing launches new goroutines immediately; shrinking flags the
// excess workers to stop — they exit cooperatively the next time they
// call into ExchangeTask, never cancelled asynchronously.
func (e *Engine) Scale(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n < 0 {
		n = 0
	}
	e.desired = n
	cur := len(e.workers)
	if n > cur {
		for i := cur; i < n; i++ {
			w := &worker{id: i, location: e.mapping.LocationOf(i)}
			e.workers = append(e.workers, w)
			e.wg.Go(func() error { return e.runWorker(w) })
		}
	} else if n < cur {
		for i := n; i < cur; i++ {
			e.workers[i].stop = true
		}
		e.workers = e.workers[:n]
	}
	e.metrics.Gauge(MetricActiveWorkers).Set(float64(n))
	capitan.Info(context.Background(), SignalEngineScaled, FieldWorkerCount.Field(n))
	e.cond.Broadcast()
}

// EngineReport is the point-in-time snapshot written back over the status
// channel (SPEC_FULL.md §4.8) and returned by Report.
type EngineReport struct {
	State         RunState
	EventsRetired uint64
	Uptime        time.Duration
	QueueOccupancy int
	PoolOccupancy  int
	Workers        []WorkerSnapshot
}

// Report snapshots the engine's current state for the status channel or
// an interactive caller (spec.md §6 "jana:status_fname").
func (e *Engine) Report() EngineReport {
	e.mu.Lock()
	state := e.state
	events := e.eventsDone
	start := e.startTime
	e.mu.Unlock()

	uptime := time.Duration(0)
	if !start.IsZero() {
		uptime = e.clock.Now().Sub(start)
	}
	return EngineReport{
		State:          state,
		EventsRetired:  events,
		Uptime:         uptime,
		QueueOccupancy: e.topology.TotalQueueOccupancy(),
		PoolOccupancy:  e.topology.TotalPoolOccupancy(),
		Workers:        e.SnapshotWorkers(),
	}
}

// String renders the report as the plain-text dump original_source's
// status query prints, one line per worker.
func (r EngineReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s events_retired=%d uptime=%s queue_occupancy=%d pool_occupancy=%d\n",
		r.State, r.EventsRetired, r.Uptime.Round(time.Millisecond), r.QueueOccupancy, r.PoolOccupancy)
	for _, w := range r.Workers {
		fmt.Fprintf(&b, "  worker[%d] arrow=%s last_event=%d active=%v warmed_up=%v last_checkout=%s\n",
			w.ID, w.LastArrow, w.LastEventNr, w.Active, w.WarmedUp, w.LastCheckout.Format(time.RFC3339))
	}
	return b.String()
}
