package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// FireStatus is the outcome of one Arrow.Fire call (spec.md §4.3).
type FireStatus int

const (
	// KeepGoing signals more work is likely available immediately.
	KeepGoing FireStatus = iota
	// ComeBackLater signals the arrow is not ready — typically a
	// source awaiting external data — and the scheduler should try a
	// different arrow.
	ComeBackLater
	// Finished signals the arrow will not fire again (e.g. a source
	// exhausted its input).
	Finished
	// FireError signals the fire call failed; the wrapped error is
	// returned alongside.
	FireError
)

func (s FireStatus) String() string {
	switch s {
	case KeepGoing:
		return "KeepGoing"
	case ComeBackLater:
		return "ComeBackLater"
	case Finished:
		return "Finished"
	case FireError:
		return "Error"
	default:
		return "Unknown"
	}
}

// PortKind distinguishes the three ways a Port can be bound (spec.md §3).
type PortKind int

const (
	PortQueueIn PortKind = iota
	PortQueueOut
	PortPool
)

// Port is one input or output endpoint of an Arrow, bound to a Queue or
// Pool. A port's index is its position in the arrow's Ports(). A source
// has no PortQueueIn port, so it needs no input (spec.md §4.6, step 2).
type Port struct {
	Kind  PortKind
	Queue *Queue
	Pool  *Pool
}

// Output is one (event, output-port-index) pair an Arrow emits from one
// Fire call (spec.md §4.3). The engine routes each to the Queue/Pool
// bound to that port on the arrow.
type Output struct {
	Event *Event
	Port  int
}

// OutputBuffer is the buffer an Arrow appends Outputs to during one Fire
// call. The engine allocates one per task, sized to the arrow's ChunkSize;
// Emit grows it if more outputs arrive.
type OutputBuffer struct {
	items []Output
}

// NewOutputBuffer returns a buffer with room for cap outputs.
func NewOutputBuffer(cap int) *OutputBuffer {
	return &OutputBuffer{items: make([]Output, 0, cap)}
}

// Emit appends one output pair.
func (b *OutputBuffer) Emit(ev *Event, port int) { b.items = append(b.items, Output{Event: ev, Port: port}) }

// Items returns the outputs appended since the last Reset.
func (b *OutputBuffer) Items() []Output { return b.items }

// Reset clears the buffer for reuse on the next Fire.
func (b *OutputBuffer) Reset() { b.items = b.items[:0] }

// Arrow is a stage in the topology (spec.md §3, §4.3). Rather than a deep
// inheritance chain (spec.md §9), the five concrete kinds below share the
// arrowBase record and differ only in their Fire body — a sum type
// expressed as five small Go structs.
type Arrow interface {
	Name() Name
	Level() Level
	IsParallel() bool
	Ports() []Port
	ChunkSize() int

	// Fire runs the arrow's user-supplied behavior once. input may be
	// nil for a Source. outputs is cleared by the caller before Fire is
	// invoked. Fire must not block indefinitely on external I/O (spec.md
	// §4.3) — the supervisor's ticker depends on periodic return.
	Fire(ctx context.Context, input *Event, outputs *OutputBuffer) (FireStatus, error)

	// activeTasks/tryBeginTask/endTask enforce the firing rules of spec.md
	// §4.3: a non-parallel arrow allows at most one in-flight Fire.
	activeTasks() int32
	tryBeginTask() bool
	endTask()

	// finished/markFinished track whether this arrow has returned
	// Finished and will never fire again (spec.md §4.6, step 1).
	finished() bool
	markFinished()

	// hasInput reports whether this arrow looks like it has something to
	// do at loc, before the engine spends a tryBeginTask/Fire round trip
	// on it (spec.md §4.6 step 2; original_source's
	// FindNextReadyTask_Unsafe gates the same way). A scheduling hint,
	// not a guarantee — Fire's own Pop/Acquire remains authoritative, and
	// a false positive here just costs one ComeBackLater.
	hasInput(loc int) bool

	// maxOutputsPerFire is how many items one Fire call can push to any
	// single queue-backed output port, the unit reserveOutputsLocked
	// reserves downstream before admitting this arrow (spec.md §4.2).
	maxOutputsPerFire() int

	finalize()
}

// queueHasInput reports whether q looks poppable at loc: resident at loc
// itself, or — when q allows stealing — resident anywhere (spec.md §4.2's
// Status values are advisory; this is the same kind of hint, checked
// before admission rather than after a wasted Fire).
func queueHasInput(q *Queue, loc int) bool {
	if q.SizeAt(loc) > 0 {
		return true
	}
	return q.Stealing() && q.Size() > 0
}

// arrowBase holds the fields every Arrow kind shares: identity, firing
// discipline, and the observability handles wired from metricz/tracez/
// capitan (SPEC_FULL.md §1A).
type arrowBase struct {
	name       Name
	level      Level
	parallel   bool
	chunkSize  int
	ports      []Port
	active     int32
	done       atomic.Bool
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	mu         sync.Mutex
}

func newArrowBase(name Name, level Level, parallel bool, chunkSize int, ports []Port) arrowBase {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return arrowBase{
		name:      name,
		level:     level,
		parallel:  parallel,
		chunkSize: chunkSize,
		ports:     ports,
		metrics:   newMetricsRegistry(),
		tracer:    tracez.New(),
	}
}

func (a *arrowBase) Name() Name       { return a.name }
func (a *arrowBase) Level() Level     { return a.level }
func (a *arrowBase) IsParallel() bool { return a.parallel }
func (a *arrowBase) Ports() []Port    { return a.ports }
func (a *arrowBase) ChunkSize() int   { return a.chunkSize }

func (a *arrowBase) activeTasks() int32 { return atomic.LoadInt32(&a.active) }

// tryBeginTask enforces spec.md §4.3's firing rule: a non-parallel arrow
// admits at most one in-flight Fire at a time.
func (a *arrowBase) tryBeginTask() bool {
	if a.parallel {
		atomic.AddInt32(&a.active, 1)
		return true
	}
	return atomic.CompareAndSwapInt32(&a.active, 0, 1)
}

func (a *arrowBase) endTask() { atomic.AddInt32(&a.active, -1) }

func (a *arrowBase) finished() bool  { return a.done.Load() }
func (a *arrowBase) markFinished()   { a.done.Store(true) }
func (a *arrowBase) finalize()       {}

// traceFire wraps one Fire invocation in a span and an arrow-fired signal/
// metric, the way the teacher's Backoff.Process wraps each attempt
// (backoff.go). body returns the same (FireStatus, error) contract as
// Arrow.Fire.
func (a *arrowBase) traceFire(ctx context.Context, body func(context.Context) (FireStatus, error)) (FireStatus, error) {
	start := time.Now()
	ctx, span := a.tracer.StartSpan(ctx, SpanArrowFire)
	span.SetTag(TagArrowName, a.name)
	span.SetTag(TagArrowLevel, a.level.String())

	status, err := body(ctx)

	span.SetTag(TagFireStatus, status.String())
	if err != nil {
		span.SetTag(TagFireError, err.Error())
	}
	span.Finish()

	a.metrics.Counter(MetricArrowsFiredTotal).Inc()
	if err != nil {
		a.metrics.Counter(MetricArrowsErroredTotal).Inc()
		capitan.Warn(ctx, SignalArrowError,
			FieldName.Field(a.name),
			FieldError.Field(err.Error()),
		)
	}
	if status == Finished {
		a.metrics.Counter(MetricArrowsFinishedTotal).Inc()
		capitan.Info(ctx, SignalArrowFinished, FieldName.Field(a.name))
	} else {
		capitan.Info(ctx, SignalArrowFired,
			FieldName.Field(a.name),
			FieldTimestamp.Field(float64(time.Since(start).Seconds())),
		)
	}
	return status, err
}
