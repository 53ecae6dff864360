package topology

import "github.com/zoobzio/tracez"

// Span keys and tags, grounded on the teacher's tracez usage in
// backoff.go: one span per significant unit of work, tagged with the
// identifiers needed to correlate a trace back to an arrow/worker/tick.
var (
	SpanArrowFire     = tracez.Key("arrow.fire")
	SpanSupervisorTick = tracez.Key("supervisor.tick")

	TagArrowName     = tracez.Tag("arrow.name")
	TagArrowLevel    = tracez.Tag("arrow.level")
	TagWorkerID      = tracez.Tag("worker.id")
	TagEventNumber   = tracez.Tag("event.number")
	TagFireStatus    = tracez.Tag("arrow.fire_status")
	TagFireError     = tracez.Tag("arrow.fire_error")
	TagTickWorkers   = tracez.Tag("tick.worker_count")
)
