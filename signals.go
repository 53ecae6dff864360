package topology

import "github.com/zoobzio/capitan"

// Signal constants for topology lifecycle events. Signals follow the
// pattern: <component>.<event>, matching the teacher library's convention
// for naming capitan signals.
const (
	// Queue signals.
	SignalQueueCongested capitan.Signal = "queue.congested"
	SignalQueueFull      capitan.Signal = "queue.full"
	SignalQueueReserved  capitan.Signal = "queue.reserved"

	// Pool signals.
	SignalPoolExhausted capitan.Signal = "pool.exhausted"

	// Arrow signals.
	SignalArrowFired    capitan.Signal = "arrow.fired"
	SignalArrowFinished capitan.Signal = "arrow.finished"
	SignalArrowError    capitan.Signal = "arrow.error"

	// Engine / run-state signals.
	SignalEngineStateChanged capitan.Signal = "engine.state-changed"
	SignalEngineScaled       capitan.Signal = "engine.scaled"

	// Supervisor signals.
	SignalSupervisorTick         capitan.Signal = "supervisor.tick"
	SignalSupervisorTimeout      capitan.Signal = "supervisor.timeout"
	SignalSupervisorSignal       capitan.Signal = "supervisor.signal"
	SignalSupervisorStatusReport capitan.Signal = "supervisor.status-report"
)

// Common field keys, following the teacher's primitive-typed-key
// convention so every emitted event stays cheaply serializable.
var (
	FieldName      = capitan.NewStringKey("name")
	FieldLevel     = capitan.NewStringKey("level")
	FieldError     = capitan.NewStringKey("error")
	FieldTimestamp = capitan.NewFloat64Key("timestamp")

	FieldLocation      = capitan.NewIntKey("location")
	FieldRequested     = capitan.NewIntKey("requested")
	FieldGranted       = capitan.NewIntKey("granted")
	FieldOccupancy     = capitan.NewIntKey("occupancy")
	FieldCapacity      = capitan.NewIntKey("capacity")
	FieldEventNumber   = capitan.NewIntKey("event_number")
	FieldWorkerID      = capitan.NewIntKey("worker_id")
	FieldWorkerCount   = capitan.NewIntKey("worker_count")
	FieldFromState     = capitan.NewStringKey("from_state")
	FieldToState       = capitan.NewStringKey("to_state")
	FieldSignalName    = capitan.NewStringKey("signal")
	FieldThroughputHz  = capitan.NewFloat64Key("throughput_hz")
	FieldEventsTotal   = capitan.NewIntKey("events_total")
	FieldUptimeSeconds = capitan.NewFloat64Key("uptime_seconds")
)
