// Package topology implements the core execution engine of a multi-threaded
// event-processing framework: a static graph of processing stages ("arrows")
// connected by bounded, reservation-backed queues and backed by object pools,
// driven by a worker pool and a single supervisor thread.
//
// # Overview
//
// Events enter through one or more Source arrows, flow through Map and Tap
// arrows, optionally cross levels through an Unfolder/Folder pair (1→N split,
// N→1 join), and are retired back to their Pool. The Engine's worker pool
// repeatedly selects a ready Arrow, fires it on one Event, and routes the
// outputs to the queue or pool bound to each output port. A single
// Supervisor goroutine ticks at a configurable interval, enforces per-worker
// timeouts, and reacts to OS signals.
//
// # Core Concepts
//
//   - Event: the unit of work, carrying a FactorySet and owned by exactly one
//     Pool, Queue, or in-flight worker task at any instant.
//   - Factory: a lazy, memoized producer of one Collection per Event.
//   - Arrow: a topology node — Source, Map, Tap, Unfolder, or Folder — that
//     implements Fire(ctx, input, outputs) (FireStatus, error).
//   - Queue / Pool: bounded, location-partitioned containers of Event handles
//     with reservation-based backpressure.
//   - Topology: the immutable, validated static graph of arrows/queues/pools
//     produced by a Builder.
//   - Engine: the worker pool and scheduling loop, exposing Run,
//     RequestPause and Finish; it drains on its own once every source
//     has finished.
//   - Supervisor: the ticker, timeout detector, and signal handler.
//
// # Ambient stack
//
// Structured lifecycle signals are emitted through capitan (signals.go),
// counters and gauges through metricz (metrics.go), spans through tracez
// (tracing.go), and typed subscription hooks through hookz (hooks.go). The
// wall clock used by the supervisor and engine timeouts is injectable via
// clockz (clock.go), so tests can drive time deterministically.
//
// The parameter manager, plugin loader, and service locator described in
// spec.md §6 are external collaborators: this package depends only on the
// small interfaces in params.go, plugin.go, and services.go, not on any
// concrete implementation of those systems.
package topology
