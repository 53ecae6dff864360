package topology

import "github.com/zoobzio/metricz"

// Metric keys shared by arrows, queues, and the engine. Grounded on the
// teacher's metricz wiring in backoff.go/retry.go: one registry per engine
// and one per arrow, counters for monotonic totals, gauges for point-in-time occupancy.
var (
	MetricArrowsFiredTotal    = metricz.Key("topology.arrows.fired.total")
	MetricArrowsErroredTotal  = metricz.Key("topology.arrows.errored.total")
	MetricArrowsFinishedTotal = metricz.Key("topology.arrows.finished.total")
	MetricEventsRetiredTotal  = metricz.Key("topology.events.retired.total")

	MetricActiveWorkers   = metricz.Key("topology.workers.active")
	MetricActiveTasks     = metricz.Key("topology.tasks.active")
	MetricQueueOccupancy  = metricz.Key("topology.queue.occupancy")
	MetricPoolOccupancy   = metricz.Key("topology.pool.occupancy")
)

// newMetricsRegistry builds the registry with every counter/gauge
// pre-registered, mirroring NewBackoff's eager registration so reads never
// race a lazily-created metric.
func newMetricsRegistry() *metricz.Registry {
	reg := metricz.New()
	reg.Counter(MetricArrowsFiredTotal)
	reg.Counter(MetricArrowsErroredTotal)
	reg.Counter(MetricArrowsFinishedTotal)
	reg.Counter(MetricEventsRetiredTotal)
	reg.Gauge(MetricActiveWorkers)
	reg.Gauge(MetricActiveTasks)
	reg.Gauge(MetricQueueOccupancy)
	reg.Gauge(MetricPoolOccupancy)
	return reg
}
