package topology

// Topology is the fully-wired, runnable graph a Builder produces: every
// Pool and Queue that exists in the run, plus the ordered list of Arrows
// that fire against them (spec.md §3, §4.5). It carries no behavior of
// its own beyond bookkeeping consumed by the Engine.
type Topology struct {
	Arrows []Arrow
	Pools  map[Level]*Pool
	Queues []*Queue
}

// PoolFor returns the single pool registered for lvl, if any.
func (t *Topology) PoolFor(lvl Level) (*Pool, bool) {
	p, ok := t.Pools[lvl]
	return p, ok
}

// TotalQueueOccupancy sums every queue's resident event count, used by
// the supervisor's status report and by mass-conservation tests.
func (t *Topology) TotalQueueOccupancy() int {
	total := 0
	for _, q := range t.Queues {
		total += q.Size()
	}
	return total
}

// TotalPoolOccupancy sums every pool's resident event count.
func (t *Topology) TotalPoolOccupancy() int {
	total := 0
	for _, p := range t.Pools {
		total += p.Size()
	}
	return total
}

// ResidentEvents is the invariant-1 quantity: the sum of every pool's
// fixed capacity. It never changes across a run's lifetime.
func (t *Topology) ResidentEvents() int {
	total := 0
	for _, p := range t.Pools {
		total += p.Capacity()
	}
	return total
}
