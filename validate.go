package topology

// validateTopology checks the invariants spec.md §4.5 requires of a built
// Topology: every arrow port resolves to a known queue or pool, and every
// queue has at most one terminating consumer unless stealing lets
// multiple workers safely contend for it. Pools are intentionally exempt
// from the single-consumer check: a Pool's per-location reservation
// protocol already serializes concurrent Acquire/Release correctly.
func validateTopology(t *Topology) error {
	queueSet := make(map[*Queue]bool, len(t.Queues))
	for _, q := range t.Queues {
		queueSet[q] = true
	}

	consumers := make(map[*Queue]int, len(t.Queues))
	for _, a := range t.Arrows {
		for _, port := range a.Ports() {
			switch port.Kind {
			case PortQueueIn:
				if port.Queue == nil || !queueSet[port.Queue] {
					return WithContext(ErrUnresolvedPort, "", a.Name(), "", KindConfiguration)
				}
				consumers[port.Queue]++
			case PortQueueOut:
				if port.Queue == nil || !queueSet[port.Queue] {
					return WithContext(ErrUnresolvedPort, "", a.Name(), "", KindConfiguration)
				}
			case PortPool:
				if port.Pool == nil {
					return WithContext(ErrUnresolvedPort, "", a.Name(), "", KindConfiguration)
				}
			}
		}
	}

	for q, n := range consumers {
		if n > 1 && !q.Stealing() {
			return WithContext(ErrMultipleConsumers, "", q.Name(), "", KindConfiguration)
		}
	}

	if len(t.Pools) == 0 {
		return WithContext(ErrEmptyTopology, "", "Builder", "", KindConfiguration)
	}
	for lvl, count := range poolCountsByLevel(t) {
		if count > 1 {
			return WithContext(ErrMultiplePoolsPerLevel, "", lvl.String(), "", KindConfiguration)
		}
	}
	return nil
}

// poolCountsByLevel always returns 1 per present level since Topology.Pools
// is itself a map[Level]*Pool — kept as a function so a future relaxation
// to multiple pools per level has one place to change the check.
func poolCountsByLevel(t *Topology) map[Level]int {
	counts := make(map[Level]int, len(t.Pools))
	for lvl := range t.Pools {
		counts[lvl] = 1
	}
	return counts
}
