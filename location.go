package topology

import "runtime"

// Locality controls how many location partitions (NUMA-like domains) a
// Queue or Pool is split into (spec.md §6, `jana:locality`). Of the four
// enumerated values, Global and CoreLocal are given distinct
// CPU-assignment behavior; SocketLocal and NumaLocal fall back to
// Global's single-location behavior, since no NUMA topology discovery
// library is in this repo's dependency set (DESIGN.md, Open Question
// resolutions). Global (L=1) always works, as spec.md §9 requires.
type Locality int

const (
	LocalityGlobal Locality = iota
	LocalitySocketLocal
	LocalityNumaLocal
	LocalityCoreLocal
)

func (l Locality) String() string {
	switch l {
	case LocalityGlobal:
		return "Global"
	case LocalitySocketLocal:
		return "SocketLocal"
	case LocalityNumaLocal:
		return "NumaLocal"
	case LocalityCoreLocal:
		return "CoreLocal"
	default:
		return "Global"
	}
}

// ParseLocality maps the jana:locality parameter value to a Locality,
// defaulting to Global for anything unrecognized.
func ParseLocality(s string) Locality {
	switch s {
	case "SocketLocal":
		return LocalitySocketLocal
	case "NumaLocal":
		return LocalityNumaLocal
	case "CoreLocal":
		return LocalityCoreLocal
	default:
		return LocalityGlobal
	}
}

// locationCount returns the number of location partitions (L in spec.md
// §4.2) for a given locality and worker count.
func locationCount(locality Locality, nthreads int) int {
	switch locality {
	case LocalityCoreLocal:
		if nthreads < 1 {
			return 1
		}
		return nthreads
	case LocalitySocketLocal, LocalityNumaLocal:
		// Falls back to Global: no NUMA topology discovery in this
		// module's dependency set.
		return 1
	default:
		return 1
	}
}

// ProcessorMapping assigns each worker id to a (cpu, location) pair, the
// Go shape of the original's {worker-id -> (cpu-id, location-id)} table
// (spec.md §3, "Topology").
type ProcessorMapping struct {
	locality Locality
	entries  []mappingEntry
}

type mappingEntry struct {
	cpuID      int
	locationID int
}

// NewProcessorMapping builds a mapping for nthreads workers under the
// given locality. CPU assignment is round-robin over the available
// logical CPUs (runtime.NumCPU), which is all the affinity information
// this module attempts without an OS-specific pinning library.
func NewProcessorMapping(locality Locality, nthreads int) ProcessorMapping {
	ncpu := runtime.NumCPU()
	if ncpu < 1 {
		ncpu = 1
	}
	locs := locationCount(locality, nthreads)
	entries := make([]mappingEntry, nthreads)
	for i := range entries {
		loc := 0
		if locs > 1 {
			loc = i % locs
		}
		entries[i] = mappingEntry{cpuID: i % ncpu, locationID: loc}
	}
	return ProcessorMapping{locality: locality, entries: entries}
}

// LocationOf returns the location id assigned to workerID.
func (m ProcessorMapping) LocationOf(workerID int) int {
	if workerID < 0 || workerID >= len(m.entries) {
		return 0
	}
	return m.entries[workerID].locationID
}

// Locations returns the number of distinct location partitions in use.
func (m ProcessorMapping) Locations() int {
	max := 0
	for _, e := range m.entries {
		if e.locationID > max {
			max = e.locationID
		}
	}
	return max + 1
}
