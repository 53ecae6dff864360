package topology

// Name is a short human-readable identifier used throughout the topology for
// arrows, pools, queues, and factories. It appears in error paths, signals,
// and the supervisor's worker report.
type Name = string

// Level identifies the tier an Event belongs to within the multi-level event
// model (spec.md §3, §4.4). Levels are ordered, and Build wires them in
// ascending order, so an Unfolder's child level sorts after its parent
// level (not necessarily the next one), and a Folder joins children back
// up to their parent's level.
type Level int

// Well-known levels. A topology is free to define additional intermediate
// levels between PhysicsEvent and Subevent; the framework only requires that
// every level present in the component list have exactly one Pool (spec.md
// §4.5).
const (
	LevelTimeslice Level = iota
	LevelPhysicsEvent
	LevelSubevent
)

// String renders a Level for logs and signal fields.
func (l Level) String() string {
	switch l {
	case LevelTimeslice:
		return "timeslice"
	case LevelPhysicsEvent:
		return "physics_event"
	case LevelSubevent:
		return "subevent"
	default:
		return "level"
	}
}
