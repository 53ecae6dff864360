package topology

import "github.com/zoobzio/clockz"

// defaultClock returns the real wall clock, used when NewEngine or
// NewSupervisor is given a nil clock. Tests can pass clockz.NewFakeClock()
// as that clock argument so timeout and ticker behavior can be driven
// deterministically.
func defaultClock() clockz.Clock {
	return clockz.RealClock
}
