package topology

import "time"

// worker is the engine's per-thread bookkeeping record (spec.md §4.6 step
// 4: "last-arrow-id, last-event-nr, last-checkout-time, warmed-up flag").
// All fields are read and written only while the engine mutex is held.
type worker struct {
	id           int
	location     int
	lastArrow    Name
	lastEventNr  uint64
	lastCheckout time.Time
	warmedUp     bool
	active       bool
	stop         bool
	err          *Error
}

// task is the unit exchanged between a worker goroutine and ExchangeTask
// (spec.md §4.6). A nil arrow is the worker's exit signal. status/err are
// filled in by the worker after it calls Fire, then read back by the next
// exchangeTask call to route outputs and account for failures.
type task struct {
	arrow   Arrow
	input   *Event
	outputs *OutputBuffer
	started time.Time
	loc     int
	grant   map[int]int // per-port downstream reservation, set by reserveOutputsLocked
	status  FireStatus
	err     error
}
