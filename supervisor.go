package topology

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

// Supervisor is the Engine's watchdog (spec.md §4.7): a ticker loop that
// compares every worker's last-checkout time against the warmup/
// steady-state timeout, fails the engine on violation with a captured
// goroutine dump, drains OS signals, and services the status channel.
type Supervisor struct {
	engine   *Engine
	tunables Tunables
	clock    clockz.Clock
	tracer   *tracez.Tracer
	status   *StatusChannel

	sigintCount int
}

// NewSupervisor returns a Supervisor watching engine at the cadence and
// timeouts recorded in tunables. status may be nil (no status-FIFO
// configured).
func NewSupervisor(engine *Engine, tunables Tunables, clock clockz.Clock, status *StatusChannel) *Supervisor {
	if clock == nil {
		clock = defaultClock()
	}
	return &Supervisor{
		engine:   engine,
		tunables: tunables,
		clock:    clock,
		tracer:   tracez.New(),
		status:   status,
	}
}

// Watch runs the ticker loop until the engine reaches a terminal state or
// ctx is cancelled. It is meant to run concurrently with Engine.Run, e.g.
// `go sup.Watch(ctx)` alongside `engine.Run(ctx)`.
func (s *Supervisor) Watch(ctx context.Context) {
	sigCh := s.installSignalHandler()
	defer s.removeSignalHandler(sigCh)

	interval := s.tunables.TickerInterval
	if interval <= 0 {
		interval = time.Second
	}

	for {
		timer := s.clock.After(interval)
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			s.handleSignal(ctx, sig)
		case <-timer:
			s.tick(ctx)
		}
		switch s.engine.State() {
		case StatePaused, StateFailed, StateFinished:
			return
		}
	}
}

// tick performs one watchdog pass: the timeout check, then the status
// channel poll.
func (s *Supervisor) tick(ctx context.Context) {
	ctx, span := s.tracer.StartSpan(ctx, SpanSupervisorTick)
	defer span.Finish()

	workers := s.engine.SnapshotWorkers()
	span.SetTag(TagTickWorkers, strconv.Itoa(len(workers)))
	capitan.Info(ctx, SignalSupervisorTick, FieldWorkerCount.Field(len(workers)))

	now := s.clock.Now()
	for _, w := range workers {
		if !w.Active {
			continue
		}
		limit := s.tunables.Timeout
		if !w.WarmedUp {
			limit = s.tunables.WarmupTimeout
		}
		if limit <= 0 {
			continue
		}
		if stalled := now.Sub(w.LastCheckout); stalled > limit {
			s.failOnTimeout(ctx, w, stalled)
			return
		}
	}

	if s.status != nil && s.status.Poll() {
		capitan.Info(ctx, SignalSupervisorStatusReport, FieldEventsTotal.Field(int(s.engine.EventsRetired())))
		_ = s.status.WriteReport(s.engine.Report().String())
	}
}

// failOnTimeout fails the engine with a KindTimeout error carrying a
// captured goroutine dump, the way spec.md §7's "backtrace on timeout"
// testable property requires.
func (s *Supervisor) failOnTimeout(ctx context.Context, w WorkerSnapshot, stalled time.Duration) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)

	capitan.Error(ctx, SignalSupervisorTimeout,
		FieldWorkerID.Field(w.ID),
		FieldName.Field(w.LastArrow),
	)

	err := &Error{
		Err:       fmt.Errorf("worker %d stalled on arrow %q for %s", w.ID, w.LastArrow, stalled),
		Component: w.LastArrow,
		Kind:      KindTimeout,
		Duration:  stalled,
		Backtrace: string(buf[:n]),
		Timestamp: s.clock.Now(),
	}
	s.engine.FailWorker(w.ID, err)
}
