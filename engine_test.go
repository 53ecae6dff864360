package topology_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	topology "github.com/kestrelphysics/topology"
	"github.com/kestrelphysics/topology/testsupport"
)

func buildMinimal(t *testing.T, nevents, nthreads int) (*topology.Topology, *testsupport.MockProcessor) {
	t.Helper()
	reg := topology.NewRegistrar(nil)
	reg.AddSource(topology.LevelPhysicsEvent, func() topology.SourceBehavior {
		return testsupport.NewMockSource(nevents)
	})
	proc := testsupport.NewMockProcessor()
	reg.AddProcessor(topology.LevelPhysicsEvent, true, func() topology.ProcessorBehavior {
		return proc
	})
	tunables := topology.NewTunables(topology.NewMapParams(map[string]string{
		"nthreads":             intStr(nthreads),
		"jana:event_pool_size": "4",
	}))
	top, err := topology.NewBuilder(reg, tunables).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return top, proc
}

func intStr(n int) string {
	if n <= 0 {
		n = 1
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// TestMinimalScenario covers spec.md §8's "Minimal" end-to-end scenario: one
// source emitting a fixed count, one tap, exit with all events retired and
// the engine reaching Paused.
func TestMinimalScenario(t *testing.T) {
	top, proc := buildMinimal(t, 5, 1)
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 1), nil)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.State() != topology.StatePaused {
		t.Fatalf("expected Paused, got %s", eng.State())
	}
	if got := eng.EventsRetired(); got != 5 {
		t.Fatalf("expected 5 events retired, got %d", got)
	}
	if proc.CallCount() != 5 {
		t.Fatalf("expected processor called 5 times, got %d", proc.CallCount())
	}
	if err := eng.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if eng.State() != topology.StateFinished {
		t.Fatalf("expected Finished, got %s", eng.State())
	}
}

// TestParallelMapScenario mirrors spec.md §8's "Parallel map" scenario: many
// events driven through a parallel map arrow by several workers, verifying
// every event is processed exactly once despite concurrency.
func TestParallelMapScenario(t *testing.T) {
	const n = 1000
	top, proc := buildMinimal(t, n, 4)
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 4), nil)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := eng.EventsRetired(); got != n {
		t.Fatalf("expected %d events retired, got %d", n, got)
	}
	if proc.CallCount() != n {
		t.Fatalf("expected %d processor calls, got %d", n, proc.CallCount())
	}
	seen := map[uint64]bool{}
	for _, num := range proc.Seen() {
		if seen[num] {
			t.Fatalf("event %d processed more than once", num)
		}
		seen[num] = true
	}
}

// TestMassConservation exercises spec.md §8 property 1: pool occupancy plus
// queue occupancy equals the sum of initial pool capacities once the engine
// has quiesced.
func TestMassConservation(t *testing.T) {
	top, _ := buildMinimal(t, 200, 3)
	resident := top.ResidentEvents()
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 3), nil)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	total := top.TotalPoolOccupancy() + top.TotalQueueOccupancy()
	if total != resident {
		t.Fatalf("mass not conserved: resident=%d observed=%d", resident, total)
	}
}

// TestBoundedQueues covers spec.md §8 property 6: once the run has drained,
// no queue holds more than its configured threshold. Occupancy during the
// run and the pool's capacity are not checked here.
func TestBoundedQueues(t *testing.T) {
	reg := topology.NewRegistrar(nil)
	reg.AddSource(topology.LevelPhysicsEvent, func() topology.SourceBehavior {
		return testsupport.NewMockSource(500)
	})
	reg.AddProcessor(topology.LevelPhysicsEvent, true, func() topology.ProcessorBehavior {
		return testsupport.NewMockProcessor()
	})
	tunables := topology.NewTunables(topology.NewMapParams(map[string]string{
		"nthreads":                  "4",
		"jana:event_pool_size":      "8",
		"jana:event_queue_threshold": "8",
	}))
	top, err := topology.NewBuilder(reg, tunables).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 4), nil)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, q := range top.Queues {
		if occ := q.Size(); occ > q.Threshold() {
			t.Fatalf("queue %s occupancy %d exceeds threshold %d", q.Name(), occ, q.Threshold())
		}
	}
}

// TestUnfoldFoldRoundTrip covers spec.md §8 property 5 and the "Unfold/fold"
// scenario: every parent that enters the unfolder produces exactly one
// joined parent from the matching folder, and sub-ids cover 0..N-1.
func TestUnfoldFoldRoundTrip(t *testing.T) {
	const parents = 5
	const childrenPerParent = 4

	reg := topology.NewRegistrar(nil)
	reg.AddSource(topology.LevelTimeslice, func() topology.SourceBehavior {
		return testsupport.NewMockSource(parents)
	})

	var subIDsMu sync.Mutex
	subIDsByParent := map[uint64][]int{}
	var unfoldCalls int64

	unfolder := &testsupport.MockUnfolder{
		ChildrenPerParent: childrenPerParent,
		UnfoldFunc: func(ctx context.Context, parent, child *topology.Event, itemIndex int) (topology.UnfoldStatus, error) {
			atomic.AddInt64(&unfoldCalls, 1)
			subIDsMu.Lock()
			subIDsByParent[parent.Number()] = append(subIDsByParent[parent.Number()], itemIndex)
			subIDsMu.Unlock()
			if itemIndex >= childrenPerParent-1 {
				return topology.NextParent, nil
			}
			return topology.KeepParent, nil
		},
	}
	reg.AddUnfolder(topology.LevelTimeslice, topology.LevelSubevent, func() topology.Unfolder {
		return unfolder
	})

	folder := testsupport.NewMockFolder()
	reg.AddFolder(topology.LevelTimeslice, topology.LevelSubevent, func() topology.Folder {
		return folder
	})

	childProc := testsupport.NewMockProcessor()
	reg.AddProcessor(topology.LevelSubevent, true, func() topology.ProcessorBehavior {
		return childProc
	})

	tunables := topology.NewTunables(topology.NewMapParams(map[string]string{
		"nthreads":             "2",
		"jana:event_pool_size": "16",
	}))
	top, err := topology.NewBuilder(reg, tunables).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 2), nil)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := childProc.CallCount(); got != parents*childrenPerParent {
		t.Fatalf("expected %d child events processed, got %d", parents*childrenPerParent, got)
	}
	if got := unfoldCalls; got != int64(parents*childrenPerParent) {
		t.Fatalf("expected Unfold called %d times, got %d", parents*childrenPerParent, got)
	}
	if got := folder.Calls(); got != parents {
		t.Fatalf("expected folder to fold exactly %d parents, got %d", parents, got)
	}
	subIDsMu.Lock()
	defer subIDsMu.Unlock()
	if len(subIDsByParent) != parents {
		t.Fatalf("expected %d distinct parents unfolded, got %d", parents, len(subIDsByParent))
	}
	for parentNum, ids := range subIDsByParent {
		seen := map[int]bool{}
		for _, id := range ids {
			seen[id] = true
		}
		if len(seen) != childrenPerParent {
			t.Fatalf("parent %d: expected sub-ids 0..%d, got %v", parentNum, childrenPerParent-1, ids)
		}
		for i := 0; i < childrenPerParent; i++ {
			if !seen[i] {
				t.Fatalf("parent %d missing sub-id %d", parentNum, i)
			}
		}
	}
}

// TestMidRunPauseThenFinish covers spec.md §8's "Mid-run pause" scenario and
// property 3 (pause idempotence): requesting a pause and resuming later
// retires every event exactly once with no duplicates.
func TestMidRunPauseThenFinish(t *testing.T) {
	top, proc := buildMinimal(t, 100, 2)
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 2), nil)

	go func() {
		for eng.EventsRetired() < 30 {
			time.Sleep(time.Millisecond)
		}
		eng.RequestPause()
	}()

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if eng.State() != topology.StatePaused {
		t.Fatalf("expected Paused after pause request, got %s", eng.State())
	}

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := eng.EventsRetired(); got != 100 {
		t.Fatalf("expected exactly 100 events retired total, got %d", got)
	}
	seen := map[uint64]bool{}
	for _, num := range proc.Seen() {
		if seen[num] {
			t.Fatalf("event %d processed more than once across pause/resume", num)
		}
		seen[num] = true
	}
}

// TestNoStarvationReachesFinished covers spec.md §8 property 4: given
// finite sources and no failures, the engine always reaches Paused and then
// Finished after Finish().
func TestNoStarvationReachesFinished(t *testing.T) {
	top, _ := buildMinimal(t, 50, 4)
	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 4), nil)

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine never reached Paused — possible starvation")
	}
	if eng.State() != topology.StatePaused {
		t.Fatalf("expected Paused, got %s", eng.State())
	}
	if err := eng.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if eng.State() != topology.StateFinished {
		t.Fatalf("expected Finished, got %s", eng.State())
	}
}

// TestTimeoutFailsEngineWithBacktrace covers spec.md §8 property 7 and the
// "Timeout" scenario: a processor that never returns trips the supervisor's
// timeout and fails the engine. The backtrace travels with the error the
// supervisor passes to FailWorker and is not inspected here; the test checks
// the Failed state.
func TestTimeoutFailsEngineWithBacktrace(t *testing.T) {
	reg := topology.NewRegistrar(nil)
	reg.AddSource(topology.LevelPhysicsEvent, func() topology.SourceBehavior {
		return testsupport.NewMockSource(1)
	})
	block := make(chan struct{})
	reg.AddProcessor(topology.LevelPhysicsEvent, false, func() topology.ProcessorBehavior {
		return testsupport.NewMockProcessor().WithFunc(func(ctx context.Context, ev *topology.Event) error {
			<-block
			return nil
		})
	})
	tunables := topology.NewTunables(topology.NewMapParams(map[string]string{
		"nthreads":             "1",
		"jana:event_pool_size": "2",
		"jana:timeout":         "1",
		"jana:warmup_timeout":  "1",
		"jana:ticker_interval": "0",
	}))
	top, err := topology.NewBuilder(reg, tunables).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Unblocks the stalled processor after the test has observed Failed, so
	// the leftover worker/Run goroutines can exit cleanly instead of leaking
	// past the end of the test.
	defer close(block)

	eng := topology.NewEngine(top, topology.NewProcessorMapping(topology.LocalityGlobal, 1), nil)
	sup := topology.NewSupervisor(eng, tunables, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The blocking processor never returns, so its worker is permanently
	// stalled inside Fire; only the supervisor's timeout check can notice
	// the missed checkout and fail the engine — Run() itself never returns
	// while that worker is stuck.
	go func() { _ = eng.Run(ctx) }()
	go sup.Watch(ctx)

	deadline := time.After(8 * time.Second)
	for {
		if eng.State() == topology.StateFailed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("engine never transitioned to Failed on timeout")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
