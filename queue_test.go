package topology

import (
	"context"
	"testing"
)

func TestQueueReservePushPopRoundTrip(t *testing.T) {
	q := NewQueue("q", LevelPhysicsEvent, 4, 1, false)
	ctx := context.Background()

	granted := q.Reserve(ctx, 3, 0)
	if granted != 3 {
		t.Fatalf("expected 3 granted, got %d", granted)
	}

	evs := []*Event{NewEvent(LevelPhysicsEvent), NewEvent(LevelPhysicsEvent), NewEvent(LevelPhysicsEvent)}
	if status := q.Push(ctx, evs, granted, 0); status != StatusReady {
		t.Fatalf("expected StatusReady, got %v", status)
	}
	if got := q.Size(); got != 3 {
		t.Fatalf("expected size 3, got %d", got)
	}

	popped, status := q.Pop(2, 0)
	if len(popped) != 2 {
		t.Fatalf("expected to pop 2, got %d", len(popped))
	}
	if status != StatusReady {
		t.Fatalf("expected StatusReady after partial drain, got %v", status)
	}
}

func TestQueueReserveNeverExceedsThreshold(t *testing.T) {
	q := NewQueue("q", LevelPhysicsEvent, 2, 1, false)
	ctx := context.Background()

	granted := q.Reserve(ctx, 5, 0)
	if granted != 2 {
		t.Fatalf("expected reservation capped at threshold 2, got %d", granted)
	}

	// A second reservation while the first is still outstanding must see
	// zero headroom.
	if more := q.Reserve(ctx, 1, 0); more != 0 {
		t.Fatalf("expected 0 additional headroom while reserved, got %d", more)
	}
}

func TestQueuePopEmptyReportsEmpty(t *testing.T) {
	q := NewQueue("q", LevelPhysicsEvent, 4, 1, false)
	items, status := q.Pop(1, 0)
	if len(items) != 0 || status != StatusEmpty {
		t.Fatalf("expected (nil, StatusEmpty), got (%v, %v)", items, status)
	}
}

func TestQueueStealingDrawsFromOtherLocation(t *testing.T) {
	q := NewQueue("q", LevelPhysicsEvent, 4, 2, true)
	ctx := context.Background()

	ev := NewEvent(LevelPhysicsEvent)
	granted := q.Reserve(ctx, 1, 1)
	q.Push(ctx, []*Event{ev}, granted, 1)

	items, _, from := q.TryStealPop(1, 0)
	if len(items) != 1 {
		t.Fatalf("expected to steal 1 item, got %d", len(items))
	}
	if from != 1 {
		t.Fatalf("expected steal to report source location 1, got %d", from)
	}
}

func TestQueueStealingDisabledFindsNothing(t *testing.T) {
	q := NewQueue("q", LevelPhysicsEvent, 4, 2, false)
	ctx := context.Background()
	granted := q.Reserve(ctx, 1, 1)
	q.Push(ctx, []*Event{NewEvent(LevelPhysicsEvent)}, granted, 1)

	items, status, _ := q.TryStealPop(1, 0)
	if len(items) != 0 || status != StatusEmpty {
		t.Fatalf("expected no steal when disabled, got (%v, %v)", items, status)
	}
}

func TestPoolAcquireReleasePreservesCapacity(t *testing.T) {
	p := NewPool("pool", LevelPhysicsEvent, 4, 1)
	ctx := context.Background()

	if p.Capacity() != 4 {
		t.Fatalf("expected capacity 4, got %d", p.Capacity())
	}

	events, status := p.Acquire(ctx, 4, 0)
	if len(events) != 4 || status == StatusEmpty {
		t.Fatalf("expected to acquire all 4, got %d (%v)", len(events), status)
	}
	if more, status := p.Acquire(ctx, 1, 0); len(more) != 0 || status != StatusEmpty {
		t.Fatalf("expected exhausted pool, got %d (%v)", len(more), status)
	}

	p.Release(ctx, events, 0)
	if p.Size() != 4 {
		t.Fatalf("expected resident count to return to capacity, got %d", p.Size())
	}
}
