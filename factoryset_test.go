package topology

import (
	"context"
	"errors"
	"testing"
)

type hit struct{ value int }

func TestGetIsIdempotentPerEvent(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	calls := 0
	f := NewFactoryT[hit]("hit", "", func(context.Context, *Event) ([]hit, error) {
		calls++
		return []hit{{value: calls}}, nil
	})
	ev.Factories().Register(f)

	first, err := Get[hit](context.Background(), ev, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Get[hit](context.Background(), ev, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected process to run exactly once, ran %d times", calls)
	}
	if first[0].value != second[0].value {
		t.Fatalf("expected identical cached result across Get calls")
	}
}

func TestGetUnknownFactoryReturnsErrFactoryNotFound(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	_, err := Get[hit](context.Background(), ev, "missing")
	if err == nil || !errors.Is(err, ErrFactoryNotFound) {
		t.Fatalf("expected ErrFactoryNotFound, got %v", err)
	}
}

func TestInsertBypassesProcess(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	Insert[hit](ev, "seed", []hit{{value: 42}})

	got, err := Get[hit](context.Background(), ev, "seed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].value != 42 {
		t.Fatalf("expected inserted value 42, got %v", got)
	}
}

type base struct{ label string }

func TestRegisterUpcastProjectsToBase(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	f := NewFactoryT[hit]("hit", "", func(context.Context, *Event) ([]hit, error) {
		return []hit{{value: 7}}, nil
	})
	RegisterUpcast[hit, base](f, func(h hit) base { return base{label: "seven"} })
	ev.Factories().Register(f)

	projected, err := GetAs[base](context.Background(), ev, "hit", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projected) != 1 || projected[0].label != "seven" {
		t.Fatalf("expected upcast projection, got %v", projected)
	}
}

func TestGetAsWithoutRegisteredUpcastReturnsEmpty(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	f := NewFactoryT[hit]("hit", "", func(context.Context, *Event) ([]hit, error) {
		return []hit{{value: 1}}, nil
	})
	ev.Factories().Register(f)

	projected, err := GetAs[base](context.Background(), ev, "hit", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projected) != 0 {
		t.Fatalf("expected empty projection without a registered upcast, got %v", projected)
	}
}

func TestResetClearsNonPersistentFactory(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	calls := 0
	f := NewFactoryT[hit]("hit", "", func(context.Context, *Event) ([]hit, error) {
		calls++
		return []hit{{value: calls}}, nil
	})
	ev.Factories().Register(f)
	_, _ = Get[hit](context.Background(), ev, "")

	ev.Reset()
	_, _ = Get[hit](context.Background(), ev, "")
	if calls != 2 {
		t.Fatalf("expected process to rerun after Reset, got %d calls", calls)
	}
}

func TestPersistentFactorySurvivesReset(t *testing.T) {
	ev := NewEvent(LevelPhysicsEvent)
	calls := 0
	f := NewFactoryT[hit]("hit", "", func(context.Context, *Event) ([]hit, error) {
		calls++
		return []hit{{value: calls}}, nil
	}, WithPersistent[hit](true))
	ev.Factories().Register(f)
	_, _ = Get[hit](context.Background(), ev, "")

	ev.Reset()
	got, _ := Get[hit](context.Background(), ev, "")
	if calls != 1 {
		t.Fatalf("expected persistent factory not to reprocess, got %d calls", calls)
	}
	if len(got) != 1 || got[0].value != 1 {
		t.Fatalf("expected cached persistent value, got %v", got)
	}
}
