package topology

import "testing"

func TestRunStateTransitions(t *testing.T) {
	cases := []struct {
		from, to RunState
		want     bool
	}{
		{StatePaused, StateRunning, true},
		{StatePaused, StateFinished, true},
		{StatePaused, StateFailed, false},
		{StateRunning, StatePausing, true},
		{StateRunning, StateDraining, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateFinished, false},
		{StatePausing, StatePaused, true},
		{StatePausing, StateRunning, false},
		{StateDraining, StatePaused, true},
		{StateFailed, StateRunning, false},
		{StateFinished, StateRunning, false},
	}
	for _, c := range cases {
		if got := c.from.canTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestRunStateString(t *testing.T) {
	if StateRunning.String() != "Running" {
		t.Fatalf("unexpected String(): %s", StateRunning.String())
	}
	if RunState(99).String() != "Unknown" {
		t.Fatalf("expected Unknown for out-of-range state")
	}
}
