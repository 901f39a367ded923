package timer

import "testing"

type fakeClock struct {
	now     uint64
	compare uint64
}

func (f *fakeClock) Now() uint64            { return f.now }
func (f *fakeClock) SetCompare(when uint64) { f.compare = when }

// advance simulates time passing and fires the handler if the armed
// compare value has been reached, mimicking what a real trap would do.
func (f *fakeClock) advance(delta uint64) {
	f.now += delta
	if f.now >= f.compare {
		tick(0)
	}
}

func TestInitArmsFirstInterrupt(t *testing.T) {
	clock := &fakeClock{now: 100}
	Init(clock, 10)

	if clock.compare != 110 {
		t.Fatalf("expected compare armed at 110, got %d", clock.compare)
	}
	if Ticks() != 0 {
		t.Fatalf("expected 0 ticks immediately after Init, got %d", Ticks())
	}
}

func TestTickAdvancesAndRearms(t *testing.T) {
	clock := &fakeClock{now: 0}
	Init(clock, 5)

	clock.advance(5)
	if Ticks() != 1 {
		t.Fatalf("expected 1 tick, got %d", Ticks())
	}
	if clock.compare != 10 {
		t.Fatalf("expected compare rearmed at 10, got %d", clock.compare)
	}

	clock.advance(5)
	if Ticks() != 2 {
		t.Fatalf("expected 2 ticks, got %d", Ticks())
	}
}

func TestReInitReplacesHandlerRatherThanStacking(t *testing.T) {
	clock := &fakeClock{now: 0}
	Init(clock, 5)
	Init(clock, 5)

	clock.advance(5)
	if Ticks() != 1 {
		t.Fatalf("expected exactly 1 tick per period after re-Init, got %d", Ticks())
	}
}

func TestSetNextTimerDoesNotDisturbPeriod(t *testing.T) {
	clock := &fakeClock{now: 0}
	Init(clock, 100)

	SetNextTimer(3)
	if clock.compare != 3 {
		t.Fatalf("expected one-off compare at 3, got %d", clock.compare)
	}

	clock.advance(3)
	if clock.compare != 103 {
		t.Fatalf("expected periodic rearm back to now+period (103), got %d", clock.compare)
	}
}

func TestGetTimeReflectsComparator(t *testing.T) {
	clock := &fakeClock{now: 42}
	Init(clock, 1)
	if GetTime() != 42 {
		t.Fatalf("expected GetTime to read through to the comparator, got %d", GetTime())
	}
}
