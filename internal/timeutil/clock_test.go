package timeutil

import (
	"math"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_After(t *testing.T) {
	clock := RealClock{}

	select {
	case <-clock.After(10 * time.Millisecond):
	case <-time.After(time.Second):
		t.Error("After did not fire")
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)

	if now := clock.Now(); !now.Equal(fixedTime) {
		t.Errorf("got %v, want %v", now, fixedTime)
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(time.Hour)

	if got := clock.Since(start); got != time.Hour {
		t.Errorf("got %v, want 1h", got)
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Sleep(50 * time.Millisecond)
	clock.Sleep(50 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("got %d sleeps, want 2", len(sleeps))
	}
	if got := clock.Since(start); got != 100*time.Millisecond {
		t.Errorf("clock advanced %v, want 100ms", got)
	}
}

func TestMockClock_After(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ch := clock.After(time.Second)

	if clock.Waiters() != 1 {
		t.Fatalf("got %d waiters, want 1", clock.Waiters())
	}

	select {
	case <-ch:
		t.Error("After channel received too early")
	default:
	}

	clock.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Error("After channel received before its deadline")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(time.Second)) {
			t.Errorf("got %v, want %v", got, start.Add(time.Second))
		}
	default:
		t.Error("After channel did not receive at its deadline")
	}

	if clock.Waiters() != 0 {
		t.Errorf("fired waiter still pending")
	}
}

func TestMockClock_AfterZero(t *testing.T) {
	clock := NewMockClock(time.Now())

	select {
	case <-clock.After(0):
	default:
		t.Error("After(0) should be ready immediately")
	}
}

func TestMicros_Sub(t *testing.T) {
	tests := []struct {
		name    string
		later   Micros
		earlier Micros
		want    time.Duration
	}{
		{"simple", 5_000_000, 0, 5 * time.Second},
		{"equal", 1234, 1234, 0},
		{"across wrap", 999, math.MaxUint32 - 1000, 2000 * time.Microsecond},
		{"exactly at wrap", 0, math.MaxUint32, time.Microsecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.later.Sub(tt.earlier); got != tt.want {
				t.Errorf("Sub() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMicros_AddWraps(t *testing.T) {
	start := Micros(math.MaxUint32 - 10)
	next := start.Add(20 * time.Microsecond)

	if next != 9 {
		t.Errorf("Add() = %d, want 9", next)
	}
	if !next.After(start) {
		t.Error("wrapped reading should be after the earlier one")
	}
	if start.After(next) {
		t.Error("earlier reading should not be after the wrapped one")
	}
	if got := next.Sub(start); got != 20*time.Microsecond {
		t.Errorf("Sub() across wrap = %v, want 20µs", got)
	}
}
