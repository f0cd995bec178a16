package clock

import (
	"testing"
	"time"
)

func TestFixedSetAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(500 * time.Millisecond)
	want := start.Add(500 * time.Millisecond)
	if got := c.Now(); !got.Equal(want) {
		t.Fatalf("after Advance, Now() = %v, want %v", got, want)
	}

	later := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Fatalf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestFixedTruncatesToMilliseconds(t *testing.T) {
	withNanos := time.Date(2026, 1, 1, 0, 0, 0, 123456789, time.UTC)
	c := NewFixed(withNanos)
	if got := c.Now().Nanosecond(); got != 123000000 {
		t.Fatalf("Now().Nanosecond() = %d, want sub-millisecond truncated to 123000000", got)
	}
}

func TestSystemClockMillisecondGranularity(t *testing.T) {
	c := New()
	now := c.Now()
	if now.Nanosecond()%int(time.Millisecond) != 0 {
		t.Fatalf("System.Now() not truncated to millisecond: %v", now)
	}
}
