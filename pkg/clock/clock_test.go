package clock

import (
	"testing"
	"time"
)

func TestManual_Advance(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Expected %v, got %v", start, c.Now())
	}

	got := c.Advance(1500 * time.Millisecond)
	want := start.Add(1500 * time.Millisecond)
	if !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("Expected %v after advance, got %v", want, c.Now())
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("Expected Set to rewind to %v, got %v", start, c.Now())
	}
}

func TestDefault(t *testing.T) {
	if _, ok := Default(nil).(Real); !ok {
		t.Error("Expected Default(nil) to return the wall clock")
	}

	m := NewManual(time.Unix(0, 0))
	if Default(m) != Clock(m) {
		t.Error("Expected Default to keep a provided clock")
	}
}
