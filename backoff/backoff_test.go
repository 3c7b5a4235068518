package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/jobstore/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for failures := 1; failures <= 5; failures++ {
		if got := c.Delay(failures); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", failures, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 1 * time.Second}, // clamped to the first failure
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.failures); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_Bounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 4*time.Second)
	for failures := 1; failures <= 6; failures++ {
		ceiling := backoff.NewExponential(time.Second, 4*time.Second).Delay(failures)
		for range 50 {
			if got := e.Delay(failures); got < 0 || got > ceiling {
				t.Fatalf("Delay(%d) = %v, outside [0, %v]", failures, got, ceiling)
			}
		}
	}
}

func TestTracker(t *testing.T) {
	tr := backoff.NewTracker(backoff.NewExponential(time.Millisecond, time.Second))

	if got := tr.Failure(); got != time.Millisecond {
		t.Errorf("first failure = %v, want 1ms", got)
	}
	if got := tr.Failure(); got != 2*time.Millisecond {
		t.Errorf("second failure = %v, want 2ms", got)
	}
	if tr.Failures() != 2 {
		t.Errorf("Failures() = %d, want 2", tr.Failures())
	}

	tr.Reset()
	if got := tr.Failure(); got != time.Millisecond {
		t.Errorf("after reset = %v, want 1ms", got)
	}
}

func TestTracker_NilStrategyUsesDefault(t *testing.T) {
	tr := backoff.NewTracker(nil)
	if d := tr.Failure(); d < 0 || d > 100*time.Millisecond {
		t.Errorf("default first delay = %v, want within [0, 100ms]", d)
	}
}
