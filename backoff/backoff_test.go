package backoff

import (
	"testing"
	"time"
)

func TestConstantDelay(t *testing.T) {
	t.Parallel()

	c := NewConstant(5 * time.Second)
	for _, attempt := range []int{0, 1, 100} {
		if d := c.Delay(attempt); d != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, d)
		}
	}
}

func TestExponentialDoublesUntilCap(t *testing.T) {
	t.Parallel()

	e := NewExponential(time.Second, 30*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if d := e.Delay(tt.attempt); d != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, d, tt.want)
		}
	}
}

func TestExponentialNegativeAttemptClampsToBase(t *testing.T) {
	t.Parallel()

	e := NewExponential(time.Second, 30*time.Second)
	if d := e.Delay(-3); d != time.Second {
		t.Errorf("Delay(-3) = %v, want base 1s", d)
	}
}

func TestExponentialOverflowSaturatesAtMax(t *testing.T) {
	t.Parallel()

	e := NewExponential(time.Second, 30*time.Second)
	// 2^80 seconds overflows time.Duration; the cap must still hold.
	if d := e.Delay(80); d != 30*time.Second {
		t.Errorf("Delay(80) = %v, want cap 30s", d)
	}
}

func TestJitterStaysWithinBound(t *testing.T) {
	t.Parallel()

	e := NewExponentialWithJitter(time.Second, 30*time.Second, time.Second)

	for attempt := 0; attempt < 8; attempt++ {
		base := NewExponential(time.Second, 30*time.Second).Delay(attempt)
		for i := 0; i < 50; i++ {
			d := e.Delay(attempt)
			if d < base || d >= base+time.Second {
				t.Fatalf("Delay(%d) = %v outside [%v, %v)", attempt, d, base, base+time.Second)
			}
		}
	}
}

func TestZeroJitterIsDeterministic(t *testing.T) {
	t.Parallel()

	e := NewExponentialWithJitter(time.Second, 30*time.Second, 0)
	if d := e.Delay(3); d != 8*time.Second {
		t.Errorf("Delay(3) = %v, want 8s with no jitter", d)
	}
}

func TestDefaultStrategyNonDecreasingBeforeCap(t *testing.T) {
	t.Parallel()

	// Strip jitter to compare the underlying curve.
	e := NewExponential(time.Second, 30*time.Second)
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := e.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}
