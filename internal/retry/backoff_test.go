package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

func TestDelay_Bounds(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond

	for n := range 8 {
		lo := time.Duration(float64(base) * float64(int(1)<<n))
		hi := time.Duration(float64(lo) * 1.5)
		if hi > MaxDelay {
			hi = MaxDelay
		}
		if lo > MaxDelay {
			lo = MaxDelay
		}
		for _, j := range []float64{0, 0.25, 0.5, 0.999} {
			d := Delay(n, base, j)
			if d < lo || d > hi {
				t.Errorf("Delay(%d, %s, %v) = %s, want within [%s, %s]", n, base, j, d, lo, hi)
			}
		}
	}
}

func TestDelay_Exact(t *testing.T) {
	t.Parallel()
	if got := Delay(0, time.Second, 0); got != time.Second {
		t.Errorf("Delay(0, 1s, 0) = %s, want 1s", got)
	}
	if got := Delay(2, time.Second, 0.5); got != 5*time.Second {
		t.Errorf("Delay(2, 1s, 0.5) = %s, want 5s", got)
	}
}

func TestDelay_Cap(t *testing.T) {
	t.Parallel()
	if got := Delay(10, time.Second, 0.9); got != MaxDelay {
		t.Errorf("Delay(10, 1s) = %s, want cap %s", got, MaxDelay)
	}
	if got := Delay(0, time.Hour, 0); got != MaxDelay {
		t.Errorf("Delay(0, 1h) = %s, want cap %s", got, MaxDelay)
	}
	if got := Delay(200, time.Second, 0); got != MaxDelay {
		t.Errorf("Delay(200, 1s) = %s, want cap %s", got, MaxDelay)
	}
}

func TestNewBackoff_Sequence(t *testing.T) {
	t.Parallel()
	b := NewBackoff(Policy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond}, func() float64 { return 0 })

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, w := range want {
		d, stop := b.Next()
		if stop {
			t.Fatalf("step %d: stopped early", i)
		}
		if d != w {
			t.Errorf("step %d: delay = %s, want %s", i, d, w)
		}
	}
	if _, stop := b.Next(); !stop {
		t.Error("backoff should stop after MaxRetries")
	}
}

func TestNewBackoff_AttemptCount(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("boom")
	b := NewBackoff(Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)

	attempts := 0
	err := goretry.Do(context.Background(), b, func(context.Context) error {
		attempts++
		return goretry.RetryableError(errBoom)
	})
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if err != errBoom {
		t.Errorf("err = %v, want the last attempt's error unwrapped", err)
	}
}

func TestNewBackoff_ZeroRetries(t *testing.T) {
	t.Parallel()
	b := NewBackoff(Policy{MaxRetries: 0, BaseDelay: time.Millisecond}, nil)
	if _, stop := b.Next(); !stop {
		t.Error("zero retries should stop immediately")
	}
}
