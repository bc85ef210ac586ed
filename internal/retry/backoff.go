package retry

import (
	"math"
	"math/rand/v2"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// MaxDelay bounds a single backoff wait regardless of attempt or base delay.
const MaxDelay = 30 * time.Second

// Policy is the per-call retry configuration.
type Policy struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
}

// DefaultPolicy retries three times starting from one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay returns the wait before retry n (zero-based):
// base*2^n plus jitter*0.5*base*2^n, capped at MaxDelay. jitter is in [0, 1).
func Delay(n int, base time.Duration, jitter float64) time.Duration {
	exp := float64(base) * math.Pow(2, float64(n))
	d := exp + jitter*0.5*exp
	if d >= float64(MaxDelay) {
		return MaxDelay
	}
	return time.Duration(d)
}

// NewBackoff returns a go-retry Backoff yielding Delay(0), Delay(1), ...
// and stopping after p.MaxRetries retries. rnd supplies the jitter; nil
// uses math/rand/v2.
func NewBackoff(p Policy, rnd func() float64) goretry.Backoff {
	if rnd == nil {
		rnd = rand.Float64
	}
	n := 0
	next := goretry.BackoffFunc(func() (time.Duration, bool) {
		d := Delay(n, p.BaseDelay, rnd())
		n++
		return d, false
	})
	return goretry.WithMaxRetries(uint64(max(0, p.MaxRetries)), next)
}
