package publisher

import (
	"fmt"
	"time"
)

// BackoffPolicy computes the delay before a retry attempt. It is a pure
// function of its parameters: callers own the actual sleep.
type BackoffPolicy struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

// NewBackoffPolicy validates and builds a policy. Invalid parameters are
// configuration errors and are rejected here, at startup, not at first use.
func NewBackoffPolicy(initial, max time.Duration, multiplier float64) (BackoffPolicy, error) {
	if initial < 0 {
		return BackoffPolicy{}, fmt.Errorf("initial backoff must be non-negative, got %v", initial)
	}
	if max < initial {
		return BackoffPolicy{}, fmt.Errorf("max backoff (%v) must be >= initial backoff (%v)", max, initial)
	}
	if multiplier < 1 {
		return BackoffPolicy{}, fmt.Errorf("backoff multiplier must be >= 1, got %v", multiplier)
	}
	return BackoffPolicy{initial: initial, max: max, multiplier: multiplier}, nil
}

// Delay returns min(initial * multiplier^attempt, max) for a 0-based attempt
// index. Negative attempts are treated as 0.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.initial)
	for i := 0; i < attempt; i++ {
		d *= p.multiplier
		if d >= float64(p.max) {
			return p.max
		}
	}
	if d > float64(p.max) {
		return p.max
	}
	return time.Duration(d)
}
