package utils

import (
	"context"
	"time"
)

var sleep = time.Sleep

// WaitFor pauses for d, returning early with the context error if the
// context is cancelled first. Used as the escalation throttle pause so a
// session deadline can interrupt it.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Clamp bounds v to the inclusive [lo, hi] range.
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
