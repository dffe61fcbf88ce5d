// Package pool recycles the timers used by the send loop for pacing sleeps
// and acknowledgment polling.
package pool

import (
	"context"
	"sync"
	"time"
)

var timers sync.Pool

// GetTimer returns a timer that fires after d.
//
// Hand it back with PutTimer once it has fired or is no longer needed.
func GetTimer(d time.Duration) *time.Timer {
	t, ok := timers.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}
	if t.Reset(d) {
		drain(t)
	}

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		drain(t)
	}
	timers.Put(t)
}

// Wait blocks for d or until ctx is done, whichever comes first, and returns
// ctx.Err() in the latter case. A non-positive d only checks ctx.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func drain(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
