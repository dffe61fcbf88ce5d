package sender

import (
	"context"
	"runtime"
	"time"

	"github.com/arloliu/go-autd/internal/pool"
)

// Sleeper suspends the send loop for a duration.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// StdSleeper blocks on a pooled timer. It does not observe ctx.
type StdSleeper struct{}

// Sleep blocks for d. A non-positive d returns immediately.
func (StdSleeper) Sleep(_ context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := pool.GetTimer(d)
	<-t.C
	pool.PutTimer(t)

	return nil
}

// SpinSleeper busy-waits, yielding the processor between checks. It trades
// CPU time for sub-millisecond accuracy and observes ctx.
type SpinSleeper struct{}

// Sleep spins until d has elapsed and returns ctx.Err() if ctx is done first.
func (SpinSleeper) Sleep(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}

	return ctx.Err()
}

// ContextSleeper waits on a pooled timer and returns early with ctx.Err()
// when ctx is done.
type ContextSleeper struct{}

// Sleep blocks for d or until ctx is done, whichever comes first.
func (ContextSleeper) Sleep(ctx context.Context, d time.Duration) error {
	return pool.Wait(ctx, d)
}

// TimerStrategy paces consecutive steps of the send loop.
type TimerStrategy interface {
	// Initial returns the reference instant of a new loop.
	Initial() time.Time
	// Sleep waits for the next step and returns the reference instant to pass
	// to the following call.
	Sleep(ctx context.Context, last time.Time, interval time.Duration) (time.Time, error)
}

// FixedSchedule keeps the average step rate: a step that ran late is followed
// by a shorter sleep. The n-th step is due at Initial() + n*interval.
type FixedSchedule struct {
	Sleeper Sleeper
}

// Initial returns the current time as the first deadline base.
func (FixedSchedule) Initial() time.Time { return time.Now() }

// Sleep waits until last+interval and returns that instant, so that lateness
// of one step does not accumulate.
func (s FixedSchedule) Sleep(ctx context.Context, last time.Time, interval time.Duration) (time.Time, error) {
	next := last.Add(interval)
	wait := time.Until(next)
	if wait < 0 {
		wait = 0
	}

	return next, s.Sleeper.Sleep(ctx, wait)
}

// FixedDelay sleeps the full interval after every step regardless of how long
// the step took.
type FixedDelay struct {
	Sleeper Sleeper
}

// Initial returns the current time. FixedDelay does not use it for pacing.
func (FixedDelay) Initial() time.Time { return time.Now() }

// Sleep waits the full interval and returns last unchanged.
func (s FixedDelay) Sleep(ctx context.Context, last time.Time, interval time.Duration) (time.Time, error) {
	return last, s.Sleeper.Sleep(ctx, interval)
}
