package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTimer(t *testing.T) {
	t.Run("fires after the duration", func(t *testing.T) {
		begin := time.Now()
		timer := GetTimer(20 * time.Millisecond)
		fired := <-timer.C
		PutTimer(timer)

		assert.GreaterOrEqual(t, fired.Sub(begin), 15*time.Millisecond)
	})

	t.Run("recycled active timer does not fire early", func(t *testing.T) {
		timer := GetTimer(10 * time.Millisecond)
		time.Sleep(20 * time.Millisecond) // let it fire unread
		PutTimer(timer)

		begin := time.Now()
		timer = GetTimer(100 * time.Millisecond)
		defer PutTimer(timer)

		select {
		case fired := <-timer.C:
			assert.GreaterOrEqual(t, fired.Sub(begin), 90*time.Millisecond)
		case <-time.After(300 * time.Millisecond):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("concurrent use", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}

func TestWait(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		begin := time.Now()
		require.NoError(t, Wait(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(begin), 9*time.Millisecond)
	})

	t.Run("zero duration checks the context", func(t *testing.T) {
		require.NoError(t, Wait(context.Background(), 0))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, Wait(ctx, 0), context.Canceled)
	})

	t.Run("canceled early", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		begin := time.Now()
		err := Wait(ctx, time.Second)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(begin), 500*time.Millisecond)
	})
}
