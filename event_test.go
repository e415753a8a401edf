//go:build amd64

package coroed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFireIsIdempotent(t *testing.T) {
	var ev Event

	assert.False(t, ev.IsFired())
	ev.Fire()
	assert.True(t, ev.IsFired())
	assert.NotPanics(t, func() { ev.Fire() })
	assert.True(t, ev.IsFired())
}

// TestEventWaitUnblocksAfterFire runs one task that waits on an Event and
// another that does some work before firing it, and checks the waiter's
// work is only ever observed after the firer's.
func TestEventWaitUnblocksAfterFire(t *testing.T) {
	sched, err := NewScheduler(
		WithCapacity(4),
		WithWorkers(2),
		WithRetrySleep(time.Millisecond),
		WithRetryBudget(50),
	)
	require.NoError(t, err)

	var ev Event
	var firerDone, waiterSawFired int32

	sched.Submit(func() {
		CurrentTask().Yield() // give the waiter a chance to observe the unfired state
		atomic.StoreInt32(&firerDone, 1)
		ev.Fire()
	}, nil)

	sched.Submit(func() {
		task := CurrentTask()
		ev.Wait(task)
		if atomic.LoadInt32(&firerDone) == 1 {
			atomic.StoreInt32(&waiterSawFired, 1)
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sched.Start(ctx); close(done) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&waiterSawFired) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
	sched.Destroy()
}
