//go:build amd64

package coroed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskArgumentRoundTrip(t *testing.T) {
	sched := newTestScheduler(t, WithCapacity(1), WithWorkers(1))

	var observed int
	value := 42
	sched.Submit(func() {
		p := (*int)(CurrentTask().Argument())
		observed = *p
	}, unsafe.Pointer(&value))

	cancel, wait := startScheduler(sched)
	require.Eventually(t, func() bool { return observed == 42 }, time.Second, time.Millisecond)
	cancel()
	wait()
	sched.Destroy()
}

func TestTaskYieldOutsideRunningPanics(t *testing.T) {
	task := &Task{state: stateZombie}
	assert.PanicsWithValue(t, "coroed: Yield called outside a running task", func() {
		task.Yield()
	})
}

func TestCurrentTaskMatchesRunningTask(t *testing.T) {
	sched := newTestScheduler(t, WithCapacity(1), WithWorkers(1))

	var sawSelf int32
	var submitted *Task
	submitted = sched.Submit(func() {
		if CurrentTask() == submitted {
			atomic.StoreInt32(&sawSelf, 1)
		}
	}, nil)

	cancel, wait := startScheduler(sched)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&sawSelf) == 1 }, time.Second, time.Millisecond)
	cancel()
	wait()
	sched.Destroy()
}
