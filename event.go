//go:build amd64

package coroed

import "sync/atomic"

// Event is a one-shot boolean synchronizer: init-fired-false, may
// transition to fired-true at most once, and further Fire calls are
// idempotent.
type Event struct {
	fired atomic.Bool
}

// Wait yields the calling task until the event has fired. Each poll costs
// one scheduling quantum; there is no per-event waiter queue, so a task
// waiting on an Event that never fires blocks its worker's dispatch loop
// from reclaiming that slot, but not other slots.
func (e *Event) Wait(task *Task) {
	for !e.fired.Load() {
		task.Yield()
	}
}

// Fire sets the event. Any write sequenced before Fire is visible to a
// task whose Wait subsequently observes the event fired, because
// atomic.Bool's Store/Load pair provide release/acquire ordering.
func (e *Event) Fire() {
	e.fired.Store(true)
}

// IsFired reports the event's current state without yielding.
func (e *Event) IsFired() bool {
	return e.fired.Load()
}
