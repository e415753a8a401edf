//go:build amd64

package coroed

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Worker owns a scheduler UserThread used as the "home" context on this
// worker, a scan cursor into the task table, and a step counter. Each
// dispatch-loop goroutine binds to exactly one Worker for its lifetime,
// pinned to its OS thread via runtime.LockOSThread so that a worker is an
// operating-system thread, not just any goroutine.
type Worker struct {
	sched   *Scheduler
	schedUT UserThread // describes this worker's own (real, Go-managed) stack
	cursor  int
	steps   uint64
}

// Steps reports how many tasks this worker has dispatched, for tests and
// diagnostics.
func (w *Worker) Steps() uint64 {
	return atomic.LoadUint64(&w.steps)
}

// run is the dispatch loop: repeatedly obtain a runnable slot, switch
// into it, and react to the state it left behind, until next_task has
// come back empty across a full retry budget (or ctx is cancelled while
// idle — see SPEC_FULL.md §4.3 on Start's context parameter).
func (w *Worker) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.schedUT.lo, w.schedUT.hi = captureNativeStack()

	cfg := &w.sched.cfg
	empty := 0
	for empty < cfg.retryBudget {
		task := w.sched.nextTask(w)
		if task == nil {
			empty++
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.retrySleep):
			}
			continue
		}
		empty = 0

		task.state = stateRunning
		task.worker = w

		g := runtime_getg()
		currentTasks.Store(g, task)
		Switch(&w.schedUT, task.ut)
		currentTasks.Delete(g)

		switch task.state {
		case stateCancelled:
			task.ut.Reset()
			task.state = stateZombie
			task.entry = nil
			task.argument = nil
			atomic.AddUint64(&task.generation, 1)
			cfg.logger.Debug().Int("slot", task.index).Msg("coroed: task recycled")
		case stateRunning:
			task.state = stateRunnable
		default:
			panic("coroed: invariant violation: task left the dispatcher in an unexpected state")
		}

		task.lock.Unlock()
		atomic.AddUint64(&w.steps, 1)
	}

	cfg.logger.Debug().Uint64("steps", w.Steps()).Msg("coroed: worker exiting, table quiescent")
}

// nextTask makes up to tableCapacity try-lock attempts starting at the
// worker's cursor. The cursor advances only after a successful try-lock,
// so a slot another worker holds is not skipped: the remaining attempts of
// this call retry that same slot. On success the returned
// slot's spinlock is held by this worker; the caller is responsible for
// unlocking it once the dispatch step completes.
func (s *Scheduler) nextTask(w *Worker) *Task {
	n := s.cfg.tableCapacity
	for i := 0; i < n; i++ {
		idx := w.cursor
		task := &s.tasks[idx]

		if !task.lock.TryLock() {
			continue
		}

		w.cursor = (w.cursor + 1) % n
		if task.ut != nil && task.state == stateRunnable {
			return task
		}
		task.lock.Unlock()
	}
	return nil
}
