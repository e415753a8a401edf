//go:build amd64

package coroed

import (
	"sync"
	"unsafe"
)

// taskState is a TaskSlot's position in its lifecycle:
// ZOMBIE -> RUNNABLE -> RUNNING -> {RUNNABLE, CANCELLED} -> ZOMBIE.
type taskState int32

const (
	stateZombie taskState = iota
	stateRunnable
	stateRunning
	stateCancelled
)

func (s taskState) String() string {
	switch s {
	case stateZombie:
		return "zombie"
	case stateRunnable:
		return "runnable"
	case stateRunning:
		return "running"
	case stateCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

// Task is a TaskSlot: the unit the scheduler owns. It has a UserThread
// (allocated lazily on first submit, freed only on Destroy), a state, a
// back-reference to its current worker valid only while RUNNING, and a
// spinlock guarding all of the above.
//
// Task values live in Scheduler's fixed table and are never copied or
// relocated; callers only ever see a *Task returned from Submit or
// CurrentTask.
type Task struct {
	index int
	lock  Spinlock

	ut       *UserThread
	state    taskState
	worker   *Worker
	entry    func()
	argument unsafe.Pointer

	// generation counts CANCELLED->ZOMBIE recyclings, for test
	// instrumentation only (evidence that a recycled slot was actually
	// reused). Never consulted by scheduling logic.
	generation uint64

	sched *Scheduler
}

// Argument returns the user argument pointer passed to Submit. The
// scheduler does not own this pointer; the caller guarantees it outlives
// the task.
func (t *Task) Argument() unsafe.Pointer {
	return t.argument
}

// Yield switches from the task's UserThread back to its worker's
// scheduler UserThread. The worker back-pointer is cleared before the
// switch so that, on resumption by a possibly different worker, the task
// re-reads its worker fresh.
func (t *Task) Yield() {
	w := t.worker
	if w == nil {
		panic("coroed: Yield called outside a running task")
	}
	t.worker = nil
	Switch(t.ut, &w.schedUT)
}

// Exit transitions the task RUNNING -> CANCELLED and yields. The
// dispatcher that observes CANCELLED on resumption is responsible for
// recycling the slot. Exit never returns.
func (t *Task) Exit() {
	t.state = stateCancelled
	t.Yield()
	panic("coroed: task resumed after Exit")
}

// currentTasks maps a goroutine (identified by its *runtime.g, stable for
// that goroutine's lifetime) to the Task presently executing on it. Since
// a worker's dispatch loop and every task it runs all share one real
// goroutine — Switch only ever moves the stack pointer within it — this
// is effectively per-worker state despite looking global.
var currentTasks sync.Map // unsafe.Pointer -> *Task

// CurrentTask returns the task handle for the task currently executing on
// this worker. Defined only when called from within a task body.
func CurrentTask() *Task {
	v, ok := currentTasks.Load(runtime_getg())
	if !ok {
		return nil
	}
	return v.(*Task)
}

// taskMain is reached (via taskTrampoline, in uthread_amd64.s) on the very
// first switch into a task's UserThread. By the time it runs, Switch has
// already pointed this goroutine's stack bookkeeping at the task's own
// mmap'd region, so ordinary Go code — including whatever the user's
// entry closure calls — is safe to run here.
func taskMain(slot uintptr) {
	task := (*Task)(unsafe.Pointer(slot))
	task.entry()
	task.Exit()
}
