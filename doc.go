//go:build amd64

// Package coroed implements an M:N cooperative task scheduler: a small
// runtime that multiplexes many lightweight tasks onto a fixed pool of
// worker goroutines pinned to OS threads, using explicit stack switching
// instead of preemption.
//
// A Task is a unit of cooperative work with its own stack. Workers run a
// dispatch loop that picks a runnable task, switches into it, and is
// re-entered when the task calls Yield or Exit. Tasks never migrate mid-run,
// but may resume on a different worker than the one they last yielded on.
//
// This package intentionally does not provide I/O integration, timers,
// per-task local storage, priority scheduling, or work stealing. A task
// that never yields permanently monopolises the worker running it.
package coroed
