//go:build amd64

package coroed

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	spinUnlocked uint32 = 0
	spinLocked   uint32 = 1
)

// Spinlock is a minimal test-and-set mutex: a spinning Lock plus a
// non-blocking TryLock, with acquire/release ordering on every
// transition. It guards a single TaskSlot's state; the dispatcher holds it
// for a whole dispatch step, including while the task runs after the
// Switch, so no other worker can pick the same slot — no fairness, no
// back-off.
//
// It is padded with cpu.CacheLinePad on both sides so that adjacent
// TaskSlots in the scheduler's table don't false-share a cache line under
// contention.
type Spinlock struct {
	_    cpu.CacheLinePad
	word atomic.Uint32
	_    cpu.CacheLinePad
}

// TryLock attempts to acquire the lock without spinning.
func (s *Spinlock) TryLock() bool {
	return s.word.CompareAndSwap(spinUnlocked, spinLocked)
}

// Lock acquires the lock, spinning (and yielding the goroutine after each
// failed attempt) until it succeeds.
func (s *Spinlock) Lock() {
	for !s.TryLock() {
		runtime.Gosched()
	}
}

// Unlock releases the lock.
func (s *Spinlock) Unlock() {
	s.word.Store(spinUnlocked)
}

// IsHeld reports whether the lock is currently held. For instrumentation
// and tests only; scheduling logic never branches on it.
func (s *Spinlock) IsHeld() bool {
	return s.word.Load() == spinLocked
}
