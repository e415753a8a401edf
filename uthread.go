//go:build amd64

package coroed

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// switchFrameSize is sizeof(struct switch_frame): 8 callee-preserved
// machine words on amd64 — {rflags, r15, r14, r13, r12, rbp, rbx, rip} — in
// that field order, lowest address first. rawswitch (uthread_amd64.s) and
// UserThread.Reset must agree on this exact layout.
const switchFrameSize = 8 * 8

const (
	frameOffFlags = 0 * 8
	frameOffR15   = 1 * 8 // argument-0 channel
	frameOffR14   = 2 * 8 // argument-1 channel
	frameOffR13   = 3 * 8
	frameOffR12   = 4 * 8
	frameOffRBP   = 5 * 8
	frameOffRBX   = 6 * 8
	frameOffRIP   = 7 * 8
)

// ErrOutOfMemory is returned by Allocate when the backing stack mapping
// cannot be created.
var ErrOutOfMemory = errors.New("coroed: uthread stack allocation failed")

// UserThread is an independently-resumable execution context: a private
// stack plus a saved register frame. A UserThread does not know which task
// or worker owns it; ownership and synchronization live one layer up, in
// TaskSlot.
//
// When not currently executing, sp addresses a valid switch-frame within
// the thread's own stack whose saved instruction pointer is the resume
// point. Floating-point, vector, and TLS-base state is not part of the
// saved set and does not survive a Switch. A UserThread resumes either at
// its entry point (the first switch after Reset) or at the return from the
// Switch call that suspended it.
type UserThread struct {
	region []byte // the full mmap'd region, guard page included
	lo, hi uintptr // bounds of the usable (non-guard) stack range
	sp     uintptr // current context pointer; valid only while suspended
}

// Allocate reserves a contiguous stack of stackSize bytes (rounded up to a
// whole number of pages) plus one leading guard page, and positions the
// initial switch-frame at the top of the usable range. Fails only on
// mapping failure (OOM).
func Allocate(stackSize int) (*UserThread, error) {
	if stackSize <= 0 {
		stackSize = defaultStackSize
	}

	pageSize := unix.Getpagesize()
	usable := roundUp(stackSize, pageSize)
	total := pageSize + usable

	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	// Guard page at the low end: the stack grows down towards it, so a
	// real overflow faults instead of corrupting whatever mapping happens
	// to sit below us.
	if err := unix.Mprotect(region[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, ErrOutOfMemory
	}

	base := uintptr(unsafe.Pointer(&region[0]))
	ut := &UserThread{
		region: region,
		lo:     base + uintptr(pageSize),
		hi:     base + uintptr(total),
	}
	ut.Reset()
	return ut, nil
}

// Free releases the stack region. The caller guarantees the UserThread is
// not currently executing and is no longer referenced by any task slot.
func (ut *UserThread) Free() {
	if ut.region == nil {
		return
	}
	_ = unix.Munmap(ut.region)
	ut.region = nil
	ut.lo, ut.hi, ut.sp = 0, 0, 0
}

// Reset re-initialises the switch-frame to zero and re-seats the context
// pointer at the top of the stack, as at Allocate. Used to recycle a slot
// after cancellation.
func (ut *UserThread) Reset() {
	ut.sp = ut.hi - switchFrameSize
	frame := ut.frameBytes()
	for i := range frame {
		frame[i] = 0
	}
}

// frameBytes returns the live switch-frame as a byte slice for zeroing.
func (ut *UserThread) frameBytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ut.sp)), switchFrameSize)
}

func (ut *UserThread) field(offset uintptr) *uint64 {
	return (*uint64)(unsafe.Pointer(ut.sp + offset))
}

// SetEntry writes fn as the saved instruction pointer in the switch-frame.
func (ut *UserThread) SetEntry(fn uintptr) {
	*ut.field(frameOffRIP) = uint64(fn)
}

// SetArg0 writes p into the register reserved for the first switch-in
// argument (r15).
func (ut *UserThread) SetArg0(p uintptr) {
	*ut.field(frameOffR15) = uint64(p)
}

// SetArg1 writes p into the register reserved for the second switch-in
// argument (r14).
func (ut *UserThread) SetArg1(p uintptr) {
	*ut.field(frameOffR14) = uint64(p)
}

// Switch transfers control from prev to next: it saves prev's
// callee-preserved registers onto prev's own stack, records the resulting
// stack pointer in prev.sp, then loads next.sp and resumes next at its
// saved instruction pointer. Switch returns to prev exactly when some
// other UserThread switches back into it.
//
// The calling goroutine's own stack bookkeeping (g.stack.lo/hi,
// g.stackguard0) is repointed at next's range from inside rawswitch itself,
// as the last thing it does before actually moving SP, so that ordinary Go
// function prologues (stack-growth checks) see consistent bounds once they
// start running on next's memory — and so that no Go-level call or
// safepoint can land between that bookkeeping update and the real switch.
// See runtime_stack.go and uthread_amd64.s.
func Switch(prev, next *UserThread) {
	g := runtime_getg()
	guard := next.lo + stackGuardSlack
	rawswitch(&prev.sp, next.sp, g, next.lo, next.hi, guard)
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return n + (multiple - n%multiple)
}

const defaultStackSize = 1 << 20 // 1 MiB
