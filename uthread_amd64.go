//go:build amd64

package coroed

import "unsafe"

// rawswitch is the machine-level glue a context switch needs: it saves the
// callee-preserved System V register set {rflags, r15, r14, r13, r12, rbp,
// rbx} onto the current stack above the already-pushed return address,
// points g's stack bookkeeping at [lo, hi) with stackguard0 set to guard,
// writes the resulting stack pointer to *prevCtx, then loads nextCtx as
// the stack pointer and pops the same registers before returning — landing
// at whatever instruction pointer was saved there. The g/lo/hi/guard
// writes happen immediately before the stack pointer actually moves, with
// no call or safepoint in between; see runtime_stack.go. Implemented in
// uthread_amd64.s; the compiler cannot be trusted to preserve this set
// across an arbitrary control transfer, so it is not expressible in plain
// Go.
//
//go:noescape
func rawswitch(prevCtx *uintptr, nextCtx uintptr, g unsafe.Pointer, lo, hi, guard uintptr)

// taskTrampolineAddr returns the entry address of the asm trampoline that
// every TaskSlot's UserThread.SetEntry points at. It exists only so the
// rest of the package can treat the trampoline as an opaque uintptr
// without depending on Go closure/funcval layout, which is not something
// rawswitch's register-only handoff can reconstruct.
func taskTrampolineAddr() uintptr
