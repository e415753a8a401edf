//go:build amd64

package coroed

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAllocateRoundsUpToPages(t *testing.T) {
	ut, err := Allocate(1)
	require.NoError(t, err)
	defer ut.Free()

	pageSize := uintptr(unix.Getpagesize())
	require.Zero(t, (ut.hi-ut.lo)%pageSize, "usable range must be a whole number of pages")
	require.Equal(t, pageSize, ut.hi-ut.lo, "a 1-byte request should round up to exactly one page")
}

func TestAllocateZeroUsesDefaultStackSize(t *testing.T) {
	ut, err := Allocate(0)
	require.NoError(t, err)
	defer ut.Free()

	require.GreaterOrEqual(t, int(ut.hi-ut.lo), defaultStackSize)
}

func TestAllocatePlacesSPAtTopOfStack(t *testing.T) {
	ut, err := Allocate(4096)
	require.NoError(t, err)
	defer ut.Free()

	require.Equal(t, ut.hi-switchFrameSize, ut.sp)
}

func TestSetEntryAndArgRoundTrip(t *testing.T) {
	ut, err := Allocate(4096)
	require.NoError(t, err)
	defer ut.Free()

	const (
		entry = uintptr(0xdeadbeefcafe)
		arg0  = uintptr(0x1111)
		arg1  = uintptr(0x2222)
	)
	ut.SetEntry(entry)
	ut.SetArg0(arg0)
	ut.SetArg1(arg1)

	require.Equal(t, uint64(entry), *ut.field(frameOffRIP))
	require.Equal(t, uint64(arg0), *ut.field(frameOffR15))
	require.Equal(t, uint64(arg1), *ut.field(frameOffR14))
}

func TestResetZeroesTheFrame(t *testing.T) {
	ut, err := Allocate(4096)
	require.NoError(t, err)
	defer ut.Free()

	ut.SetEntry(0x1234)
	ut.SetArg0(0x5678)
	oldSP := ut.sp

	ut.Reset()

	require.Equal(t, oldSP, ut.sp, "Reset must re-seat sp at the same top-of-stack offset")
	require.Zero(t, *ut.field(frameOffRIP))
	require.Zero(t, *ut.field(frameOffR15))
}

func TestFreeIsIdempotentAndClearsBounds(t *testing.T) {
	ut, err := Allocate(4096)
	require.NoError(t, err)

	ut.Free()
	require.Zero(t, ut.lo)
	require.Zero(t, ut.hi)
	require.Zero(t, ut.sp)
	require.Nil(t, ut.region)

	require.NotPanics(t, func() { ut.Free() })
}

func TestGuardPageSitsBelowUsableRange(t *testing.T) {
	ut, err := Allocate(4096)
	require.NoError(t, err)
	defer ut.Free()

	base := uintptr(unsafe.Pointer(&ut.region[0]))
	require.Less(t, base, ut.lo, "the guard page must precede the usable stack range")
}
