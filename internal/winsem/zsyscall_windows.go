//go:build windows

package winsem

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Hand-written stubs for the kernel32 semaphore entry points that
// golang.org/x/sys/windows does not export.

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateSemaphoreW = modkernel32.NewProc("CreateSemaphoreW")
	procOpenSemaphoreW   = modkernel32.NewProc("OpenSemaphoreW")
	procReleaseSemaphore = modkernel32.NewProc("ReleaseSemaphore")
)

func createSemaphore(sa *windows.SecurityAttributes, initialCount, maximumCount int32, name *uint16) (windows.Handle, error) {
	r0, _, e1 := syscall.SyscallN(procCreateSemaphoreW.Addr(),
		uintptr(unsafe.Pointer(sa)), uintptr(initialCount), uintptr(maximumCount), uintptr(unsafe.Pointer(name)))
	handle := windows.Handle(r0)
	if handle == 0 {
		return 0, errnoErr(e1)
	}
	return handle, nil
}

func openSemaphore(desiredAccess uint32, inheritHandle bool, name *uint16) (windows.Handle, error) {
	var inherit uintptr
	if inheritHandle {
		inherit = 1
	}
	r0, _, e1 := syscall.SyscallN(procOpenSemaphoreW.Addr(),
		uintptr(desiredAccess), inherit, uintptr(unsafe.Pointer(name)))
	handle := windows.Handle(r0)
	if handle == 0 {
		return 0, errnoErr(e1)
	}
	return handle, nil
}

func releaseSemaphore(handle windows.Handle, releaseCount int32, previousCount *int32) error {
	r0, _, e1 := syscall.SyscallN(procReleaseSemaphore.Addr(),
		uintptr(handle), uintptr(releaseCount), uintptr(unsafe.Pointer(previousCount)))
	if r0 == 0 {
		return errnoErr(e1)
	}
	return nil
}

// errnoErr maps a raw errno to error, substituting EINVAL for the zero
// value so failed calls never report success.
func errnoErr(e syscall.Errno) error {
	if e == 0 {
		return syscall.EINVAL
	}
	return e
}
