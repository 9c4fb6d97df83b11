//go:build windows

package winsem

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os/exec"

	"golang.org/x/sys/windows"

	"github.com/giantswarm/jobserver/internal/sentinel"
)

// ErrOpenSemaphore is returned by Open when the named semaphore from the
// environment cannot be opened. internal/core re-exports this so callers
// can match it with errors.Is.
const ErrOpenSemaphore = sentinel.Error("jobserver semaphore cannot be opened")

// semaphoreModifyState is the access right required by ReleaseSemaphore.
const semaphoreModifyState = 0x0002

// Engine is the Windows jobserver engine: a named kernel semaphore whose
// count is the token pool.
type Engine struct {
	handle windows.Handle
	name   string
}

// New creates a semaphore-backed pool with initial count limit and maximum
// count limit, or one when limit is zero.
// The name embeds the process id plus a random component so concurrent
// builds on one machine never collide.
func New(limit int) (*Engine, error) {
	name := fmt.Sprintf("jobserver-%d-%d", windows.GetCurrentProcessId(), rand.Uint64())
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("semaphore name: %w", err)
	}
	handle, err := createSemaphore(nil, int32(limit), int32(max(limit, 1)), namep)
	if err != nil {
		return nil, fmt.Errorf("create semaphore %s: %w", name, err)
	}
	return &Engine{handle: handle, name: name}, nil
}

// Open connects to the named semaphore advertised by a parent process.
func Open(name string) (*Engine, error) {
	if name == "" {
		return nil, fmt.Errorf("empty semaphore name: %w", ErrOpenSemaphore)
	}
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("semaphore name %q: %v: %w", name, err, ErrOpenSemaphore)
	}
	handle, err := openSemaphore(windows.SYNCHRONIZE|semaphoreModifyState, false, namep)
	if err != nil {
		return nil, fmt.Errorf("open semaphore %s: %v: %w", name, err, ErrOpenSemaphore)
	}
	return &Engine{handle: handle, name: name}, nil
}

// Acquire blocks until the semaphore count can be decremented.
func (e *Engine) Acquire() (byte, error) {
	event, err := windows.WaitForSingleObject(e.handle, windows.INFINITE)
	if err != nil {
		return 0, fmt.Errorf("acquire token: %w", err)
	}
	if event != windows.WAIT_OBJECT_0 {
		return 0, fmt.Errorf("acquire token: unexpected wait result %#x", event)
	}
	return 0, nil
}

// TryAcquire decrements the semaphore with a zero-timeout wait, following
// the documented WaitForSingleObject contract for an immediate poll.
func (e *Engine) TryAcquire() (byte, bool, error) {
	event, err := windows.WaitForSingleObject(e.handle, 0)
	switch {
	case err != nil:
		return 0, false, fmt.Errorf("try acquire token: %w", err)
	case event == windows.WAIT_OBJECT_0:
		return 0, true, nil
	case event == uint32(windows.WAIT_TIMEOUT):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("try acquire token: unexpected wait result %#x", event)
	}
}

// Release increments the semaphore count by one. The byte payload carries
// no meaning on this transport and is ignored.
func (e *Engine) Release(_ byte) error {
	if err := releaseSemaphore(e.handle, 1, nil); err != nil {
		return fmt.Errorf("release token: %w", err)
	}
	return nil
}

// ReleaseByte returns the placeholder payload for releases without a
// preserved token byte. Windows tokens carry no byte value.
func ReleaseByte() byte { return 0 }

// Available is not supported: the semaphore count cannot be queried
// without consuming from it.
func (e *Engine) Available() (int, error) {
	return 0, fmt.Errorf("query available tokens: %w", errors.ErrUnsupported)
}

// StringArg returns the auth string propagated to children: the semaphore
// name, which children pass to Open.
func (e *Engine) StringArg() string { return e.name }

// Configure is a no-op on Windows: children open the semaphore by the name
// carried in the environment, so no handle inheritance is required.
func (e *Engine) Configure(_ *exec.Cmd) {}

// Close releases the semaphore handle. The kernel object persists until
// the last process holding a handle exits.
func (e *Engine) Close() error {
	if err := windows.CloseHandle(e.handle); err != nil {
		return fmt.Errorf("close semaphore: %w", err)
	}
	return nil
}

// Canceller unblocks a pending AcquireCancelable via a manual-reset event
// waited on alongside the semaphore.
type Canceller struct {
	event windows.Handle
}

// NewCanceller creates a Canceller usable with AcquireCancelable.
func (e *Engine) NewCanceller() (*Canceller, error) {
	event, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("create cancel event: %w", err)
	}
	return &Canceller{event: event}, nil
}

// Cancel signals the event, waking any pending AcquireCancelable and making
// future ones return immediately. Safe to call more than once.
func (c *Canceller) Cancel() {
	_ = windows.SetEvent(c.event)
}

// Close releases the event handle.
func (c *Canceller) Close() error {
	if err := windows.CloseHandle(c.event); err != nil {
		return fmt.Errorf("close cancel event: %w", err)
	}
	return nil
}

// AcquireCancelable blocks until the semaphore is decremented or c is
// cancelled. The returned bool is false when the wait was cancelled; the
// semaphore count was not consumed in that case.
func (e *Engine) AcquireCancelable(c *Canceller) (byte, bool, error) {
	handles := []windows.Handle{e.handle, c.event}
	event, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)
	switch {
	case err != nil:
		return 0, false, fmt.Errorf("wait for token: %w", err)
	case event == windows.WAIT_OBJECT_0:
		return 0, true, nil
	case event == windows.WAIT_OBJECT_0+1:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("wait for token: unexpected wait result %#x", event)
	}
}
