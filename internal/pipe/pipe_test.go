//go:build unix

package pipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// newEngine creates a primed pipe engine and registers cleanup.
func newEngine(t *testing.T, limit int) *Engine {
	t.Helper()
	e, err := New(limit)
	if err != nil {
		t.Fatalf("New(%d): %v", limit, err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// TestNewPrimesPool verifies that a fresh engine holds exactly limit tokens.
func TestNewPrimesPool(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 3)

	if n, err := e.Available(); err != nil || n != 3 {
		t.Fatalf("Available() = %d, %v; want 3, nil", n, err)
	}

	for i := range 3 {
		b, ok, err := e.TryAcquire()
		if err != nil || !ok {
			t.Fatalf("TryAcquire %d: ok=%v, err=%v", i, ok, err)
		}
		if b != ReleaseByte() {
			t.Errorf("TryAcquire %d: byte = %q, want %q", i, b, ReleaseByte())
		}
	}

	if _, ok, err := e.TryAcquire(); err != nil || ok {
		t.Fatalf("TryAcquire on empty pool: ok=%v, err=%v; want false, nil", ok, err)
	}
}

// TestNewZeroLimit verifies the always-blocking zero-token pool.
func TestNewZeroLimit(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 0)

	if n, err := e.Available(); err != nil || n != 0 {
		t.Fatalf("Available() = %d, %v; want 0, nil", n, err)
	}
	if _, ok, err := e.TryAcquire(); err != nil || ok {
		t.Fatalf("TryAcquire: ok=%v, err=%v; want false, nil", ok, err)
	}
}

// TestNewTooLarge verifies that priming past the pipe capacity fails
// instead of deadlocking on a full buffer.
func TestNewTooLarge(t *testing.T) {
	t.Parallel()

	e, err := New(1 << 24)
	if err == nil {
		_ = e.Close()
		t.Skip("kernel pipe capacity exceeds test limit")
	}
	if !errors.Is(err, ErrPoolTooLarge) {
		t.Fatalf("New(1<<24) error = %v, want ErrPoolTooLarge", err)
	}
}

// TestReleasePreservesByte verifies the byte read on acquire is the byte a
// caller can write back, and that distinct byte values survive a round trip.
func TestReleasePreservesByte(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 1)

	b, err := e.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if b != ReleaseByte() {
		t.Fatalf("primed byte = %q, want %q", b, ReleaseByte())
	}

	if err := e.Release('x'); err != nil {
		t.Fatalf("Release('x'): %v", err)
	}
	b, err = e.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if b != 'x' {
		t.Errorf("acquired byte = %q, want 'x'", b)
	}
	if err := e.Release(b); err != nil {
		t.Fatalf("Release(%q): %v", b, err)
	}
}

// TestAcquireBlocksUntilRelease verifies a blocked Acquire completes once a
// token is released by another goroutine.
func TestAcquireBlocksUntilRelease(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 0)

	got := make(chan byte, 1)
	errc := make(chan error, 1)
	go func() {
		b, err := e.Acquire()
		if err != nil {
			errc <- err
			return
		}
		got <- b
	}()

	select {
	case b := <-got:
		t.Fatalf("Acquire returned %q before any release", b)
	case err := <-errc:
		t.Fatalf("Acquire: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := e.Release('y'); err != nil {
		t.Fatalf("Release: %v", err)
	}
	select {
	case b := <-got:
		if b != 'y' {
			t.Errorf("acquired byte = %q, want 'y'", b)
		}
	case err := <-errc:
		t.Fatalf("Acquire: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not observe the released token")
	}
}

// TestOpenValidatesDescriptors exercises the three validation probes: the
// descriptor must be open, must grant the required access mode, and with
// pipe checking must refer to a FIFO.
func TestOpenValidatesDescriptors(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 1)

	t.Run("closed descriptor", func(t *testing.T) {
		t.Parallel()
		// A descriptor number far past any plausible rlimit is never open.
		if _, err := Open(1<<24, e.w, false); !errors.Is(err, ErrBadDescriptor) {
			t.Errorf("Open with closed read fd: %v, want ErrBadDescriptor", err)
		}
	})

	t.Run("wrong access mode", func(t *testing.T) {
		t.Parallel()
		f, err := os.Open(os.DevNull) // read-only
		if err != nil {
			t.Fatalf("open %s: %v", os.DevNull, err)
		}
		defer f.Close()
		if _, err := Open(e.r, int(f.Fd()), false); !errors.Is(err, ErrBadDescriptor) {
			t.Errorf("Open with read-only write fd: %v, want ErrBadDescriptor", err)
		}
	})

	t.Run("not a pipe", func(t *testing.T) {
		t.Parallel()
		f, err := os.CreateTemp(t.TempDir(), "token")
		if err != nil {
			t.Fatalf("create temp file: %v", err)
		}
		defer f.Close()
		fd := int(f.Fd())
		if _, err := Open(fd, fd, true); !errors.Is(err, ErrNotAPipe) {
			t.Errorf("Open(regular file, checkPipe): %v, want ErrNotAPipe", err)
		}
		// Without pipe checking a readable+writable regular file passes
		// validation; the protocol leaves that to the caller's discretion.
		adopted, err := Open(fd, fd, false)
		if err != nil {
			t.Errorf("Open(regular file): %v, want success", err)
		} else if got := adopted.StringArg(); got == "" {
			t.Error("StringArg() empty for adopted descriptors")
		}
	})
}

// TestOpenSetsCloseOnExec verifies adopted descriptors are immediately
// marked close-on-exec and that Configure clears the flag again.
func TestOpenSetsCloseOnExec(t *testing.T) {
	t.Parallel()

	e := newEngine(t, 1)

	adopted, err := Open(e.r, e.w, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, fd := range []int{e.r, e.w} {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err != nil {
			t.Fatalf("F_GETFD %d: %v", fd, err)
		}
		if flags&unix.FD_CLOEXEC == 0 {
			t.Errorf("descriptor %d not close-on-exec after Open", fd)
		}
	}

	adopted.Configure(nil)
	for _, fd := range []int{e.r, e.w} {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err != nil {
			t.Fatalf("F_GETFD %d: %v", fd, err)
		}
		if flags&unix.FD_CLOEXEC != 0 {
			t.Errorf("descriptor %d still close-on-exec after Configure", fd)
		}
	}
}

// TestFIFOTransport covers the named-FIFO variant: open, prime externally,
// try-acquire to exhaustion, and the fifo: string argument.
func TestFIFOTransport(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jobserver-fifo")
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}

	e, err := OpenFIFO(path)
	if err != nil {
		t.Fatalf("OpenFIFO: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	if got, want := e.StringArg(), "fifo:"+path; got != want {
		t.Errorf("StringArg() = %q, want %q", got, want)
	}

	for range 2 {
		if err := e.Release(ReleaseByte()); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if n, err := e.Available(); err != nil || n != 2 {
		t.Fatalf("Available() = %d, %v; want 2, nil", n, err)
	}

	for i := range 2 {
		if _, ok, err := e.TryAcquire(); err != nil || !ok {
			t.Fatalf("TryAcquire %d: ok=%v, err=%v", i, ok, err)
		}
	}
	if _, ok, err := e.TryAcquire(); err != nil || ok {
		t.Fatalf("TryAcquire on drained fifo: ok=%v, err=%v; want false, nil", ok, err)
	}
}

// TestOpenFIFOMissingPath verifies the open failure surfaces as ErrOpenPath.
func TestOpenFIFOMissingPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenFIFO(filepath.Join(t.TempDir(), "absent")); !errors.Is(err, ErrOpenPath) {
		t.Errorf("OpenFIFO(absent) = %v, want ErrOpenPath", err)
	}
	if _, err := OpenFIFO(""); !errors.Is(err, ErrOpenPath) {
		t.Errorf("OpenFIFO(\"\") = %v, want ErrOpenPath", err)
	}
}

// TestAcquireCancelable verifies both outcomes: a pending wait unblocked by
// Cancel without consuming a token, and a normal token acquisition.
func TestAcquireCancelable(t *testing.T) {
	t.Parallel()

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, 0)
		c, err := e.NewCanceller()
		if err != nil {
			t.Fatalf("NewCanceller: %v", err)
		}
		defer c.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, ok, err := e.AcquireCancelable(c); ok || err != nil {
				t.Errorf("AcquireCancelable: ok=%v, err=%v; want cancelled", ok, err)
			}
		}()

		time.Sleep(20 * time.Millisecond)
		c.Cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Cancel did not unblock AcquireCancelable")
		}
	})

	t.Run("token", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, 1)
		c, err := e.NewCanceller()
		if err != nil {
			t.Fatalf("NewCanceller: %v", err)
		}
		defer c.Close()

		b, ok, err := e.AcquireCancelable(c)
		if err != nil || !ok {
			t.Fatalf("AcquireCancelable: ok=%v, err=%v; want token", ok, err)
		}
		if b != ReleaseByte() {
			t.Errorf("byte = %q, want %q", b, ReleaseByte())
		}
	})
}
