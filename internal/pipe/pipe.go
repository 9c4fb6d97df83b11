//go:build unix

package pipe

import (
	"fmt"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/giantswarm/jobserver/internal/sentinel"
)

// Sentinel errors for descriptor validation during Open and OpenFIFO.
// internal/core re-exports these so callers can match them with errors.Is.
const (
	// ErrBadDescriptor is returned by Open when a descriptor from the
	// environment is closed or lacks the required access mode.
	ErrBadDescriptor = sentinel.Error("jobserver descriptor cannot be opened")

	// ErrNotAPipe is returned by Open when pipe checking is enabled and a
	// descriptor does not refer to a pipe.
	ErrNotAPipe = sentinel.Error("jobserver descriptor is not a pipe")

	// ErrOpenPath is returned by OpenFIFO when the named FIFO cannot be opened.
	ErrOpenPath = sentinel.Error("jobserver path cannot be opened")

	// ErrPoolTooLarge is returned by New when the token limit exceeds the
	// kernel pipe capacity, which would otherwise deadlock the priming write.
	ErrPoolTooLarge = sentinel.Error("token limit exceeds pipe capacity")
)

// releaseByte is written for releases that do not carry a preserved token
// byte, matching what make itself primes pools with.
const releaseByte = '+'

// primeChunk bounds a single priming write. Chunked writes keep the fill
// loop responsive to EINTR and make the capacity check incremental.
const primeChunk = 4096

// Engine is the Unix jobserver engine. The same implementation serves both
// transports; path is the transport tag (empty for an anonymous or inherited
// pipe pair, the FIFO path otherwise).
//
// The descriptors are intentionally kept in blocking mode: they are shared
// with child processes (and, for a FIFO, with unrelated processes) that
// expect blocking jobserver semantics, so they must stay out of the Go
// runtime poller.
type Engine struct {
	r, w int
	path string

	// tryMu serializes the non-blocking flag flip that TryAcquire performs
	// on the shared read end of a pipe pair. Acquire grabs it after an
	// EAGAIN so a blocked reader waits out the flip instead of spinning.
	tryMu sync.Mutex

	// Lazily opened O_NONBLOCK handle on the FIFO path, giving TryAcquire
	// its own open file description so the shared one keeps blocking mode.
	nbOnce sync.Once
	nbFD   int
	nbErr  error
}

// New creates a pipe-backed pool primed with limit tokens.
//
// Both ends are left blocking and inheritable (close-on-exec off) so that
// configured children can use the same descriptor numbers. The priming
// write runs with the write end temporarily non-blocking: a limit beyond
// the kernel's pipe capacity fails with ErrPoolTooLarge instead of
// deadlocking on a full buffer.
func New(limit int) (*Engine, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	e := &Engine{r: fds[0], w: fds[1], nbFD: -1}

	for _, fd := range fds {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0); err != nil {
			e.closeAll()
			return nil, fmt.Errorf("clear close-on-exec: %w", err)
		}
	}

	if err := e.prime(limit); err != nil {
		e.closeAll()
		return nil, err
	}
	return e, nil
}

// prime writes limit release bytes into the pool in bounded chunks.
func (e *Engine) prime(limit int) error {
	if limit == 0 {
		return nil
	}
	if err := unix.SetNonblock(e.w, true); err != nil {
		return fmt.Errorf("prime pool: %w", err)
	}

	chunk := make([]byte, min(limit, primeChunk))
	for i := range chunk {
		chunk[i] = releaseByte
	}

	remaining := limit
	for remaining > 0 {
		n, err := unix.Write(e.w, chunk[:min(remaining, len(chunk))])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return fmt.Errorf("prime pool with %d tokens: %w", limit, ErrPoolTooLarge)
		case err != nil:
			return fmt.Errorf("prime pool: %w", err)
		}
		remaining -= n
	}

	if err := unix.SetNonblock(e.w, false); err != nil {
		return fmt.Errorf("prime pool: %w", err)
	}
	return nil
}

// Open adopts an inherited "<R>,<W>" descriptor pair.
//
// Both descriptors are validated before use: they must be open (probed with
// a zero-flag fcntl), the read end must be readable and the write end
// writable, and with checkPipe each must stat as a FIFO. On success both are
// marked close-on-exec so unrelated children do not inherit them; Configure
// re-enables inheritance for deliberate children.
func Open(r, w int, checkPipe bool) (*Engine, error) {
	if err := validateFD(r, unix.O_RDONLY, checkPipe); err != nil {
		return nil, fmt.Errorf("read descriptor %d: %w", r, err)
	}
	if err := validateFD(w, unix.O_WRONLY, checkPipe); err != nil {
		return nil, fmt.Errorf("write descriptor %d: %w", w, err)
	}

	for _, fd := range [2]int{r, w} {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			return nil, fmt.Errorf("descriptor %d: set close-on-exec: %w", fd, err)
		}
	}

	return &Engine{r: r, w: w, nbFD: -1}, nil
}

// validateFD checks that fd is open, grants the given access mode, and,
// when checkPipe is set, refers to a pipe.
func validateFD(fd, mode int, checkPipe bool) error {
	if fd < 0 {
		return fmt.Errorf("negative descriptor: %w", ErrBadDescriptor)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return fmt.Errorf("%v: %w", err, ErrBadDescriptor)
	}

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrBadDescriptor)
	}
	if acc := flags & unix.O_ACCMODE; acc != mode && acc != unix.O_RDWR {
		return fmt.Errorf("access mode %#x: %w", acc, ErrBadDescriptor)
	}

	if checkPipe {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return fmt.Errorf("%v: %w", err, ErrBadDescriptor)
		}
		if st.Mode&unix.S_IFMT != unix.S_IFIFO {
			return ErrNotAPipe
		}
	}
	return nil
}

// OpenFIFO opens a named FIFO from a "fifo:<PATH>" auth string (the scheme
// prefix already stripped). The pool is primed by whoever created the FIFO,
// so there is no byte-count invariant to establish here. The handle is
// close-on-exec; FIFO children reopen the path themselves.
func OpenFIFO(path string) (*Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("empty fifo path: %w", ErrOpenPath)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, ErrOpenPath)
	}
	return &Engine{r: fd, w: fd, path: path, nbFD: -1}, nil
}

// Acquire blocks until one token byte is read from the pool.
//
// Interrupted reads retry. EOF and zero-length reads are treated as
// interruptions. EAGAIN can surface when a concurrent TryAcquire briefly
// flips the shared read end to non-blocking; waiting on tryMu rides out the
// flip before retrying.
func (e *Engine) Acquire() (byte, error) {
	var buf [1]byte
	for {
		n, err := unix.Read(e.r, buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			e.tryMu.Lock()
			e.tryMu.Unlock() //nolint:staticcheck // empty critical section: wait out the flag flip
			continue
		case err != nil:
			return 0, fmt.Errorf("acquire token: %w", err)
		case n == 1:
			return buf[0], nil
		default:
			// EOF or short read: treat as an interruption and retry.
			continue
		}
	}
}

// TryAcquire attempts a non-blocking single-byte read.
//
// The FIFO transport reads from a dedicated non-blocking reopen of the path
// so the shared descriptor keeps blocking mode. The pipe transport briefly
// flips O_NONBLOCK on the shared read end under tryMu; concurrent blocking
// acquirers absorb the flip as a retried EAGAIN.
func (e *Engine) TryAcquire() (byte, bool, error) {
	if e.path != "" {
		fd, err := e.nonblockFIFO()
		if err != nil {
			return 0, false, err
		}
		return tryRead(fd)
	}

	e.tryMu.Lock()
	defer e.tryMu.Unlock()

	if err := unix.SetNonblock(e.r, true); err != nil {
		return 0, false, fmt.Errorf("try acquire: %w", err)
	}
	b, ok, err := tryRead(e.r)
	if rerr := unix.SetNonblock(e.r, false); rerr != nil && err == nil {
		return 0, false, fmt.Errorf("try acquire: restore blocking mode: %w", rerr)
	}
	return b, ok, err
}

// tryRead performs one non-blocking single-byte read on fd.
func tryRead(fd int) (byte, bool, error) {
	var buf [1]byte
	for {
		n, err := unix.Read(fd, buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, false, nil
		case err != nil:
			return 0, false, fmt.Errorf("try acquire token: %w", err)
		case n == 1:
			return buf[0], true, nil
		default:
			// Zero-length read from a pipe with no writer; nothing buffered.
			return 0, false, nil
		}
	}
}

// nonblockFIFO lazily opens the dedicated non-blocking FIFO handle.
func (e *Engine) nonblockFIFO() (int, error) {
	e.nbOnce.Do(func() {
		fd, err := unix.Open(e.path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			e.nbErr = fmt.Errorf("open %s non-blocking: %w", e.path, err)
			return
		}
		e.nbFD = fd
	})
	return e.nbFD, e.nbErr
}

// Release returns one token byte to the pool. b is the byte originally read
// by Acquire; callers releasing a token they never read pass ReleaseByte().
// Interrupted and zero-length writes retry.
func (e *Engine) Release(b byte) error {
	buf := [1]byte{b}
	for {
		n, err := unix.Write(e.w, buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return fmt.Errorf("release token: %w", err)
		case n == 1:
			return nil
		}
	}
}

// ReleaseByte returns the placeholder byte written for releases without a
// preserved token byte.
func ReleaseByte() byte { return releaseByte }

// Available reports the number of unread token bytes buffered in the pool.
func (e *Engine) Available() (int, error) {
	n, err := unix.IoctlGetInt(e.r, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("query available tokens: %w", err)
	}
	return n, nil
}

// StringArg returns the auth string propagated to children: "fifo:<PATH>"
// for the FIFO transport, "<R>,<W>" for a pipe pair.
func (e *Engine) StringArg() string {
	if e.path != "" {
		return "fifo:" + e.path
	}
	return fmt.Sprintf("%d,%d", e.r, e.w)
}

// Configure prepares the engine's descriptors for inheritance by the child
// described by cmd. For a pipe pair this clears close-on-exec on both ends;
// os/exec's fork/exec then carries them through at their current numbers.
// The descriptors stay inheritable afterwards, since Go offers no
// per-spawn hook to re-arm the flag once the child has started.
//
// The FIFO transport needs nothing here: the FIFO is a filesystem name and
// children reopen it from the environment value.
func (e *Engine) Configure(cmd *exec.Cmd) {
	_ = cmd
	if e.path != "" {
		return
	}
	for _, fd := range [2]int{e.r, e.w} {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0); err != nil {
			// Descriptor vanished under us; the child will fail to open it
			// and report through its own from-env path.
			continue
		}
	}
}

// Close releases the engine's descriptors. Concurrent acquirers must be
// quiesced by the caller first; tokens already handed out keep their byte
// value but can no longer be released through this engine.
func (e *Engine) Close() error {
	return e.closeAll()
}

func (e *Engine) closeAll() error {
	var firstErr error
	closeFD := func(fd int) {
		if fd < 0 {
			return
		}
		if err := unix.Close(fd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close descriptor %d: %w", fd, err)
		}
	}

	closeFD(e.r)
	if e.w != e.r {
		closeFD(e.w)
	}
	e.r, e.w = -1, -1

	if e.nbFD >= 0 {
		closeFD(e.nbFD)
		e.nbFD = -1
	}
	return firstErr
}
