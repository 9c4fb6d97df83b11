//go:build unix

package pipe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Canceller unblocks a pending AcquireCancelable. It is a self-pipe: Cancel
// writes one byte to the pipe's write end, and the acquire loop polls the
// read end alongside the token descriptor. This avoids the process-global
// no-op signal handler the signal-based unblocking scheme would require.
type Canceller struct {
	r, w int
}

// NewCanceller creates a Canceller usable with AcquireCancelable.
func (e *Engine) NewCanceller() (*Canceller, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("create cancel pipe: %w", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, fmt.Errorf("create cancel pipe: %w", err)
		}
	}
	return &Canceller{r: fds[0], w: fds[1]}, nil
}

// Cancel wakes any acquire currently polling on this Canceller and makes
// future ones return immediately. Safe to call more than once; a full
// cancel pipe already guarantees wake-up, so EAGAIN is ignored.
func (c *Canceller) Cancel() {
	buf := [1]byte{1}
	for {
		_, err := unix.Write(c.w, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// Close releases the cancel pipe's descriptors.
func (c *Canceller) Close() error {
	err1 := unix.Close(c.r)
	err2 := unix.Close(c.w)
	if err1 != nil {
		return fmt.Errorf("close cancel pipe: %w", err1)
	}
	if err2 != nil {
		return fmt.Errorf("close cancel pipe: %w", err2)
	}
	return nil
}

// AcquireCancelable blocks until a token is read or c is cancelled. The
// returned bool is false when the wait was cancelled; no token byte was
// consumed in that case.
//
// The wait polls the token descriptor and the cancel pipe together, then
// takes the token with a non-blocking read: between poll readiness and the
// read, another process may have won the byte, in which case the loop polls
// again instead of blocking on a pool that is empty once more.
func (e *Engine) AcquireCancelable(c *Canceller) (byte, bool, error) {
	for {
		fds := []unix.PollFd{
			{Fd: int32(e.r), Events: unix.POLLIN},
			{Fd: int32(c.r), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return 0, false, fmt.Errorf("wait for token: %w", err)
		}

		// Cancellation takes priority so shutdown never consumes a token.
		if fds[1].Revents != 0 {
			return 0, false, nil
		}
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}

		b, ok, err := e.TryAcquire()
		if err != nil {
			return 0, false, err
		}
		if ok {
			return b, true, nil
		}
		// Lost the race for the byte; poll again.
	}
}
