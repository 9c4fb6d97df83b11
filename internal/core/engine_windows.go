//go:build windows

package core

import (
	"github.com/giantswarm/jobserver/internal/sentinel"
	"github.com/giantswarm/jobserver/internal/winsem"
)

// Platform-dependent sentinel kinds. The descriptor-pair kinds are declared
// here so the public re-exports compile on every platform; the Windows
// transport never produces them.
const (
	// ErrCannotOpenFd is never produced on Windows; descriptor-pair
	// transports are a Unix concept.
	ErrCannotOpenFd = sentinel.Error("jobserver descriptor cannot be opened")

	// ErrCannotOpenPath is reported when the named semaphore from the
	// environment cannot be opened.
	ErrCannotOpenPath = winsem.ErrOpenSemaphore

	// ErrNotAPipe is never produced on Windows.
	ErrNotAPipe = sentinel.Error("jobserver descriptor is not a pipe")
)

// platformEngine adapts *winsem.Engine to the engine interface. Only the
// canceller methods need adapting; everything else promotes unchanged.
type platformEngine struct {
	*winsem.Engine
}

func (e platformEngine) NewCanceller() (canceller, error) {
	return e.Engine.NewCanceller()
}

func (e platformEngine) AcquireCancelable(c canceller) (byte, bool, error) {
	return e.Engine.AcquireCancelable(c.(*winsem.Canceller))
}

// newEngine creates the Windows named-semaphore transport.
func newEngine(limit int) (engine, error) {
	e, err := winsem.New(limit)
	if err != nil {
		return nil, err
	}
	return platformEngine{e}, nil
}

// openEngine opens the named semaphore carried by the auth string. Pipe
// checking does not apply to this transport.
func openEngine(auth string, _ bool) (engine, error) {
	e, err := winsem.Open(auth)
	if err != nil {
		return nil, err
	}
	return platformEngine{e}, nil
}
