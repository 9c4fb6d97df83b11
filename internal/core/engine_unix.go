//go:build unix

package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/giantswarm/jobserver/internal/pipe"
)

// Platform-dependent sentinel kinds, re-exported from the engine package so
// the public API imports only from core, preserving the layering:
// public API → core → pipe.
const (
	// ErrCannotOpenFd is reported when a descriptor from the environment is
	// closed or lacks the required access mode.
	ErrCannotOpenFd = pipe.ErrBadDescriptor

	// ErrCannotOpenPath is reported when a named FIFO from the environment
	// cannot be opened.
	ErrCannotOpenPath = pipe.ErrOpenPath

	// ErrNotAPipe is reported when pipe checking is enabled and a descriptor
	// from the environment does not refer to a pipe.
	ErrNotAPipe = pipe.ErrNotAPipe
)

// platformEngine adapts *pipe.Engine to the engine interface. Only the
// canceller methods need adapting; everything else promotes unchanged.
type platformEngine struct {
	*pipe.Engine
}

func (e platformEngine) NewCanceller() (canceller, error) {
	return e.Engine.NewCanceller()
}

func (e platformEngine) AcquireCancelable(c canceller) (byte, bool, error) {
	return e.Engine.AcquireCancelable(c.(*pipe.Canceller))
}

// newEngine creates the Unix pipe transport.
func newEngine(limit int) (engine, error) {
	e, err := pipe.New(limit)
	if err != nil {
		return nil, err
	}
	return platformEngine{e}, nil
}

// openEngine opens the transport named by an auth string: "fifo:<PATH>" for
// a named FIFO, "<R>,<W>" for an inherited descriptor pair. Anything else,
// including an empty auth value, is a parse failure.
func openEngine(auth string, checkPipe bool) (engine, error) {
	if path, ok := strings.CutPrefix(auth, "fifo:"); ok {
		e, err := pipe.OpenFIFO(path)
		if err != nil {
			return nil, err
		}
		return platformEngine{e}, nil
	}

	rs, ws, ok := strings.Cut(auth, ",")
	if !ok {
		return nil, fmt.Errorf("auth %q is not <read-fd>,<write-fd>: %w", auth, ErrCannotParse)
	}
	r, err := strconv.Atoi(rs)
	if err != nil || r < 0 {
		return nil, fmt.Errorf("read descriptor %q: %w", rs, ErrCannotParse)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w < 0 {
		return nil, fmt.Errorf("write descriptor %q: %w", ws, ErrCannotParse)
	}

	e, err := pipe.Open(r, w, checkPipe)
	if err != nil {
		return nil, err
	}
	return platformEngine{e}, nil
}
