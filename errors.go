package jobserver

import "github.com/giantswarm/jobserver/internal/core"

// Sentinel errors for error inspection with errors.Is.
//
// These use the sentinel.Error const pattern instead of errors.New vars.
// sentinel.Error is a string type implementing error, allowing errors to be
// declared as const. This prevents accidental reassignment and enables
// compile-time immutability, while remaining compatible with errors.Is
// through Go's default == comparison on comparable types.
const (
	// ErrNoEnvVar is reported by FromEnvExt when none of CARGO_MAKEFLAGS,
	// MAKEFLAGS, and MFLAGS is present in the environment.
	ErrNoEnvVar = core.ErrNoEnvVar

	// ErrNoJobserver is reported by FromEnvExt when a recognized variable is
	// present but carries neither --jobserver-auth= nor --jobserver-fds=.
	ErrNoJobserver = core.ErrNoJobserver

	// ErrCannotParse is reported by FromEnvExt when the variable value is
	// not valid UTF-8, descriptor numbers are unparseable, or the auth value
	// uses an unknown scheme.
	ErrCannotParse = core.ErrCannotParse

	// ErrCannotOpenFd is reported by FromEnvExt when an inherited descriptor
	// is closed or lacks the required access mode.
	ErrCannotOpenFd = core.ErrCannotOpenFd

	// ErrCannotOpenPath is reported by FromEnvExt when the transport named
	// by the auth value (a FIFO path, or a semaphore name on Windows)
	// cannot be opened.
	ErrCannotOpenPath = core.ErrCannotOpenPath

	// ErrNotAPipe is reported by FromEnvExt when pipe checking is enabled
	// and an inherited descriptor does not refer to a pipe.
	ErrNotAPipe = core.ErrNotAPipe

	// ErrAlreadyReleased is returned by Acquired.Release when the token was
	// already released (or dropped via Forget).
	ErrAlreadyReleased = core.ErrAlreadyReleased
)
