package core

import "github.com/giantswarm/jobserver/internal/sentinel"

// Sentinel errors for error inspection with errors.Is.
//
// These use the sentinel.Error const pattern instead of errors.New vars,
// keeping them immutable while remaining compatible with errors.Is through
// wrapped error chains. Platform-dependent kinds (ErrCannotOpenFd,
// ErrCannotOpenPath, ErrNotAPipe) are declared in the per-platform engine
// files: re-exported from the engine package where it produces them, and
// declared locally where the platform never does.
const (
	// ErrNoEnvVar is reported by FromEnvExt when none of the recognized
	// environment variables is present.
	ErrNoEnvVar = sentinel.Error("no jobserver environment variable found")

	// ErrNoJobserver is reported by FromEnvExt when a recognized variable is
	// present but carries no --jobserver-auth= or --jobserver-fds= flag.
	ErrNoJobserver = sentinel.Error("no jobserver flag in environment variable")

	// ErrCannotParse is reported by FromEnvExt when the variable value is not
	// valid UTF-8, the descriptor numbers are unparseable, or the auth value
	// uses an unknown scheme.
	ErrCannotParse = sentinel.Error("cannot parse jobserver environment value")

	// ErrAlreadyReleased is returned by Acquired.Release when called more
	// than once on the same token. The first call released the token; later
	// calls perform no action.
	ErrAlreadyReleased = sentinel.Error("token already released")
)
