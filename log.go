package jobserver

import (
	"log/slog"

	"github.com/giantswarm/jobserver/internal/core"
)

// SetLogger replaces the package-level logger used by jobserver.
// This allows applications to integrate jobserver logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; jobserver will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with a
// "component" attribute, re-derived on the next use and then cached. Call
// SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// The logger is only consulted for diagnostics that have no error return
// path, such as recovered helper-callback panics.
//
// SetLogger is safe to call concurrently with other jobserver operations.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
