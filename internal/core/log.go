package core

import (
	"log/slog"
	"sync/atomic"
)

// logger holds the caller-provided logger, if any. Atomic so SetLogger can
// race freely with token operations. Named "logger" rather than "log" to
// keep the stdlib log package importable here.
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches the fallback logger (slog.Default() plus the
// component attribute) so it is built once, not per log call. The cache is
// invalidated by SetLogger(nil), which is also the documented way to pick
// up a later slog.SetDefault().
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the logger used for jobserver diagnostics: the one set via
// SetLogger, or a cached slog.Default()-derived fallback. Never nil; safe
// from any goroutine.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefaultLogger()
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	// Lost the CAS; prefer the winner's logger. It can be nil again if a
	// concurrent SetLogger cleared the cache, so fall back to the local one.
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// newDefaultLogger derives the fallback logger from slog.Default().
func newDefaultLogger() *slog.Logger {
	return slog.Default().With("component", "jobserver")
}

// SetLogger replaces the package-level logger; nil restores the default,
// re-derived from slog.Default() on next use.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
