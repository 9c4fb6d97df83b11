package jobserver

import "github.com/giantswarm/jobserver/internal/core"

// HelperThread manages the worker goroutine spawned by
// [Client.StartHelperThread].
//
// Callbacks are delivered in the order tokens are acquired, which matches
// the order requests are satisfied; since they all run on the one worker,
// they are serialized. A callback that panics is recovered and logged so
// later requests stay serviceable.
type HelperThread struct {
	inner *core.Helper
}

// RequestToken queues one token request. The callback passed to
// StartHelperThread fires once a token has been acquired for it. Requests
// still queued when Close is called are discarded without a callback.
func (h *HelperThread) RequestToken() {
	h.inner.RequestToken()
}

// Close shuts the worker down and blocks until it has exited. A worker
// blocked inside an acquisition is unblocked without consuming a token, so
// Close is prompt even when the pool is empty and nothing was requested.
// After Close returns, no further callbacks fire. Close is idempotent.
func (h *HelperThread) Close() {
	h.inner.Close()
}
