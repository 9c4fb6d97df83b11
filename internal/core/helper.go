package core

import (
	"fmt"
	"sync"
)

// TokenCallback receives the outcome of each satisfied token request. On
// success tok is the acquired token and err is nil; on acquisition failure
// tok is nil. Callbacks run on the helper's worker goroutine and are
// therefore serialized.
type TokenCallback func(tok *Acquired, err error)

// Helper owns a worker goroutine that performs blocking acquisitions on
// behalf of a host that already has an event loop of its own. Each
// RequestToken queues one acquisition; the callback fires once per token
// obtained, in acquisition order.
type Helper struct {
	client *Client
	cancel canceller

	// mu guards requests, producerDone, and consumerDone; cond signals
	// every transition of those fields.
	mu   sync.Mutex
	cond *sync.Cond

	// requests counts queued token requests not yet picked up by the worker.
	requests int

	// producerDone is set by Close; the worker exits when it observes it.
	producerDone bool

	// consumerDone is set by the worker on exit; Close waits for it.
	consumerDone bool

	closeOnce sync.Once
}

// IntoHelper spawns the worker goroutine and hands it the client. The
// client handle remains usable by the caller; the helper only shares the
// pool. f is invoked on the worker goroutine for every satisfied request.
func (c *Client) IntoHelper(f TokenCallback) (*Helper, error) {
	cancel, err := c.engine.NewCanceller()
	if err != nil {
		return nil, fmt.Errorf("create helper thread: %w", err)
	}
	h := &Helper{client: c, cancel: cancel}
	h.cond = sync.NewCond(&h.mu)
	go h.run(f)
	return h, nil
}

// RequestToken queues one token request and wakes the worker. Requests
// still queued when Close is called are discarded.
func (h *Helper) RequestToken() {
	h.mu.Lock()
	h.requests++
	h.mu.Unlock()
	h.cond.Broadcast()
}

// Close tears the worker down and waits for it to exit. A worker parked on
// the request queue wakes via the condition variable; a worker blocked
// inside an acquisition is unblocked through the engine's canceller without
// consuming a token. After Close returns, no further callbacks fire.
// Close is idempotent.
func (h *Helper) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.producerDone = true
		h.mu.Unlock()
		h.cond.Broadcast()
		h.cancel.Cancel()

		h.mu.Lock()
		for !h.consumerDone {
			h.cond.Wait()
		}
		h.mu.Unlock()

		if err := h.cancel.Close(); err != nil {
			Logger().Warn("closing helper canceller", "error", err)
		}
	})
}

// run is the worker loop: wait for a request, perform one cancellable
// acquisition, deliver the outcome, repeat until Close.
func (h *Helper) run(f TokenCallback) {
	h.mu.Lock()
	for !h.producerDone {
		if h.requests == 0 {
			h.cond.Wait()
			continue
		}
		h.requests--
		h.mu.Unlock()

		h.acquireAndDeliver(f)

		h.mu.Lock()
	}
	h.consumerDone = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// acquireAndDeliver performs one acquisition and invokes the callback,
// distinguishing a cancellation during shutdown (no callback, request
// dropped) from a spurious wake-up (retry).
func (h *Helper) acquireAndDeliver(f TokenCallback) {
	for {
		b, ok, err := h.client.engine.AcquireCancelable(h.cancel)
		if err == nil && !ok {
			h.mu.Lock()
			done := h.producerDone
			h.mu.Unlock()
			if done {
				return
			}
			continue
		}

		var tok *Acquired
		if err == nil {
			tok = &Acquired{engine: h.client.engine, payload: b}
		}
		h.deliver(f, tok, err)
		return
	}
}

// deliver runs the callback, containing panics so a panicking callback
// cannot kill the worker and leave later requests unserviceable.
func (h *Helper) deliver(f TokenCallback, tok *Acquired, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("token callback panicked", "panic", r)
		}
	}()
	f(tok, err)
}
