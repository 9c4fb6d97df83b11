package jobserver

import (
	"fmt"
	"os/exec"

	"github.com/giantswarm/jobserver/internal/core"
)

// Compile-time checks that the wrappers keep satisfying their minimal
// release contracts as the internal types evolve.
var (
	_ interface{ Release() error } = (*Acquired)(nil)
	_ interface{ Close() error }   = (*Client)(nil)
)

// Client is a handle to one jobserver pool. Copies of a Client refer to the
// same pool: hand the same *Client to as many goroutines as needed; all
// operations are safe for concurrent use.
//
// The core.Client is stored as a named (unexported) field rather than
// embedded to prevent callers from reaching internal methods through type
// assertions.
type Client struct {
	inner *core.Client
}

// New creates a jobserver pool holding limit tokens and returns a client
// connected to it.
//
// A limit of 0 is allowed and produces a pool on which Acquire always
// blocks until some other holder releases; this is mainly useful for tests.
// The pool is not automatically inherited by spawned children; call
// Configure on each child that should reach it.
//
// Panics if limit is negative: pool sizes are compile-time decisions, so a
// negative value is a programmer error, following the same fail-fast rule
// as [regexp.MustCompile].
func New(limit int) (*Client, error) {
	if limit < 0 {
		panic(fmt.Sprintf("jobserver: token limit must not be negative, got %d", limit))
	}
	inner, err := core.New(limit)
	if err != nil {
		return nil, fmt.Errorf("create jobserver: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Acquire blocks until a token is available and returns it. Each token
// authorizes one unit of work; return it with [Acquired.Release] when the
// work is done.
//
// The wait happens in a kernel read or semaphore wait with no timeout; the
// only non-blocking alternative is TryAcquire.
func (c *Client) Acquire() (*Acquired, error) {
	tok, err := c.inner.Acquire()
	if err != nil {
		return nil, err
	}
	return &Acquired{inner: tok}, nil
}

// TryAcquire attempts to take a token without blocking. It returns
// (nil, nil) when the pool is currently empty. If the transport cannot
// acquire without blocking, the error wraps [errors.ErrUnsupported].
func (c *Client) TryAcquire() (*Acquired, error) {
	tok, err := c.inner.TryAcquire()
	if err != nil || tok == nil {
		return nil, err
	}
	return &Acquired{inner: tok}, nil
}

// AcquireRaw blocks until a token is acquired, without returning a token
// value. The caller must guarantee a later ReleaseRaw; prefer Acquire
// unless the token genuinely cannot be stored (FFI boundaries and similar).
func (c *Client) AcquireRaw() error {
	return c.inner.AcquireRaw()
}

// ReleaseRaw returns one generic token to the pool. It pairs with
// AcquireRaw or [Acquired.Forget], and can also temporarily relinquish the
// process's implicit token for later re-acquisition.
func (c *Client) ReleaseRaw() error {
	return c.inner.ReleaseRaw()
}

// Available reports the current pool size on a best-effort basis: the
// unread byte count on the pipe transports. On Windows the semaphore count
// is not queryable and the error wraps [errors.ErrUnsupported].
func (c *Client) Available() (int, error) {
	return c.inner.Available()
}

// Configure gives the child described by cmd access to this pool. It sets
// CARGO_MAKEFLAGS to the protocol value and, on the Unix pipe transport,
// marks the pool's descriptors inheritable. Without Configure the child's
// FromEnvExt finds nothing.
//
// Panics on platforms with no inheritable transport.
func (c *Client) Configure(cmd *exec.Cmd) {
	c.inner.Configure(cmd)
}

// ConfigureMake is Configure plus the MAKEFLAGS and MFLAGS variables, for
// children that are make itself (or tools that read make's variables).
// Both --jobserver-fds= and --jobserver-auth= spellings are emitted so any
// make version picks up the one it understands.
func (c *Client) ConfigureMake(cmd *exec.Cmd) {
	c.inner.ConfigureMake(cmd)
}

// StartHelperThread moves blocking acquisition onto a dedicated worker
// goroutine owned by the returned HelperThread. f fires once per satisfied
// [HelperThread.RequestToken], on the worker, receiving either a token or
// the acquisition error.
//
// The client handle remains usable; worker and caller share the pool.
func (c *Client) StartHelperThread(f func(tok *Acquired, err error)) (*HelperThread, error) {
	inner, err := c.inner.IntoHelper(func(tok *core.Acquired, err error) {
		if tok != nil {
			f(&Acquired{inner: tok}, err)
			return
		}
		f(nil, err)
	})
	if err != nil {
		return nil, err
	}
	return &HelperThread{inner: inner}, nil
}

// Close releases the pool's IPC resources held by this process. It is
// optional (process exit reclaims them) and must only be called once no
// goroutine is using the client or its outstanding tokens.
func (c *Client) Close() error {
	return c.inner.Close()
}

// Acquired is one token of the pool currently held by this process.
type Acquired struct {
	inner *core.Acquired
}

// Release returns the token to the pool. Exactly one release reaches the
// pool per token: the second and later calls return ErrAlreadyReleased and
// perform no action, so using defer tok.Release() is safe.
//
// The byte that was read on acquisition is written back on release, in case
// the coordinating jobserver distinguishes token byte values.
func (a *Acquired) Release() error {
	return a.inner.Release()
}

// Forget drops the token without releasing it, for callers that cannot keep
// the Acquired value alive but must not yet return the capacity. Pair it
// with a later [Client.ReleaseRaw]; the pool stays one token short until
// then.
func (a *Acquired) Forget() {
	a.inner.Forget()
}
