package core

import (
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/giantswarm/jobserver/internal/mkflags"
)

// rawReleaseByte is written for releases that carry no preserved token
// byte, matching what make primes pools with. Engines that have no byte
// payload ignore it.
const rawReleaseByte = '+'

// engine is the platform-specific transport behind a Client. One
// implementation exists per platform family (pipe/FIFO on Unix, named
// semaphore on Windows, an in-process counter elsewhere); the concrete type
// is selected by the engine_* files.
//
// Acquire, TryAcquire, and AcquireCancelable return the engine payload byte
// of the token; transports without byte payloads return a fixed placeholder
// (zero on Windows, rawReleaseByte for the in-process fallback) and ignore
// the byte passed to Release.
type engine interface {
	Acquire() (byte, error)
	TryAcquire() (byte, bool, error)
	AcquireCancelable(c canceller) (byte, bool, error)
	Release(b byte) error
	Available() (int, error)
	StringArg() string
	Configure(cmd *exec.Cmd)
	NewCanceller() (canceller, error)
	Close() error
}

// canceller unblocks a pending AcquireCancelable. Cancel may be called more
// than once and from any goroutine.
type canceller interface {
	Cancel()
	Close() error
}

// Client is a handle to one jobserver pool. All copies of the pointer refer
// to the same pool; any of them may acquire and release concurrently.
type Client struct {
	engine engine
}

// New creates a jobserver pool holding limit tokens. limit zero is allowed
// and produces a pool on which Acquire always blocks until someone releases.
// The caller validates that limit is non-negative.
func New(limit int) (*Client, error) {
	e, err := newEngine(limit)
	if err != nil {
		return nil, err
	}
	return &Client{engine: e}, nil
}

// Acquire blocks until a token is available and returns it. Safe to call
// from multiple goroutines on the same Client; the kernel serializes the
// underlying single-token operations.
func (c *Client) Acquire() (*Acquired, error) {
	b, err := c.engine.Acquire()
	if err != nil {
		return nil, err
	}
	return &Acquired{engine: c.engine, payload: b}, nil
}

// TryAcquire attempts to take a token without blocking. It returns
// (nil, nil) when the pool is empty. Engines that cannot acquire without
// blocking return an error wrapping errors.ErrUnsupported.
func (c *Client) TryAcquire() (*Acquired, error) {
	b, ok, err := c.engine.TryAcquire()
	if err != nil || !ok {
		return nil, err
	}
	return &Acquired{engine: c.engine, payload: b}, nil
}

// AcquireRaw blocks until a token is acquired and discards the token
// payload. The caller must balance it with a later ReleaseRaw.
func (c *Client) AcquireRaw() error {
	_, err := c.engine.Acquire()
	return err
}

// ReleaseRaw returns one generic token to the pool. It pairs with
// AcquireRaw, with Acquired.Forget, or with temporarily relinquishing the
// process's implicit token.
func (c *Client) ReleaseRaw() error {
	return c.engine.Release(rawReleaseByte)
}

// Available reports the best-effort pool size. On the pipe transports this
// is the unread byte count; on Windows it is unsupported.
func (c *Client) Available() (int, error) {
	return c.engine.Available()
}

// Configure injects the jobserver protocol into cmd: CARGO_MAKEFLAGS is set
// to the protocol value and the engine attaches whatever the child needs to
// reach the pool (inheritable descriptors on the Unix pipe transport).
func (c *Client) Configure(cmd *exec.Cmd) {
	c.configure(cmd, false)
}

// ConfigureMake is Configure plus the MAKEFLAGS and MFLAGS variables that a
// make child consults.
func (c *Client) ConfigureMake(cmd *exec.Cmd) {
	c.configure(cmd, true)
}

func (c *Client) configure(cmd *exec.Cmd, makeCompat bool) {
	value := mkflags.Value(c.engine.StringArg())
	setCmdEnv(cmd, "CARGO_MAKEFLAGS", value)
	if makeCompat {
		setCmdEnv(cmd, "MAKEFLAGS", value)
		setCmdEnv(cmd, "MFLAGS", value)
	}
	c.engine.Configure(cmd)
}

// setCmdEnv sets key=value on cmd, replacing every existing entry for key
// so the child sees exactly one binding. A nil cmd.Env starts from the
// current process environment, mirroring what exec would do.
func setCmdEnv(cmd *exec.Cmd, key, value string) {
	env := cmd.Env
	if env == nil {
		env = cmd.Environ()
	}
	prefix := key + "="
	out := env[:0]
	replaced := false
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			if replaced {
				continue
			}
			kv = prefix + value
			replaced = true
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, prefix+value)
	}
	cmd.Env = out
}

// StringArg returns the engine's auth string as propagated to children.
func (c *Client) StringArg() string {
	return c.engine.StringArg()
}

// Close releases the pool's IPC resources. Callers must have quiesced
// acquirers first; tokens still outstanding can no longer be released.
// Closing is optional: process exit reclaims the resources.
func (c *Client) Close() error {
	return c.engine.Close()
}

// Acquired is one token currently held by this process. It keeps its own
// engine reference so it stays releasable after the Client handle that
// produced it is gone.
type Acquired struct {
	engine   engine
	payload  byte
	released atomic.Bool
}

// Release returns the token to the pool, writing back the payload byte that
// was originally read so byte-distinguishing jobservers see their token
// unchanged. Exactly one release happens per token: the second and later
// calls return ErrAlreadyReleased without touching the pool.
func (a *Acquired) Release() error {
	if !a.released.CompareAndSwap(false, true) {
		return fmt.Errorf("release token: %w", ErrAlreadyReleased)
	}
	return a.engine.Release(a.payload)
}

// Forget relinquishes the token without releasing it to the pool. The
// caller promises to return the unit of capacity later via ReleaseRaw.
// After Forget, Release reports ErrAlreadyReleased.
func (a *Acquired) Forget() {
	a.released.Store(true)
}
