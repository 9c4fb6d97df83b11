//go:build !unix && !windows

package core

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/giantswarm/jobserver/internal/sentinel"
)

// Platform-dependent sentinel kinds, declared so the public re-exports
// compile everywhere. This platform has no inheritable transport, so none
// of them is ever produced.
const (
	ErrCannotOpenFd   = sentinel.Error("jobserver descriptor cannot be opened")
	ErrCannotOpenPath = sentinel.Error("jobserver path cannot be opened")
	ErrNotAPipe       = sentinel.Error("jobserver descriptor is not a pipe")
)

// platformEngine is the fallback for platforms with neither pipes nor named
// semaphores: an in-process counter guarded by a mutex and condition
// variable. It bounds parallelism within this process but cannot be shared
// with children, so Configure panics and openEngine always fails.
type platformEngine struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tokens int
}

// newEngine creates the in-process fallback pool.
func newEngine(limit int) (engine, error) {
	e := &platformEngine{tokens: limit}
	e.cond = sync.NewCond(&e.mu)
	return e, nil
}

// openEngine fails: nothing can be inherited on this platform.
func openEngine(auth string, _ bool) (engine, error) {
	return nil, fmt.Errorf("open jobserver %q: %w", auth, errors.ErrUnsupported)
}

func (e *platformEngine) Acquire() (byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.tokens == 0 {
		e.cond.Wait()
	}
	e.tokens--
	return rawReleaseByte, nil
}

func (e *platformEngine) TryAcquire() (byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tokens == 0 {
		return 0, false, nil
	}
	e.tokens--
	return rawReleaseByte, true, nil
}

func (e *platformEngine) AcquireCancelable(c canceller) (byte, bool, error) {
	lc := c.(*localCanceller)
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.tokens == 0 && !lc.cancelled {
		e.cond.Wait()
	}
	if lc.cancelled {
		return 0, false, nil
	}
	e.tokens--
	return rawReleaseByte, true, nil
}

func (e *platformEngine) Release(_ byte) error {
	e.mu.Lock()
	e.tokens++
	e.mu.Unlock()
	e.cond.Broadcast()
	return nil
}

func (e *platformEngine) Available() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens, nil
}

// StringArg is only reachable through Configure, which panics first.
func (e *platformEngine) StringArg() string { return "" }

// Configure cannot work: the pool lives in this process's memory and no
// child can reach it.
func (e *platformEngine) Configure(_ *exec.Cmd) {
	panic("jobserver: cannot configure child processes on this platform")
}

func (e *platformEngine) NewCanceller() (canceller, error) {
	return &localCanceller{engine: e}, nil
}

func (e *platformEngine) Close() error { return nil }

// localCanceller wakes the fallback engine's condition variable with a
// cancelled flag set.
type localCanceller struct {
	engine    *platformEngine
	cancelled bool
}

func (c *localCanceller) Cancel() {
	c.engine.mu.Lock()
	c.cancelled = true
	c.engine.mu.Unlock()
	c.engine.cond.Broadcast()
}

func (c *localCanceller) Close() error { return nil }
