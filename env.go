package jobserver

import "github.com/giantswarm/jobserver/internal/core"

// FromEnv is the outcome of connecting to an inherited jobserver. VarName
// and VarValue are populated whenever a recognized environment variable was
// found, even on failure, so callers can report what was inspected.
type FromEnv struct {
	// Client is the connected client; nil when Err is non-nil.
	Client *Client
	// Err classifies the failure. Match with errors.Is against this
	// package's sentinel errors.
	Err error
	// VarName is the environment variable that was consulted, empty when
	// none was present.
	VarName string
	// VarValue is that variable's raw value.
	VarValue string
}

// FromEnvExt attempts to connect to the jobserver advertised in this
// process's environment.
//
// The variables CARGO_MAKEFLAGS, MAKEFLAGS, and MFLAGS are consulted in
// that order; only the first one present is used. Its value is scanned for
// the last --jobserver-auth= flag, falling back to the last
// --jobserver-fds= flag, and the transport named there is opened.
//
// With checkPipe set, inherited file descriptors must additionally stat as
// pipes; otherwise any readable/writable descriptor pair is accepted.
//
// On Unix the adopted descriptors are immediately marked close-on-exec so
// unrelated children do not inherit them. Configure clears the flag again,
// and it stays cleared afterwards, so children spawned later also inherit
// the descriptors. Call this early in the process lifetime, before
// other code opens file descriptors, so the numbered descriptors from the
// environment are still the ones the parent passed down.
//
// It is fine to call FromEnvExt any number of times; each success returns a
// new Client for the same pool. For an inherited descriptor pair all such
// clients use the same descriptor numbers, so closing one of them closes the
// descriptors for all; a FIFO is opened anew by each call.
func FromEnvExt(checkPipe bool) FromEnv {
	res := core.FromEnvExt(checkPipe)
	out := FromEnv{Err: res.Err, VarName: res.VarName, VarValue: res.VarValue}
	if res.Client != nil {
		out.Client = &Client{inner: res.Client}
	}
	return out
}

// FromEnvClient is a convenience over FromEnvExt(false) that discards the
// variable diagnostics: it returns the connected client, or the
// classification error when no usable jobserver is in the environment.
func FromEnvClient() (*Client, error) {
	res := FromEnvExt(false)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Client, nil
}
