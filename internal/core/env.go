package core

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/giantswarm/jobserver/internal/mkflags"
)

// envVars lists the recognized environment variables in precedence order.
// Only the first variable present is consulted, even if its value then
// fails to parse.
var envVars = [...]string{"CARGO_MAKEFLAGS", "MAKEFLAGS", "MFLAGS"}

// FromEnvResult bundles the outcome of environment inheritance. VarName and
// VarValue are populated whenever a recognized variable was found, even on
// failure, so callers can diagnose what was inspected.
type FromEnvResult struct {
	// Client is the connected client; nil when Err is non-nil.
	Client *Client
	// Err classifies the failure; match with errors.Is against the
	// package sentinels (ErrNoEnvVar, ErrNoJobserver, ErrCannotParse,
	// ErrCannotOpenFd, ErrCannotOpenPath, ErrNotAPipe).
	Err error
	// VarName is the environment variable that was consulted.
	VarName string
	// VarValue is its raw value.
	VarValue string
}

// FromEnvExt inspects the environment for an inherited jobserver and opens
// its transport. checkPipe additionally requires descriptor-pair transports
// to stat as pipes before they are accepted.
//
// On Unix the adopted descriptors are immediately marked close-on-exec so
// they do not leak to unrelated children; Configure clears the flag again
// and leaves it cleared for later children too.
func FromEnvExt(checkPipe bool) FromEnvResult {
	name, value, found := lookupEnv()
	if !found {
		return FromEnvResult{Err: ErrNoEnvVar}
	}

	res := FromEnvResult{VarName: name, VarValue: value}
	if !utf8.ValidString(value) {
		res.Err = fmt.Errorf("%s is not valid UTF-8: %w", name, ErrCannotParse)
		return res
	}

	auth, found := mkflags.FindJobserverAuth(value)
	if !found {
		res.Err = fmt.Errorf("%s carries no jobserver flag: %w", name, ErrNoJobserver)
		return res
	}

	e, err := openEngine(auth, checkPipe)
	if err != nil {
		res.Err = err
		return res
	}
	res.Client = &Client{engine: e}
	return res
}

// lookupEnv returns the first recognized variable present in the
// environment. Present-but-empty counts as present.
func lookupEnv() (name, value string, found bool) {
	for _, name := range envVars {
		if value, ok := os.LookupEnv(name); ok {
			return name, value, true
		}
	}
	return "", "", false
}
