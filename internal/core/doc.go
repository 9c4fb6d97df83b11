// Package core implements the jobserver client behind the public facade:
// the platform engine contract, token acquisition and release, environment
// inheritance, child-process configuration, and the helper worker that turns
// blocking acquisition into callbacks.
package core
