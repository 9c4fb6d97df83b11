// Package pipe implements the Unix jobserver engine.
//
// The token pool is the set of bytes buffered in a pipe: acquiring a token is
// a single-byte read, releasing is a single-byte write. Two transports share
// one implementation: an anonymous pipe pair (created locally or adopted from
// "<R>,<W>" file descriptors in the environment) and a named FIFO opened from
// a "fifo:<PATH>" auth string. The kernel serializes single-byte reads across
// processes, so no user-space locking is needed around acquisition itself.
package pipe
