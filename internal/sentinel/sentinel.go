package sentinel

// Compile-time check that Error implements the error interface.
var _ error = Error("")

// Error is a sentinel error backed by a string constant. Declaring sentinels
// as const (rather than errors.New vars) makes them immutable: no consumer
// can reassign them, and the protocol's error kinds stay fixed for the
// lifetime of the process.
//
// Because Error is comparable, errors.Is matches it through wrapped chains
// with its default == comparison; no Is method is needed.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
