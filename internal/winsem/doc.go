// Package winsem implements the Windows jobserver engine.
//
// The token pool is a named kernel semaphore created with equal initial and
// maximum counts (a zero-token pool gets a maximum of one). Children receive only the semaphore name through the
// environment and open it themselves, so no handle inheritance is involved.
// This matches the mingw32-make flavor of the protocol; the non-MSYS2 make
// uses an undocumented descriptor scheme this package does not speak.
package winsem
