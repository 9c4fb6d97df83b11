// Package mkflags parses and renders the jobserver portion of MAKEFLAGS-style
// environment values.
//
// GNU make advertises its jobserver to sub-makes through the MAKEFLAGS
// variable. Two spellings exist: --jobserver-fds= (make < 4.2, originally an
// internal flag) and --jobserver-auth= (make >= 4.2). This package extracts
// the authentication value from such a string and renders the value this
// module places into child environments, emitting both spellings so that any
// make version can pick up the one it understands.
package mkflags
