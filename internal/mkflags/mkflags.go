package mkflags

import (
	"fmt"
	"strings"
)

// authFlags lists the recognized jobserver flags in precedence order.
// Any --jobserver-auth= occurrence wins over every --jobserver-fds=
// occurrence; within one flag the last occurrence is the relevant one,
// per the make manual ("Only the last instance is relevant").
var authFlags = [...]string{"--jobserver-auth=", "--jobserver-fds="}

// FindJobserverAuth extracts the jobserver authentication value from a
// MAKEFLAGS-style string.
//
// The value runs from the = of the winning flag occurrence up to the next
// ASCII space or the end of the string. A flag spelled without = is not a
// match. An empty value after = is a valid match; callers decide whether an
// empty auth string is usable.
//
// The second return is false when neither flag occurs in s.
func FindJobserverAuth(s string) (string, bool) {
	for _, flag := range authFlags {
		i := strings.LastIndex(s, flag)
		if i < 0 {
			continue
		}
		v := s[i+len(flag):]
		if j := strings.IndexByte(v, ' '); j >= 0 {
			v = v[:j]
		}
		return v, true
	}
	return "", false
}

// Value renders the MAKEFLAGS value advertising the given auth string to
// child processes. Both flag spellings are emitted because make < 4.2
// recognizes only --jobserver-fds= and make >= 4.2 only --jobserver-auth=.
func Value(arg string) string {
	return fmt.Sprintf("-j --jobserver-fds=%s --jobserver-auth=%s", arg, arg)
}
