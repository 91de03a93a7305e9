//go:build !release

package assert

import "fmt"

// That panics with a formatted message when cond is false. Release builds compile it to a no-op.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
