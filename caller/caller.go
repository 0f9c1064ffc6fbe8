// Package caller formats the call stack leading to an invariant-violation
// panic, so the panic message carries enough context to find the bug.
package caller

import (
	"fmt"
	"runtime"
)

// Dump formats the call stack starting at the given depth, one frame per
// line, oldest caller last.
func Dump(start int) string {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	return s
}
