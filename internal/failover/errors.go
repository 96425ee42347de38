package failover

import (
	"fmt"
	"strings"
)

// Errors is the ordered list of per-endpoint failures returned when no
// endpoint succeeded. Entry i is the error of the i-th endpoint attempted.
//
// An empty Errors means no endpoint was attempted at all, which callers
// usually want to report differently from "every endpoint failed".
type Errors []error

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "no endpoints attempted"
	case 1:
		return e[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "all %d endpoints failed: ", len(e))
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes every cause to errors.Is and errors.As.
func (e Errors) Unwrap() []error {
	return e
}
