// Package failpolicy names what a component does when its backing
// infrastructure (key-value store, account API) cannot be reached.
package failpolicy

import (
	"fmt"
	"strings"
)

type Policy int

const (
	// serve the request anyway and log the fault
	FailOpen Policy = iota

	// refuse the request
	FailClosed
)

func (p Policy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case FailClosed:
		return "fail-closed"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// reports whether a fault should let the request through
func (p Policy) Allows() bool {
	return p != FailClosed
}

// parses "open"/"fail-open" and "closed"/"fail-closed"; empty means FailOpen
func Parse(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open", "fail-open":
		return FailOpen, nil
	case "closed", "fail-closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown fail policy %q", s)
	}
}
