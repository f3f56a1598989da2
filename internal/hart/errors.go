package hart

import "fmt"

// Exception is the structured cause every fallible core operation surfaces
// (spec.md §7): a trap cause plus an optional faulting address for tval.
type Exception struct {
	Cause uint64
	Tval  uint64
}

func (e *Exception) Error() string {
	return fmt.Sprintf("exception: cause=0x%x tval=0x%x", e.Cause, e.Tval)
}

// trap builds an *Exception for the given cause and faulting value.
func trap(cause, tval uint64) error {
	return &Exception{Cause: cause, Tval: tval}
}

// asException extracts an *Exception from err, if any.
func asException(err error) (*Exception, bool) {
	exc, ok := err.(*Exception)
	return exc, ok
}
