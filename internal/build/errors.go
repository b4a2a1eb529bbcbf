package build

import "fmt"

// Error reports a build that could not proceed: an unknown mode, an
// unusable build directory or a missing prebuilt kernel.
type Error struct {
	Op      string
	Dir     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := "build " + e.Op
	if e.Dir != "" {
		msg += " " + e.Dir
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
