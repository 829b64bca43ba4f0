package errors

import (
	stderr "errors"
	"fmt"
)

// EscapeError indicates that an argv token or working directory cannot be
// represented safely on a shell command line. Launching proceeds no further
// when this error is returned.
type EscapeError struct {
	Token string
}

// Error is an implementation of the error interface.
func (e *EscapeError) Error() string {
	return fmt.Sprintf("token %q cannot be shell-quoted", e.Token)
}

// IsEscapeError reports whether EscapeError is part of the error chain.
func IsEscapeError(e error) bool {
	var ee *EscapeError
	return stderr.As(e, &ee)
}
