package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

// NoMethodParamsError reports that a request arrived without the params its method requires.
var NoMethodParamsError = New("method params are required")

// IsBadRequest reports whether the error is a bad request from the caller.
func IsBadRequest(e error) bool {
	return stderr.Is(e, NoMethodParamsError)
}
