package errors

import (
	stderr "errors"
	"fmt"

	"github.com/gofrs/uuid"
)

// UUIDNotFoundError is a service domain error for an unknown editor session.
type UUIDNotFoundError struct {
	UUID uuid.UUID
}

// Error is an implementation of the error interface.
func (n *UUIDNotFoundError) Error() string {
	return fmt.Sprintf("UUID %q not found", n.UUID)
}

// NotFoundUUID returns an UUID and true if UUIDNotFoundError is part of the
// error chain.
func NotFoundUUID(e error) (_ uuid.UUID, ok bool) {
	var nf *UUIDNotFoundError
	if !stderr.As(e, &nf) {
		return uuid.Nil, false
	}
	return nf.UUID, true
}

// RootNotFoundError is a service domain error for a root with no live session.
type RootNotFoundError struct {
	Root string
}

// Error is an implementation of the error interface.
func (n *RootNotFoundError) Error() string {
	return fmt.Sprintf("no session for root %q", n.Root)
}

// NotFoundRoot returns the root and true if RootNotFoundError is part of the
// error chain.
func NotFoundRoot(e error) (_ string, ok bool) {
	var nf *RootNotFoundError
	if !stderr.As(e, &nf) {
		return "", false
	}
	return nf.Root, true
}

// NoSessionFoundError indicates that an editor session cannot be found within the context.
type NoSessionFoundError struct{}

// Error is an implementation of the error interface.
func (n *NoSessionFoundError) Error() string {
	return "no editor session found in context"
}
