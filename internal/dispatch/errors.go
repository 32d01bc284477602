package dispatch

import "errors"

var (
	// ErrInvalidRequest marks caller input that fails validation. The
	// whole request is rejected; inputs are never partially accepted.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks a named group that matches no joined chat.
	ErrNotFound = errors.New("group not found")
	// ErrInvalidRecipient marks a number that does not resolve to a
	// platform identifier.
	ErrInvalidRecipient = errors.New("invalid recipient")
)
