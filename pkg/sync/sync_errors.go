package sync

import "errors"

var (
	// ErrUnknownInstance indicates a name that is not registered on this replica.
	ErrUnknownInstance = errors.New("unknown crdt instance")
	// ErrDuplicateInstance indicates Register was called twice with the same name.
	ErrDuplicateInstance = errors.New("crdt instance already registered")
	// ErrForeignOwner indicates a registered instance owned by another node.
	ErrForeignOwner = errors.New("crdt instance owned by another node")
	// ErrMalformedMessage indicates a digest or message that failed validation.
	ErrMalformedMessage = errors.New("malformed sync message")
)
