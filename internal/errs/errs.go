// Package errs defines the sentinel errors shared across the service.
package errs

import "errors"

var (
	// ErrInvalidNonce means the nonce does not exist or was issued for a
	// different address.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrInvalidSignature means signature verification failed or the
	// recovered signer does not match the submitted address.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidAddress means the submitted address could not be decoded.
	ErrInvalidAddress = errors.New("unrecognised address format")
	// ErrAlreadyBound means the (server, user, address) binding already
	// exists.
	ErrAlreadyBound = errors.New("user already associated to address")
	// ErrPermissionDenied means the platform refused a role mutation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is the generic missing-row sentinel.
	ErrNotFound = errors.New("not found")
)
