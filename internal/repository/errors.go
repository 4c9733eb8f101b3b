// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current caller is not
// authorized to perform an operation, while ErrConflict signals that
// an operation cannot proceed due to conflicting state (e.g. registering
// a guest visit whose window already ended).
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// they are not allowed to perform. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an insert or update cannot be
// performed because of conflicting state. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
