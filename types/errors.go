package types

import "errors"

// Error taxonomy. Validation and conflict errors are raised before any host
// resource is touched; exhaustion and external failures trigger compensating
// rollback in the caller. The API layer maps each kind to its own status.
var (
	// ErrNotFound: unknown VM or template. No side effects.
	ErrNotFound = errors.New("not found")
	// ErrConflict: name collision, template already exists or is in use.
	ErrConflict = errors.New("already exists")
	// ErrInvalid: bad VM/template name or request shape.
	ErrInvalid = errors.New("invalid")
	// ErrExhausted: no free IP or port in the configured range.
	ErrExhausted = errors.New("resources exhausted")
)
