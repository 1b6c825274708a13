package access

import "errors"

// Sentinel errors for the access domain. Handlers map these onto RFC7807
// responses; everything else surfaces as an internal error.
var (
	// ErrValidation indicates malformed input, rejected before any mutation.
	ErrValidation = errors.New("access: validation failed")
	// ErrNotFound indicates the referenced role, user or override does not exist.
	ErrNotFound = errors.New("access: not found")
	// ErrCycle indicates a re-parent that would make the hierarchy cyclic.
	ErrCycle = errors.New("access: hierarchy cycle")
	// ErrConflict indicates a deletion blocked by dependents.
	ErrConflict = errors.New("access: conflict")
	// ErrForbidden indicates an attempt to mutate a system role, or a denied guard.
	ErrForbidden = errors.New("access: forbidden")
	// ErrDuplicate indicates a unique constraint was hit.
	ErrDuplicate = errors.New("access: duplicate")
	// ErrIntegrity indicates corrupt stored data, e.g. a cycle found while
	// reading a hierarchy that write-time validation should have prevented.
	ErrIntegrity = errors.New("access: data integrity")
)
