package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a write collides with an existing record.
	ErrConflict = errors.New("persistence: conflict")
	// ErrConstraintViolation is returned when a write references a missing
	// parent record or breaks a column constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
