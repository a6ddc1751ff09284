package application

import (
	"errors"
	"fmt"

	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
)

var (
	// ErrNotFound is returned when no policy exists for the application.
	ErrNotFound = errors.New("application: not found")
	// ErrInfrastructure matches every *InfrastructureError.
	ErrInfrastructure = errors.New("application: infrastructure failure")
)

// ValidationError carries every violation collected for a rejected policy,
// in collection order.
type ValidationError struct {
	Violations []schedule.Violation
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.Violations) == 1 {
		return "validation failed: 1 violation"
	}
	return fmt.Sprintf("validation failed: %d violations", len(v.Violations))
}

// HasErrors reports whether any violation was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Violations) > 0
}

func (v *ValidationError) add(violations ...schedule.Violation) {
	v.Violations = append(v.Violations, violations...)
}

// InfrastructureError reports a persistence or trigger store failure. It is
// never mixed with validation violations.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("application: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes errors.Is(err, ErrInfrastructure) hold for every InfrastructureError.
func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}

func infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *InfrastructureError
	if errors.As(err, &existing) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// mapPolicyRepoError translates repository failures into service errors.
func mapPolicyRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return infrastructure(op, err)
}
