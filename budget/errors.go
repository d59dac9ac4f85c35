/*
errors.go - Rejection taxonomy of the consistency engine

PURPOSE:
  Every validation failure is a caller-fixable rejection with a sentinel
  (for errors.Is) and a structured type carrying the competing values
  (for errors.As). Anything else, such as a store being unavailable, is
  an internal failure and is wrapped with %w by the layer that hit it.

PRECEDENCE:
  When several rules fail for one mutation, the first one in this order
  is reported:

    NotFound → DuplicateKey → FloorViolation → CeilingExceeded → StructuralConflict

USAGE:
  var ceil *budget.CeilingExceededError
  if errors.As(err, &ceil) {
      log.Printf("over by %s", ceil.Excess())
  }
*/
package budget

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a business key is already used by a
	// different record.
	ErrDuplicateKey = errors.New("duplicate business key")

	// ErrCeilingExceeded is returned when a child sum would exceed its
	// parent's amount.
	ErrCeilingExceeded = errors.New("allocation ceiling exceeded")

	// ErrFloorViolation is returned when an amount would fall below the sum
	// already allocated to its children.
	ErrFloorViolation = errors.New("allocation floor violated")

	// ErrStructuralConflict is returned when a delete is blocked by children.
	ErrStructuralConflict = errors.New("entity has dependent children")

	// ErrInvalidInput is returned for malformed input (negative amounts,
	// missing parent references, and so on).
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind Kind
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateKeyError names the colliding business key.
type DuplicateKeyError struct {
	Kind Kind
	Key  string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s number %q already in use", e.Kind, e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// CeilingExceededError reports a child sum that would exceed the parent.
// Allocated is the sum of the siblings, excluding the entity itself when
// it is being updated.
type CeilingExceededError struct {
	Kind       Kind
	ParentKind Kind
	ParentID   int64
	Ceiling    Money
	Allocated  Money
	Requested  Money
}

// Total is the child sum the mutation would have produced.
func (e *CeilingExceededError) Total() Money { return e.Allocated.Add(e.Requested) }

// Excess is how far Total lies above Ceiling.
func (e *CeilingExceededError) Excess() Money { return e.Total().Sub(e.Ceiling) }

func (e *CeilingExceededError) Error() string {
	return fmt.Sprintf("%s total %s would exceed %s %d amount %s (allocated %s, requested %s)",
		e.Kind, e.Total(), e.ParentKind, e.ParentID, e.Ceiling, e.Allocated, e.Requested)
}

func (e *CeilingExceededError) Unwrap() error { return ErrCeilingExceeded }

// FloorViolationError reports an amount below what children already hold.
type FloorViolationError struct {
	Kind      Kind
	ID        int64
	ChildKind Kind
	Floor     Money
	Requested Money
}

func (e *FloorViolationError) Error() string {
	return fmt.Sprintf("%s %d amount %s is below the %s total %s",
		e.Kind, e.ID, e.Requested, e.ChildKind, e.Floor)
}

func (e *FloorViolationError) Unwrap() error { return ErrFloorViolation }

// StructuralConflictError reports a delete blocked by existing children.
type StructuralConflictError struct {
	Kind      Kind
	ID        int64
	ChildKind Kind
}

func (e *StructuralConflictError) Error() string {
	return fmt.Sprintf("cannot delete %s %d: it still has %ss", e.Kind, e.ID, e.ChildKind)
}

func (e *StructuralConflictError) Unwrap() error { return ErrStructuralConflict }

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrCeilingExceeded) ||
		errors.Is(err, ErrFloorViolation) ||
		errors.Is(err, ErrStructuralConflict) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
