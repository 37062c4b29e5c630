/*
errors.go - Centralized error types for the genealogy engine

PURPOSE:
  All error kinds in one place. Sentinels support errors.Is(); the
  structured types carry enough context for a caller to explain exactly
  which entity, status, or quantity was the problem, and unwrap to the
  matching sentinel.

ERROR CATEGORIES:
  1. Not-found errors  - Referenced entity/material/job/shipment missing
  2. State errors      - Entity not in the required status for a transition
  3. Quantity errors   - Requested quantity cannot be satisfied
  4. Validation errors - Malformed command payload

PROPAGATION:
  Orchestrated operations are all-or-nothing: any of these raised inside
  the transaction aborts it, leaving ledger and entity state unchanged.
  Nothing here is retried by the engine.

SEE ALSO:
  - orchestrator.go: Raises these before performing any writes
  - api: Maps these onto HTTP status codes
*/
package genealogy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the base of every missing-reference failure.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an entity is not in the required
	// status for the requested transition, e.g. consuming an already
	// consumed entity.
	ErrInvalidState = errors.New("invalid entity state")

	// ErrQuantityMismatch is returned when a requested quantity exceeds the
	// entity quantity and cannot be satisfied even after a split.
	ErrQuantityMismatch = errors.New("quantity mismatch")

	// ErrValidation is returned for malformed command payloads.
	ErrValidation = errors.New("invalid command")

	// ErrSplitPointerSet is returned when an operation would overwrite an
	// entity's split-successor pointer. The pointer is permanent.
	ErrSplitPointerSet = errors.New("split successor pointer already set")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError reports a missing reference.
type NotFoundError struct {
	Kind string // "entity", "material", "operation", "shipment", "order line", "job"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError reports a disallowed status transition.
type InvalidStateError struct {
	EntityID EntityID
	Status   EntityStatus
	Want     EntityStatus
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: entity %s is %s, want %s", e.Op, e.EntityID, e.Status, e.Want)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// QuantityMismatchError reports an unsatisfiable quantity request.
type QuantityMismatchError struct {
	EntityID  EntityID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *QuantityMismatchError) Error() string {
	return fmt.Sprintf("entity %s: requested %s exceeds available %s",
		e.EntityID, e.Requested, e.Available)
}

func (e *QuantityMismatchError) Unwrap() error { return ErrQuantityMismatch }

// ValidationError reports a malformed command payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine or storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrQuantityMismatch) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSplitPointerSet)
}
