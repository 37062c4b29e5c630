/*
errors.go - Ledger error types

PURPOSE:
  Sentinel errors for the item ledger. Domain packages wrap these with
  additional context; callers test with errors.Is().

SEE ALSO:
  - ledger.go: Uses these errors
  - genealogy/errors.go: Domain-level error kinds built on the same pattern
*/
package inventory

import "errors"

var (
	// ErrInvalidEntry is returned when a ledger entry is malformed:
	// missing item or location, or a zero quantity delta.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrAppendFailed is returned when an entry cannot be persisted.
	ErrAppendFailed = errors.New("ledger append failed")
)
