/*
ledger.go - Append-only item ledger

PURPOSE:
  The ItemLedger is the immutable source of truth for on-hand quantity.
  Every issue, shipment, split rebalance, and manual adjustment is recorded
  here. On-hand for any (item, location, shelf) is always computed by
  summing entries - there is no separate "on hand" field that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. AUDITABLE: Every quantity change names its document and actor
  4. TRACKED DEBITS CARRY AN ENTITY: A debit of a tracked item always
     references the tracked entity it moved; untracked items never do

CORRECTIONS:
  Mistakes are never edited away. A consuming event and its later reversal
  post exact negations against the same item/location/shelf, so both remain
  visible and the net effect is the correction.

EXAMPLE FLOW:
  1. Batch B1 (qty 10) issued to a job:       consumption  -10  (entity B1)
  2. Issue reversed (wrong material):         consumption  +10  (entity B1)
  3. Batch split 10 -> 4 used + 6 remainder:  adjustment   -10  (entity B1)
                                              adjustment    +4  (entity B1)
                                              adjustment    +6  (entity B2)
  Net on-hand effect of the split rows is zero; the per-entity slices now
  reconcile with the two entities' quantities.

SEE ALSO:
  - types.go: LedgerEntry and filter shapes
  - store/sqlite: Production persistence
  - store/memory: In-memory persistence for tests
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER STORE - Persistence interface (append-only)
// =============================================================================

// LedgerStore handles persistence of ledger entries.
// IMPORTANT: LedgerStore is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via offsetting entries.
type LedgerStore interface {
	// Append persists a single entry. This is the ONLY write operation.
	Append(ctx context.Context, e LedgerEntry) error

	// AppendBatch persists multiple entries atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, entries []LedgerEntry) error

	// Entries returns entries matching the filter, in posting order.
	Entries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error)

	// OnHand returns the running sum of deltas for (item, location, shelf).
	OnHand(ctx context.Context, item ItemID, location LocationID, shelf ShelfID) (decimal.Decimal, error)
}

// =============================================================================
// LEDGER - Validating wrapper over a LedgerStore
// =============================================================================

// Ledger validates entries before handing them to the store.
type Ledger struct {
	Store LedgerStore
}

func NewLedger(store LedgerStore) *Ledger {
	return &Ledger{Store: store}
}

func (l *Ledger) Append(ctx context.Context, e LedgerEntry) error {
	if err := ValidateEntry(e); err != nil {
		return err
	}
	return l.Store.Append(ctx, e)
}

func (l *Ledger) AppendBatch(ctx context.Context, entries []LedgerEntry) error {
	for _, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return err
		}
	}
	return l.Store.AppendBatch(ctx, entries)
}

func (l *Ledger) Entries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error) {
	return l.Store.Entries(ctx, f)
}

func (l *Ledger) OnHand(ctx context.Context, item ItemID, location LocationID, shelf ShelfID) (decimal.Decimal, error) {
	return l.Store.OnHand(ctx, item, location, shelf)
}

// NetForEntity sums every delta posted against one tracked entity.
// After any sequence of issue/split/reverse operations this must equal the
// entity's share of on-hand inventory.
func (l *Ledger) NetForEntity(ctx context.Context, trackedEntityID string) (decimal.Decimal, error) {
	entries, err := l.Store.Entries(ctx, EntryFilter{TrackedEntityID: trackedEntityID})
	if err != nil {
		return decimal.Zero, err
	}
	return SumEntries(entries), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ValidateEntry rejects malformed entries before they reach storage.
func ValidateEntry(e LedgerEntry) error {
	if e.ItemID == "" || e.LocationID == "" {
		return ErrInvalidEntry
	}
	if e.Quantity.IsZero() {
		return ErrInvalidEntry
	}
	if e.EntryType == "" || e.Document.ID == "" {
		return ErrInvalidEntry
	}
	return nil
}

// SumEntries returns the net delta of a slice of entries.
func SumEntries(entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Quantity)
	}
	return total
}
