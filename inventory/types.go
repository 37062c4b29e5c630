/*
Package inventory provides the item ledger core.

PURPOSE:
  This package contains the shared inventory primitives: quantities,
  identifiers, document references, and the append-only ItemLedger that is
  the sole source of truth for quantity-on-hand. Whether a delta comes from
  a material issue, a shipment, a split, or a manual adjustment, it is
  recorded here as an immutable signed row.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerEntry: An immutable signed quantity delta for (item, location, shelf)
  - EntryType / DocumentType: Classification of what caused the delta
  - DocumentRef: Pointer to the business document behind an entry
  - Item/Location/Shelf IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only offset
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing item/location IDs
  4. Auditability: Every entry names its document, actor, and posting date

USAGE:
  entry := inventory.LedgerEntry{
      ItemID:     "itm-widget",
      LocationID: "loc-main",
      ShelfID:    "shelf-A1",
      Quantity:   decimal.NewFromInt(-4),
      EntryType:  inventory.EntryConsumption,
      Document:   inventory.DocumentRef{Type: inventory.DocJob, ID: "job-9"},
  }

SEE ALSO:
  - ledger.go: LedgerStore interface and on-hand calculation
  - errors.go: Ledger error types
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type LocationID string
type ShelfID string
type EntryID string

// =============================================================================
// DOCUMENT REFERENCE - Which business document caused a change
// =============================================================================

type DocumentType string

const (
	DocJob           DocumentType = "job"
	DocPurchaseOrder DocumentType = "purchase-order"
	DocSalesOrder    DocumentType = "sales-order"
	DocShipment      DocumentType = "shipment"
	DocAdjustment    DocumentType = "adjustment"
)

// DocumentRef points at the originating business document.
// ReadableID is the human-facing number (e.g. "JOB-000412") and is carried
// for audit display only; ID is the stable key.
type DocumentRef struct {
	Type       DocumentType
	ID         string
	ReadableID string
}

// =============================================================================
// LEDGER ENTRY - Atomic signed change to on-hand quantity
// =============================================================================

type EntryType string

const (
	EntryAdjustment  EntryType = "adjustment"  // Manual correction or split rebalance
	EntryConsumption EntryType = "consumption" // Material issued to a job (or issue reversed)
	EntryProduction  EntryType = "production"  // Output received from a job or PO
	EntryShipment    EntryType = "shipment"    // Goods shipped out
)

// LedgerEntry is one immutable row of the item ledger.
//
// TrackedEntityID is set when the delta moves quantity belonging to an
// individually tracked unit (batch or serial). Untracked items never carry
// one. This is what makes per-entity ledger slices reconcilable.
type LedgerEntry struct {
	ID         EntryID
	ItemID     ItemID
	LocationID LocationID
	ShelfID    ShelfID

	// Signed delta. Negative removes inventory, positive adds it.
	Quantity decimal.Decimal

	EntryType EntryType
	Document  DocumentRef

	// Empty for untracked items.
	TrackedEntityID string

	CreatedBy   string
	PostingDate time.Time
	CreatedAt   time.Time
}

// =============================================================================
// ENTRY FILTER - Read-side query shape
// =============================================================================

// EntryFilter narrows ledger reads. Zero-valued fields match everything.
type EntryFilter struct {
	ItemID          ItemID
	LocationID      LocationID
	ShelfID         ShelfID
	TrackedEntityID string
	DocumentID      string
}

// Matches reports whether an entry satisfies the filter.
func (f EntryFilter) Matches(e LedgerEntry) bool {
	if f.ItemID != "" && e.ItemID != f.ItemID {
		return false
	}
	if f.LocationID != "" && e.LocationID != f.LocationID {
		return false
	}
	if f.ShelfID != "" && e.ShelfID != f.ShelfID {
		return false
	}
	if f.TrackedEntityID != "" && e.TrackedEntityID != f.TrackedEntityID {
		return false
	}
	if f.DocumentID != "" && e.Document.ID != f.DocumentID {
		return false
	}
	return true
}

// MustParseQuantity parses a decimal string, returning zero on failure.
// Intended for scanning values this package wrote itself.
func MustParseQuantity(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
