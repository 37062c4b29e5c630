/*
Package genealogy provides the tracked-entity genealogy engine.

PURPOSE:
  Maintains a consistent lineage graph of individually tracked inventory
  units - batches and serialized items - as they are produced, split,
  consumed, shipped, and reversed. Every genealogy-changing operation is
  recorded as an immutable TrackedActivity with input/output edges, and
  every quantity move is mirrored into the item ledger, inside one
  transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - TrackedEntity: A batch or serial unit with quantity, status, lineage
  - EntityStatus: Reserved -> Available -> Consumed (-> Available again)
  - LineageAttributes: Typed lineage side-channel (parent job, split pointer)
  - TrackedActivity: Immutable audit record with input/output edges
  - JobMaterial / Shipment / SalesOrderLine: Collaborator-supplied documents

STATE MACHINE:
  Reserved --(complete)--> Available --(consume)--> Consumed
  Consumed --(unconsume)--> Available
  Available --(split)--> Available(used) + Available(remainder)

  A split never visits Consumed on its own; the consuming operation that
  requested it marks the used fragment afterwards.

SEE ALSO:
  - store.go: Store interfaces and the UnitOfWork transaction scope
  - split.go: Quantity partitioning algorithm
  - orchestrator.go: The atomic business operations
*/
package genealogy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/inventory"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type ActivityID string
type MaterialID string
type JobID string
type JobOperationID string
type ShipmentID string
type ShipmentLineID string
type SalesOrderLineID string

// =============================================================================
// TRACKED ENTITY - Current state of one batch or serial unit
// =============================================================================

type EntityStatus string

const (
	StatusReserved  EntityStatus = "reserved"  // Allocated but not yet produced/received
	StatusAvailable EntityStatus = "available" // On hand, free to consume or ship
	StatusConsumed  EntityStatus = "consumed"  // Fully used by a downstream operation
)

type TrackingType string

const (
	TrackingBatch  TrackingType = "batch"
	TrackingSerial TrackingType = "serial"
)

// TrackedEntity is the current-state record of one individually tracked
// unit. Quantity is the unit's currently remaining quantity; the ledger
// holds the history of how it got there.
type TrackedEntity struct {
	ID           EntityID
	ItemID       inventory.ItemID
	LocationID   inventory.LocationID
	ShelfID      inventory.ShelfID
	Quantity     decimal.Decimal
	Status       EntityStatus
	TrackingType TrackingType

	// The document (job, purchase order, ...) that originated this unit.
	Source inventory.DocumentRef

	Attributes LineageAttributes

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// LINEAGE ATTRIBUTES - Typed lineage side-channel
// =============================================================================

// LineageAttributes replaces the open string-keyed attribute bag with a
// closed set of known keys plus an extension slot. The known keys are the
// ones the engine itself reads and writes; Extra carries anything the
// surrounding application wants to tag along.
type LineageAttributes struct {
	// Backward pointers into the producing job structure.
	ParentJobID        JobID
	ParentMakeMethodID string

	// Forward pointer to the successor created by a split.
	// Set exactly once; never overwritten (permanent lineage chain link).
	SplitEntityID EntityID

	// Document-scoped tags. Stripped from a split remainder, since the
	// remainder no longer belongs to that document.
	ShipmentID     ShipmentID
	ShipmentLineID ShipmentLineID

	// Per-operation completion counters, keyed by job operation.
	OperationSequences map[JobOperationID]int

	// Extension slot for forward compatibility.
	Extra map[string]string
}

// Clone returns a deep copy.
func (a LineageAttributes) Clone() LineageAttributes {
	out := a
	if a.OperationSequences != nil {
		out.OperationSequences = make(map[JobOperationID]int, len(a.OperationSequences))
		for k, v := range a.OperationSequences {
			out.OperationSequences[k] = v
		}
	}
	if a.Extra != nil {
		out.Extra = make(map[string]string, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// StripDocumentScope clears the document-scoped tags. Used when a split
// remainder inherits its ancestor's lineage.
func (a LineageAttributes) StripDocumentScope() LineageAttributes {
	out := a.Clone()
	out.ShipmentID = ""
	out.ShipmentLineID = ""
	return out
}

// Merge applies patch on top of a and returns the result. Non-zero patch
// fields win, maps are merged key-wise, and SplitEntityID is set-once:
// overwriting an already-set pointer with a different value fails.
func (a LineageAttributes) Merge(patch LineageAttributes) (LineageAttributes, error) {
	out := a.Clone()
	if patch.ParentJobID != "" {
		out.ParentJobID = patch.ParentJobID
	}
	if patch.ParentMakeMethodID != "" {
		out.ParentMakeMethodID = patch.ParentMakeMethodID
	}
	if patch.SplitEntityID != "" {
		if out.SplitEntityID != "" && out.SplitEntityID != patch.SplitEntityID {
			return LineageAttributes{}, ErrSplitPointerSet
		}
		out.SplitEntityID = patch.SplitEntityID
	}
	if patch.ShipmentID != "" {
		out.ShipmentID = patch.ShipmentID
	}
	if patch.ShipmentLineID != "" {
		out.ShipmentLineID = patch.ShipmentLineID
	}
	for k, v := range patch.OperationSequences {
		if out.OperationSequences == nil {
			out.OperationSequences = make(map[JobOperationID]int)
		}
		out.OperationSequences[k] = v
	}
	for k, v := range patch.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[k] = v
	}
	return out, nil
}

// =============================================================================
// TRACKED ACTIVITY - Immutable genealogy audit record
// =============================================================================

type ActivityType string

const (
	ActivityProduce   ActivityType = "produce"
	ActivityConsume   ActivityType = "consume"
	ActivityUnconsume ActivityType = "unconsume"
	ActivitySplit     ActivityType = "split"
	ActivityShipment  ActivityType = "shipment"
)

// ActivityInput is an entity quantity consumed by an activity.
type ActivityInput struct {
	ActivityID ActivityID
	EntityID   EntityID
	Quantity   decimal.Decimal
}

// ActivityOutput is an entity quantity produced or retained by an activity.
type ActivityOutput struct {
	ActivityID ActivityID
	EntityID   EntityID
	Quantity   decimal.Decimal
}

// TrackedActivity is the audit trail record of one genealogy-changing
// operation. Immutable once written - it is never edited, and the engine
// exposes no way to do so.
type TrackedActivity struct {
	ID   ActivityID
	Type ActivityType

	// The business document that triggered the activity.
	Source inventory.DocumentRef

	// Operation context: employee, quantities involved.
	Attributes map[string]string

	Inputs  []ActivityInput
	Outputs []ActivityOutput

	CreatedBy string
	CreatedAt time.Time
}

// =============================================================================
// COLLABORATOR DOCUMENTS - Inputs supplied by excluded subsystems
// =============================================================================

type MethodType string

const (
	MethodMake MethodType = "make" // Produced by a sub-job; no ledger posting on issue
	MethodBuy  MethodType = "buy"
	MethodPick MethodType = "pick"
)

// JobMaterial is a line item representing a quantity of an item required,
// and over time issued, to a manufacturing job operation.
type JobMaterial struct {
	ID              MaterialID
	ItemID          inventory.ItemID
	JobID           JobID
	MethodType      MethodType
	QuantityToIssue decimal.Decimal
	QuantityIssued  decimal.Decimal
	ShelfID         inventory.ShelfID
	DefaultShelf    bool // Resolve shelf via pick method instead of ShelfID
}

// JobOperation is the routing step materials are issued to and serials are
// completed against.
type JobOperation struct {
	ID             JobOperationID
	JobID          JobID
	TargetQuantity decimal.Decimal
}

// ProductionRecord is one appended production quantity for an operation.
type ProductionRecord struct {
	ID             string
	JobOperationID JobOperationID
	EntityID       EntityID
	Quantity       decimal.Decimal
	Sequence       int
	CreatedBy      string
	CreatedAt      time.Time
}

// Job carries the cross-shipment accumulators reconciled at posting time.
type Job struct {
	ID               JobID
	QuantityShipped  decimal.Decimal
	QuantityComplete decimal.Decimal
}

type ShipmentStatus string

const (
	ShipmentDraft   ShipmentStatus = "draft"
	ShipmentPending ShipmentStatus = "pending"
	ShipmentPosted  ShipmentStatus = "posted"
)

type Shipment struct {
	ID       ShipmentID
	Status   ShipmentStatus
	PostedAt *time.Time
}

// ShipmentLine is one line of a shipment. TrackedEntityID binds the line to
// the tracked unit being shipped; untracked lines leave it empty.
type ShipmentLine struct {
	ID              ShipmentLineID
	ShipmentID      ShipmentID
	ItemID          inventory.ItemID
	ShippedQuantity decimal.Decimal
	LocationID      inventory.LocationID
	ShelfID         inventory.ShelfID

	RequiresBatchTracking  bool
	RequiresSerialTracking bool

	TrackedEntityID  EntityID         // empty for untracked items
	SalesOrderLineID SalesOrderLineID // originating order line, if any
	JobID            JobID            // set when the line is sourced from a job
}

type OrderLineStatus string

const (
	OrderLineOpen             OrderLineStatus = "open"
	OrderLinePartiallyShipped OrderLineStatus = "partially-shipped"
	OrderLineShipped          OrderLineStatus = "shipped"
)

// SalesOrderLine carries the shipped-quantity accumulator updated at
// shipment posting.
type SalesOrderLine struct {
	ID              SalesOrderLineID
	ItemID          inventory.ItemID
	QuantityOrdered decimal.Decimal
	QuantityShipped decimal.Decimal
	Status          OrderLineStatus
}
