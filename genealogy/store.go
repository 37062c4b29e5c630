/*
store.go - Persistence interfaces and the UnitOfWork transaction scope

PURPOSE:
  Defines the interface between the genealogy engine and the database.
  Different implementations can use SQLite or in-memory storage; the
  orchestrator only ever talks to these interfaces.

KEY INTERFACES:
  EntityStore:     Tracked-entity current state (create, status, quantity)
  ActivityStore:   Append-only genealogy audit trail with edges
  MaterialStore:   Job materials, operations, production records, counters
  ShipmentStore:   Shipments, lines, sales-order-line accumulators
  PickMethodStore: (item, location) -> default shelf resolution
  Stores:          Bundle handed to code running inside a transaction
  UnitOfWork:      Stores + WithTx for atomic multi-store operations

TRANSACTION CONTRACT:
  Every orchestrated operation runs inside a single WithTx call: all reads
  of entity/ledger state and all writes happen within that one transaction.
  If fn returns an error, every write is rolled back; a crash mid-operation
  leaves no partial genealogy or ledger state. The stores expose no
  implicit retries.

ACTIVITY IMMUTABILITY:
  ActivityStore has Append and queries only. No update, no delete. The
  audit trail is never edited.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (real BEGIN/COMMIT/ROLLBACK)
  - store/memory: In-memory with snapshot rollback, for tests and dev

SEE ALSO:
  - orchestrator.go: The only caller of WithTx
  - inventory/ledger.go: LedgerStore, bundled here via Stores.Ledger()
*/
package genealogy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/inventory"
)

// =============================================================================
// ENTITY STORE
// =============================================================================

// EntityStore holds tracked-entity current state. All mutations occur
// inside the caller's transaction; the store exposes no implicit retries.
type EntityStore interface {
	// Create persists a new entity.
	Create(ctx context.Context, e *TrackedEntity) error

	// Get returns an entity by id, or a NotFoundError.
	Get(ctx context.Context, id EntityID) (*TrackedEntity, error)

	// SetStatus transitions an entity's status.
	SetStatus(ctx context.Context, id EntityID, status EntityStatus) error

	// SetQuantity replaces an entity's remaining quantity.
	SetQuantity(ctx context.Context, id EntityID, quantity decimal.Decimal) error

	// MergeAttributes applies an attribute patch (LineageAttributes.Merge
	// semantics, including the set-once split pointer).
	MergeAttributes(ctx context.Context, id EntityID, patch LineageAttributes) error

	// FindByParentMakeMethod returns entities whose lineage references the
	// given make method. Read-side query for genealogy screens.
	FindByParentMakeMethod(ctx context.Context, makeMethodID string) ([]*TrackedEntity, error)
}

// =============================================================================
// ACTIVITY STORE - Append-only audit trail
// =============================================================================

// ActivityStore persists genealogy activities and their edges.
// Append-only: activities are immutable once written.
type ActivityStore interface {
	// Append persists an activity together with its input/output edges.
	Append(ctx context.Context, a *TrackedActivity) error

	// ForDocument returns all activities triggered by a source document,
	// oldest first, edges included.
	ForDocument(ctx context.Context, documentID string) ([]*TrackedActivity, error)

	// ForEntity returns all activities where the entity appears as an
	// input or output, oldest first.
	ForEntity(ctx context.Context, id EntityID) ([]*TrackedActivity, error)
}

// =============================================================================
// MATERIAL STORE - Job-side documents and counters
// =============================================================================

type MaterialStore interface {
	GetMaterial(ctx context.Context, id MaterialID) (*JobMaterial, error)

	// AddIssuedQuantity increments (or with a negative delta, decrements)
	// a material's issued-quantity counter in place. Accumulates; never
	// re-derives from a snapshot.
	AddIssuedQuantity(ctx context.Context, id MaterialID, delta decimal.Decimal) error

	GetOperation(ctx context.Context, id JobOperationID) (*JobOperation, error)

	// RecordProduction appends a production quantity record and returns it
	// with its sequence number assigned (1-based per operation).
	RecordProduction(ctx context.Context, rec ProductionRecord) (*ProductionRecord, error)

	// ProductionCount returns how many production records exist for an
	// operation.
	ProductionCount(ctx context.Context, id JobOperationID) (int, error)

	// AddJobQuantities increments a job's shipped/complete accumulators.
	AddJobQuantities(ctx context.Context, id JobID, shippedDelta, completeDelta decimal.Decimal) error

	GetJob(ctx context.Context, id JobID) (*Job, error)
}

// =============================================================================
// SHIPMENT STORE
// =============================================================================

type ShipmentStore interface {
	GetShipment(ctx context.Context, id ShipmentID) (*Shipment, error)

	// Lines returns a shipment's lines in line order.
	Lines(ctx context.Context, id ShipmentID) ([]*ShipmentLine, error)

	SetShipmentStatus(ctx context.Context, id ShipmentID, status ShipmentStatus) error

	GetOrderLine(ctx context.Context, id SalesOrderLineID) (*SalesOrderLine, error)

	// AccumulateOrderLineShipped increments the order line's shipped
	// quantity and returns the updated line so the caller can derive its
	// status from fresh totals.
	AccumulateOrderLineShipped(ctx context.Context, id SalesOrderLineID, delta decimal.Decimal) (*SalesOrderLine, error)

	SetOrderLineStatus(ctx context.Context, id SalesOrderLineID, status OrderLineStatus) error
}

// =============================================================================
// PICK METHOD STORE - Shelf resolution
// =============================================================================

type PickMethodStore interface {
	// DefaultShelf resolves the default shelf for (item, location).
	// ok is false when no pick method is configured.
	DefaultShelf(ctx context.Context, item inventory.ItemID, location inventory.LocationID) (inventory.ShelfID, bool, error)
}

// =============================================================================
// STORES BUNDLE + UNIT OF WORK
// =============================================================================

// Stores bundles every store the orchestrator touches. Inside WithTx, all
// of them are backed by the same underlying transaction.
type Stores interface {
	Entities() EntityStore
	Activities() ActivityStore
	Ledger() inventory.LedgerStore
	Materials() MaterialStore
	Shipments() ShipmentStore
	PickMethods() PickMethodStore
}

// UnitOfWork is the explicit transaction scope every orchestrated
// operation runs in.
type UnitOfWork interface {
	Stores

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Stores) error) error
}
