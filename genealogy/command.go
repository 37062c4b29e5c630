/*
command.go - Typed command union for the orchestrator

PURPOSE:
  Each business event that mutates genealogy state is a typed command.
  Commands validate their own payload shape; the orchestrator dispatches
  them through a single Apply entry point and returns the Effects the
  committed transaction produced.

COMMANDS:
  ConsumeCommand               Material issue to a job operation
  UnconsumeCommand             Reversal of a prior issue
  ShipmentPostCommand          Post a shipment (splits + consumes entities)
  BatchOrSerialCompleteCommand Record produced quantity, advance serials
  AdjustmentCommand            Manual signed ledger adjustment

SEE ALSO:
  - orchestrator.go: Apply and the per-command implementations
*/
package genealogy

import (
	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/inventory"
)

// Command is the closed set of orchestrator inputs.
type Command interface {
	// Validate checks payload shape only. State checks (status, quantity
	// availability) happen inside the transaction.
	Validate() error

	isCommand()
}

// ChildQuantity names one tracked entity and the quantity requested
// from it.
type ChildQuantity struct {
	EntityID EntityID
	Quantity decimal.Decimal
}

// =============================================================================
// CONSUME / UNCONSUME
// =============================================================================

// ConsumeCommand issues tracked material to a job operation. Children are
// the entities being consumed; the parent is the unit being built.
type ConsumeCommand struct {
	MaterialID     MaterialID
	ParentEntityID EntityID
	Children       []ChildQuantity
	Actor          string
}

func (c ConsumeCommand) isCommand() {}

func (c ConsumeCommand) Validate() error {
	if c.MaterialID == "" {
		return &ValidationError{Field: "materialId", Message: "required"}
	}
	if c.ParentEntityID == "" {
		return &ValidationError{Field: "parentEntityId", Message: "required"}
	}
	return validateChildren(c.Children)
}

// UnconsumeCommand reverses a prior issue: the same children return to
// Available and the ledger rows are exact negations of the consumption.
type UnconsumeCommand struct {
	MaterialID     MaterialID
	ParentEntityID EntityID
	Children       []ChildQuantity
	Actor          string
}

func (c UnconsumeCommand) isCommand() {}

func (c UnconsumeCommand) Validate() error {
	if c.MaterialID == "" {
		return &ValidationError{Field: "materialId", Message: "required"}
	}
	if c.ParentEntityID == "" {
		return &ValidationError{Field: "parentEntityId", Message: "required"}
	}
	return validateChildren(c.Children)
}

func validateChildren(children []ChildQuantity) error {
	if len(children) == 0 {
		return &ValidationError{Field: "children", Message: "at least one required"}
	}
	seen := make(map[EntityID]bool, len(children))
	for _, ch := range children {
		if ch.EntityID == "" {
			return &ValidationError{Field: "children.entityId", Message: "required"}
		}
		if !ch.Quantity.IsPositive() {
			return &ValidationError{Field: "children.quantity", Message: "must be positive"}
		}
		if seen[ch.EntityID] {
			return &ValidationError{Field: "children.entityId", Message: "duplicate entity " + string(ch.EntityID)}
		}
		seen[ch.EntityID] = true
	}
	return nil
}

// =============================================================================
// SHIPMENT POST
// =============================================================================

type ShipmentPostCommand struct {
	ShipmentID ShipmentID
	Actor      string
}

func (c ShipmentPostCommand) isCommand() {}

func (c ShipmentPostCommand) Validate() error {
	if c.ShipmentID == "" {
		return &ValidationError{Field: "shipmentId", Message: "required"}
	}
	return nil
}

// =============================================================================
// BATCH / SERIAL COMPLETE
// =============================================================================

type BatchOrSerialCompleteCommand struct {
	TrackedEntityID EntityID
	JobOperationID  JobOperationID
	Quantity        decimal.Decimal
	Actor           string
}

func (c BatchOrSerialCompleteCommand) isCommand() {}

func (c BatchOrSerialCompleteCommand) Validate() error {
	if c.TrackedEntityID == "" {
		return &ValidationError{Field: "trackedEntityId", Message: "required"}
	}
	if c.JobOperationID == "" {
		return &ValidationError{Field: "jobOperationId", Message: "required"}
	}
	if !c.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Message: "must be positive"}
	}
	return nil
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

// AdjustmentCommand posts a manual signed ledger delta. TrackedEntityID is
// optional; when present the referenced entity must exist.
type AdjustmentCommand struct {
	ItemID          inventory.ItemID
	LocationID      inventory.LocationID
	ShelfID         inventory.ShelfID
	Quantity        decimal.Decimal
	TrackedEntityID EntityID
	Reason          string
	Actor           string
}

func (c AdjustmentCommand) isCommand() {}

func (c AdjustmentCommand) Validate() error {
	if c.ItemID == "" {
		return &ValidationError{Field: "itemId", Message: "required"}
	}
	if c.LocationID == "" {
		return &ValidationError{Field: "locationId", Message: "required"}
	}
	if c.Quantity.IsZero() {
		return &ValidationError{Field: "quantity", Message: "must be non-zero"}
	}
	return nil
}

// =============================================================================
// EFFECTS - What a committed operation produced
// =============================================================================

// Effects summarizes the writes of one committed operation.
type Effects struct {
	Activities      []*TrackedActivity
	CreatedEntities []EntityID
	UpdatedEntities []EntityID
	LedgerEntries   []inventory.LedgerEntry
}

func (e *Effects) addActivity(a *TrackedActivity) {
	e.Activities = append(e.Activities, a)
}

func (e *Effects) addLedger(entries ...inventory.LedgerEntry) {
	e.LedgerEntries = append(e.LedgerEntries, entries...)
}

func (e *Effects) created(id EntityID) {
	e.CreatedEntities = append(e.CreatedEntities, id)
}

func (e *Effects) updated(id EntityID) {
	for _, existing := range e.UpdatedEntities {
		if existing == id {
			return
		}
	}
	e.UpdatedEntities = append(e.UpdatedEntities, id)
}
