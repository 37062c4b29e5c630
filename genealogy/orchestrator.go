/*
orchestrator.go - Atomic business operations over the genealogy graph

PURPOSE:
  The Orchestrator is the transaction boundary for every genealogy-changing
  business event. For a single event it reads current entity state, invokes
  the split engine as needed, writes the TrackedActivity with its edges,
  updates entity status/quantity, and appends item ledger rows - all inside
  one UnitOfWork transaction.

OPERATIONS:
  Consume                Issue tracked material to a job operation
  Unconsume              Reverse a prior issue (exact ledger negation)
  ShipmentPost           Post a shipment: split, consume, accumulate
  BatchOrSerialComplete  Record production, advance serial successors
  PostAdjustment         Manual signed ledger delta

ALL-OR-NOTHING:
  Any error raised during an operation aborts the whole transaction. There
  is no partial application of a Consume/Split/Unconsume: either every
  ledger row and activity edge is written or none is. State checks run
  before any write, so an already-Consumed entity fails the operation
  without touching the ledger.

CONCURRENCY:
  Operations take no row locks of their own; both store implementations
  serialize WithTx, so two racing Consumes of the same entity cannot
  interleave - the second observes Consumed and is rejected.

SEE ALSO:
  - command.go: Command payloads and validation
  - split.go: Quantity partitioning
  - store.go: UnitOfWork contract
*/
package genealogy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/inventory"
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator executes genealogy operations atomically over a UnitOfWork.
// Now and NewID are swappable for deterministic tests.
type Orchestrator struct {
	UoW   UnitOfWork
	Now   func() time.Time
	NewID func() string
}

func NewOrchestrator(uow UnitOfWork) *Orchestrator {
	return &Orchestrator{
		UoW:   uow,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Apply dispatches a typed command to its operation.
func (o *Orchestrator) Apply(ctx context.Context, cmd Command) (*Effects, error) {
	switch c := cmd.(type) {
	case ConsumeCommand:
		return o.Consume(ctx, c)
	case UnconsumeCommand:
		return o.Unconsume(ctx, c)
	case ShipmentPostCommand:
		return o.ShipmentPost(ctx, c)
	case BatchOrSerialCompleteCommand:
		return o.BatchOrSerialComplete(ctx, c)
	case AdjustmentCommand:
		return o.PostAdjustment(ctx, c)
	default:
		return nil, &ValidationError{Field: "command", Message: fmt.Sprintf("unknown command type %T", cmd)}
	}
}

// =============================================================================
// CONSUME - Material issue to a job operation
// =============================================================================

// Consume validates all child entities are Available, splits any child
// whose full quantity is not being taken, marks each post-split child
// Consumed, records the Consume activity with the children as inputs and
// the parent as output, posts a negative ledger row per child for
// non-Make materials, and increments the material's issued-quantity
// counter by the total requested quantity.
func (o *Orchestrator) Consume(ctx context.Context, cmd ConsumeCommand) (*Effects, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var eff *Effects
	err := o.UoW.WithTx(ctx, func(s Stores) error {
		var err error
		eff, err = o.consume(ctx, s, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

func (o *Orchestrator) consume(ctx context.Context, s Stores, cmd ConsumeCommand) (*Effects, error) {
	material, err := s.Materials().GetMaterial(ctx, cmd.MaterialID)
	if err != nil {
		return nil, err
	}
	parent, err := s.Entities().Get(ctx, cmd.ParentEntityID)
	if err != nil {
		return nil, err
	}

	doc := inventory.DocumentRef{Type: inventory.DocJob, ID: string(material.JobID)}
	postLedger := material.MethodType != MethodMake
	eff := &Effects{}
	ledger := inventory.NewLedger(s.Ledger())

	var inputs []ActivityInput
	total := decimal.Zero

	for _, child := range cmd.Children {
		e, err := s.Entities().Get(ctx, child.EntityID)
		if err != nil {
			return nil, err
		}
		if e.Status != StatusAvailable {
			return nil, &InvalidStateError{Op: "consume", EntityID: e.ID, Status: e.Status, Want: StatusAvailable}
		}
		if child.Quantity.GreaterThan(e.Quantity) {
			return nil, &QuantityMismatchError{EntityID: e.ID, Available: e.Quantity, Requested: child.Quantity}
		}

		shelf := o.resolveMaterialShelf(ctx, s, material, e)

		if child.Quantity.LessThan(e.Quantity) {
			res, err := o.split(ctx, s, splitSpec{
				entity:     e,
				used:       child.Quantity,
				doc:        doc,
				shelf:      shelf,
				postLedger: postLedger,
				actor:      cmd.Actor,
			})
			if err != nil {
				return nil, err
			}
			eff.addActivity(res.Activity)
			eff.created(res.Remainder.ID)
			eff.addLedger(res.LedgerEntries...)
		}

		if err := s.Entities().SetStatus(ctx, e.ID, StatusConsumed); err != nil {
			return nil, err
		}
		eff.updated(e.ID)

		if postLedger {
			entry := o.ledgerEntry(e, child.Quantity.Neg(), inventory.EntryConsumption, doc, shelf, cmd.Actor)
			if err := ledger.Append(ctx, entry); err != nil {
				return nil, err
			}
			eff.addLedger(entry)
		}

		inputs = append(inputs, ActivityInput{EntityID: e.ID, Quantity: child.Quantity})
		total = total.Add(child.Quantity)
	}

	activity := &TrackedActivity{
		ID:     ActivityID(o.NewID()),
		Type:   ActivityConsume,
		Source: doc,
		Attributes: map[string]string{
			"employee":   cmd.Actor,
			"materialId": string(material.ID),
			"quantity":   total.String(),
		},
		Inputs:    inputs,
		Outputs:   []ActivityOutput{{EntityID: parent.ID, Quantity: total}},
		CreatedBy: cmd.Actor,
		CreatedAt: o.Now(),
	}
	if err := s.Activities().Append(ctx, activity); err != nil {
		return nil, err
	}
	eff.addActivity(activity)

	if err := s.Materials().AddIssuedQuantity(ctx, material.ID, total); err != nil {
		return nil, err
	}
	return eff, nil
}

// =============================================================================
// UNCONSUME - Reverse a prior issue
// =============================================================================

// Unconsume requires all children Consumed, sets them back to Available,
// records the Unconsume activity with the parent as input and the children
// as outputs, posts positive ledger rows that exactly negate the
// consumption, and decrements the issued-quantity counter.
func (o *Orchestrator) Unconsume(ctx context.Context, cmd UnconsumeCommand) (*Effects, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var eff *Effects
	err := o.UoW.WithTx(ctx, func(s Stores) error {
		var err error
		eff, err = o.unconsume(ctx, s, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

func (o *Orchestrator) unconsume(ctx context.Context, s Stores, cmd UnconsumeCommand) (*Effects, error) {
	material, err := s.Materials().GetMaterial(ctx, cmd.MaterialID)
	if err != nil {
		return nil, err
	}
	parent, err := s.Entities().Get(ctx, cmd.ParentEntityID)
	if err != nil {
		return nil, err
	}

	doc := inventory.DocumentRef{Type: inventory.DocJob, ID: string(material.JobID)}
	postLedger := material.MethodType != MethodMake
	eff := &Effects{}
	ledger := inventory.NewLedger(s.Ledger())

	var outputs []ActivityOutput
	total := decimal.Zero

	for _, child := range cmd.Children {
		e, err := s.Entities().Get(ctx, child.EntityID)
		if err != nil {
			return nil, err
		}
		if e.Status != StatusConsumed {
			return nil, &InvalidStateError{Op: "unconsume", EntityID: e.ID, Status: e.Status, Want: StatusConsumed}
		}

		if err := s.Entities().SetStatus(ctx, e.ID, StatusAvailable); err != nil {
			return nil, err
		}
		eff.updated(e.ID)

		if postLedger {
			// Same item/location/shelf resolution as the consumption, so
			// the positive row is its exact negation.
			shelf := o.resolveMaterialShelf(ctx, s, material, e)
			entry := o.ledgerEntry(e, child.Quantity, inventory.EntryConsumption, doc, shelf, cmd.Actor)
			if err := ledger.Append(ctx, entry); err != nil {
				return nil, err
			}
			eff.addLedger(entry)
		}

		outputs = append(outputs, ActivityOutput{EntityID: e.ID, Quantity: child.Quantity})
		total = total.Add(child.Quantity)
	}

	activity := &TrackedActivity{
		ID:     ActivityID(o.NewID()),
		Type:   ActivityUnconsume,
		Source: doc,
		Attributes: map[string]string{
			"employee":   cmd.Actor,
			"materialId": string(material.ID),
			"quantity":   total.String(),
		},
		Inputs:    []ActivityInput{{EntityID: parent.ID, Quantity: total}},
		Outputs:   outputs,
		CreatedBy: cmd.Actor,
		CreatedAt: o.Now(),
	}
	if err := s.Activities().Append(ctx, activity); err != nil {
		return nil, err
	}
	eff.addActivity(activity)

	if err := s.Materials().AddIssuedQuantity(ctx, material.ID, total.Neg()); err != nil {
		return nil, err
	}
	return eff, nil
}

// =============================================================================
// SHIPMENT POST
// =============================================================================

// ShipmentPost posts every line of a shipment. Tracked lines split when
// shipping less than the entity's quantity, then mark the post-split
// entity Consumed and post a negative ledger row against it; untracked
// lines post a plain negative row. Order-line and job-level accumulators
// are incremented in place, never re-derived from a snapshot.
func (o *Orchestrator) ShipmentPost(ctx context.Context, cmd ShipmentPostCommand) (*Effects, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var eff *Effects
	err := o.UoW.WithTx(ctx, func(s Stores) error {
		var err error
		eff, err = o.shipmentPost(ctx, s, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

func (o *Orchestrator) shipmentPost(ctx context.Context, s Stores, cmd ShipmentPostCommand) (*Effects, error) {
	shipment, err := s.Shipments().GetShipment(ctx, cmd.ShipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.Status == ShipmentPosted {
		return nil, fmt.Errorf("shipment %s already posted: %w", shipment.ID, ErrInvalidState)
	}
	lines, err := s.Shipments().Lines(ctx, cmd.ShipmentID)
	if err != nil {
		return nil, err
	}

	doc := inventory.DocumentRef{Type: inventory.DocShipment, ID: string(shipment.ID)}
	eff := &Effects{}
	ledger := inventory.NewLedger(s.Ledger())

	var inputs []ActivityInput

	for _, line := range lines {
		shelf := line.ShelfID
		if shelf == "" {
			if resolved, ok, err := s.PickMethods().DefaultShelf(ctx, line.ItemID, line.LocationID); err != nil {
				return nil, err
			} else if ok {
				shelf = resolved
			}
		}

		if line.TrackedEntityID == "" {
			// Untracked item: plain negative row, no entity reference.
			entry := inventory.LedgerEntry{
				ID:          inventory.EntryID(o.NewID()),
				ItemID:      line.ItemID,
				LocationID:  line.LocationID,
				ShelfID:     shelf,
				Quantity:    line.ShippedQuantity.Neg(),
				EntryType:   inventory.EntryShipment,
				Document:    doc,
				CreatedBy:   cmd.Actor,
				PostingDate: o.Now(),
				CreatedAt:   o.Now(),
			}
			if err := ledger.Append(ctx, entry); err != nil {
				return nil, err
			}
			eff.addLedger(entry)
		} else {
			e, err := s.Entities().Get(ctx, line.TrackedEntityID)
			if err != nil {
				return nil, err
			}
			if e.Status != StatusAvailable {
				return nil, &InvalidStateError{Op: "shipment-post", EntityID: e.ID, Status: e.Status, Want: StatusAvailable}
			}
			if line.ShippedQuantity.GreaterThan(e.Quantity) {
				return nil, &QuantityMismatchError{EntityID: e.ID, Available: e.Quantity, Requested: line.ShippedQuantity}
			}

			if line.ShippedQuantity.LessThan(e.Quantity) {
				res, err := o.split(ctx, s, splitSpec{
					entity:     e,
					used:       line.ShippedQuantity,
					doc:        doc,
					shelf:      shelf,
					postLedger: true,
					actor:      cmd.Actor,
				})
				if err != nil {
					return nil, err
				}
				eff.addActivity(res.Activity)
				eff.created(res.Remainder.ID)
				eff.addLedger(res.LedgerEntries...)
			}

			// Tag the shipped entity with its document scope; the split
			// remainder (if any) was copied without these.
			tags := LineageAttributes{ShipmentID: shipment.ID, ShipmentLineID: line.ID}
			if err := s.Entities().MergeAttributes(ctx, e.ID, tags); err != nil {
				return nil, err
			}
			if err := s.Entities().SetStatus(ctx, e.ID, StatusConsumed); err != nil {
				return nil, err
			}
			eff.updated(e.ID)

			entry := o.ledgerEntry(e, line.ShippedQuantity.Neg(), inventory.EntryShipment, doc, shelf, cmd.Actor)
			if err := ledger.Append(ctx, entry); err != nil {
				return nil, err
			}
			eff.addLedger(entry)

			inputs = append(inputs, ActivityInput{EntityID: e.ID, Quantity: line.ShippedQuantity})
		}

		if line.SalesOrderLineID != "" {
			updated, err := s.Shipments().AccumulateOrderLineShipped(ctx, line.SalesOrderLineID, line.ShippedQuantity)
			if err != nil {
				return nil, err
			}
			status := OrderLinePartiallyShipped
			if updated.QuantityShipped.GreaterThanOrEqual(updated.QuantityOrdered) {
				status = OrderLineShipped
			}
			if err := s.Shipments().SetOrderLineStatus(ctx, line.SalesOrderLineID, status); err != nil {
				return nil, err
			}
		}

		if line.JobID != "" {
			// Job-sourced lines with no tracked unit also complete job
			// quantity at posting time.
			completeDelta := decimal.Zero
			if line.TrackedEntityID == "" {
				completeDelta = line.ShippedQuantity
			}
			if err := s.Materials().AddJobQuantities(ctx, line.JobID, line.ShippedQuantity, completeDelta); err != nil {
				return nil, err
			}
		}
	}

	if len(inputs) > 0 {
		activity := &TrackedActivity{
			ID:     ActivityID(o.NewID()),
			Type:   ActivityShipment,
			Source: doc,
			Attributes: map[string]string{
				"employee": cmd.Actor,
			},
			Inputs:    inputs,
			CreatedBy: cmd.Actor,
			CreatedAt: o.Now(),
		}
		if err := s.Activities().Append(ctx, activity); err != nil {
			return nil, err
		}
		eff.addActivity(activity)
	}

	if err := s.Shipments().SetShipmentStatus(ctx, shipment.ID, ShipmentPosted); err != nil {
		return nil, err
	}
	return eff, nil
}

// =============================================================================
// BATCH / SERIAL COMPLETE
// =============================================================================

// BatchOrSerialComplete appends a production quantity record, marks the
// entity Available if not already Consumed, and tags it with the
// operation's completion sequence. For serial tracking it additionally
// creates a Reserved successor carrying forward the lineage while the
// produced count is still below the operation's target quantity.
func (o *Orchestrator) BatchOrSerialComplete(ctx context.Context, cmd BatchOrSerialCompleteCommand) (*Effects, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var eff *Effects
	err := o.UoW.WithTx(ctx, func(s Stores) error {
		var err error
		eff, err = o.batchOrSerialComplete(ctx, s, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

func (o *Orchestrator) batchOrSerialComplete(ctx context.Context, s Stores, cmd BatchOrSerialCompleteCommand) (*Effects, error) {
	e, err := s.Entities().Get(ctx, cmd.TrackedEntityID)
	if err != nil {
		return nil, err
	}
	op, err := s.Materials().GetOperation(ctx, cmd.JobOperationID)
	if err != nil {
		return nil, err
	}

	eff := &Effects{}

	rec, err := s.Materials().RecordProduction(ctx, ProductionRecord{
		JobOperationID: op.ID,
		EntityID:       e.ID,
		Quantity:       cmd.Quantity,
		CreatedBy:      cmd.Actor,
		CreatedAt:      o.Now(),
	})
	if err != nil {
		return nil, err
	}

	if e.Status != StatusConsumed {
		if err := s.Entities().SetStatus(ctx, e.ID, StatusAvailable); err != nil {
			return nil, err
		}
	}
	patch := LineageAttributes{
		OperationSequences: map[JobOperationID]int{op.ID: rec.Sequence},
	}
	if err := s.Entities().MergeAttributes(ctx, e.ID, patch); err != nil {
		return nil, err
	}
	eff.updated(e.ID)

	activity := &TrackedActivity{
		ID:     ActivityID(o.NewID()),
		Type:   ActivityProduce,
		Source: inventory.DocumentRef{Type: inventory.DocJob, ID: string(op.JobID)},
		Attributes: map[string]string{
			"employee":       cmd.Actor,
			"jobOperationId": string(op.ID),
			"quantity":       cmd.Quantity.String(),
		},
		Outputs:   []ActivityOutput{{EntityID: e.ID, Quantity: cmd.Quantity}},
		CreatedBy: cmd.Actor,
		CreatedAt: o.Now(),
	}
	if err := s.Activities().Append(ctx, activity); err != nil {
		return nil, err
	}
	eff.addActivity(activity)

	if e.TrackingType == TrackingSerial {
		count, err := s.Materials().ProductionCount(ctx, op.ID)
		if err != nil {
			return nil, err
		}
		if decimal.NewFromInt(int64(count)).LessThan(op.TargetQuantity) {
			// More serials to produce: stage the next Reserved unit with a
			// fresh copy of the lineage.
			attrs := e.Attributes.StripDocumentScope()
			attrs.SplitEntityID = ""
			attrs.OperationSequences = nil

			successor := &TrackedEntity{
				ID:           EntityID(o.NewID()),
				ItemID:       e.ItemID,
				LocationID:   e.LocationID,
				ShelfID:      e.ShelfID,
				Quantity:     e.Quantity,
				Status:       StatusReserved,
				TrackingType: TrackingSerial,
				Source:       e.Source,
				Attributes:   attrs,
				CreatedAt:    o.Now(),
				UpdatedAt:    o.Now(),
			}
			if err := s.Entities().Create(ctx, successor); err != nil {
				return nil, err
			}
			eff.created(successor.ID)
		}
	}

	return eff, nil
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

// PostAdjustment appends a manual signed ledger delta. When the command
// references a tracked entity, the entity must exist.
func (o *Orchestrator) PostAdjustment(ctx context.Context, cmd AdjustmentCommand) (*Effects, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var eff *Effects
	err := o.UoW.WithTx(ctx, func(s Stores) error {
		if cmd.TrackedEntityID != "" {
			if _, err := s.Entities().Get(ctx, cmd.TrackedEntityID); err != nil {
				return err
			}
		}
		entry := inventory.LedgerEntry{
			ID:              inventory.EntryID(o.NewID()),
			ItemID:          cmd.ItemID,
			LocationID:      cmd.LocationID,
			ShelfID:         cmd.ShelfID,
			Quantity:        cmd.Quantity,
			EntryType:       inventory.EntryAdjustment,
			Document:        inventory.DocumentRef{Type: inventory.DocAdjustment, ID: o.NewID(), ReadableID: cmd.Reason},
			TrackedEntityID: string(cmd.TrackedEntityID),
			CreatedBy:       cmd.Actor,
			PostingDate:     o.Now(),
			CreatedAt:       o.Now(),
		}
		ledger := inventory.NewLedger(s.Ledger())
		if err := ledger.Append(ctx, entry); err != nil {
			return err
		}
		eff = &Effects{LedgerEntries: []inventory.LedgerEntry{entry}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return eff, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveMaterialShelf picks the shelf for a material's ledger rows:
// pick-method default when the line asks for it, the line's own shelf
// otherwise, the entity's shelf as last resort.
func (o *Orchestrator) resolveMaterialShelf(ctx context.Context, s Stores, m *JobMaterial, e *TrackedEntity) inventory.ShelfID {
	if m.DefaultShelf {
		if shelf, ok, err := s.PickMethods().DefaultShelf(ctx, m.ItemID, e.LocationID); err == nil && ok {
			return shelf
		}
	}
	if m.ShelfID != "" {
		return m.ShelfID
	}
	return e.ShelfID
}
