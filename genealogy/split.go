/*
split.go - Quantity partitioning for tracked entities

PURPOSE:
  When a consuming operation requests less than an entity's full quantity,
  the entity is partitioned into a "used" portion and a "remainder"
  portion. The original keeps the used quantity and gains a permanent
  forward pointer to the remainder; the remainder becomes its own entity
  carrying the original's lineage minus document-scoped tags.

CONSERVATION:
  For every split of quantity Q into used u and remainder Q-u:
    - the two entities' quantities sum to Q
    - the three posted ledger deltas (-Q, +u, +Q-u) sum to zero
  Inventory never appears or disappears; the ledger's per-entity slices
  become reconcilable with the post-split entities.

LEDGER POSTING:
  The three rebalance rows are posted for every context except Make-method
  material lines, whose inventory lives in the producing sub-job rather
  than the ledger.

SEE ALSO:
  - orchestrator.go: Decides when a split is required
  - types.go: LineageAttributes.StripDocumentScope, Merge set-once rule
*/
package genealogy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/inventory"
)

// splitSpec carries everything the split needs from the surrounding
// operation. The caller has already verified 0 < used < entity.Quantity.
type splitSpec struct {
	entity     *TrackedEntity
	used       decimal.Decimal
	doc        inventory.DocumentRef
	shelf      inventory.ShelfID
	postLedger bool
	actor      string
}

// SplitResult reports the two post-split entities and the audit rows the
// split produced.
type SplitResult struct {
	Activity      *TrackedActivity
	Original      *TrackedEntity
	Remainder     *TrackedEntity
	LedgerEntries []inventory.LedgerEntry
}

// split partitions spec.entity inside the caller's transaction.
// spec.entity is mutated in place to its post-split state.
func (o *Orchestrator) split(ctx context.Context, s Stores, spec splitSpec) (*SplitResult, error) {
	e := spec.entity
	preQty := e.Quantity
	remainderQty := preQty.Sub(spec.used)

	// Remainder inherits lineage minus document-scoped tags. It starts a
	// fresh chain link, so it carries no split pointer of its own.
	remAttrs := e.Attributes.StripDocumentScope()
	remAttrs.SplitEntityID = ""

	remainder := &TrackedEntity{
		ID:           EntityID(o.NewID()),
		ItemID:       e.ItemID,
		LocationID:   e.LocationID,
		ShelfID:      e.ShelfID,
		Quantity:     remainderQty,
		Status:       e.Status,
		TrackingType: e.TrackingType,
		Source:       e.Source,
		Attributes:   remAttrs,
		CreatedAt:    o.Now(),
		UpdatedAt:    o.Now(),
	}
	if err := s.Entities().Create(ctx, remainder); err != nil {
		return nil, err
	}

	if err := s.Entities().SetQuantity(ctx, e.ID, spec.used); err != nil {
		return nil, err
	}
	pointer := LineageAttributes{SplitEntityID: remainder.ID}
	if err := s.Entities().MergeAttributes(ctx, e.ID, pointer); err != nil {
		return nil, err
	}

	activity := &TrackedActivity{
		ID:     ActivityID(o.NewID()),
		Type:   ActivitySplit,
		Source: spec.doc,
		Attributes: map[string]string{
			"employee":          spec.actor,
			"originalQuantity":  preQty.String(),
			"usedQuantity":      spec.used.String(),
			"remainderQuantity": remainderQty.String(),
		},
		Inputs: []ActivityInput{
			{EntityID: e.ID, Quantity: preQty},
		},
		Outputs: []ActivityOutput{
			{EntityID: e.ID, Quantity: spec.used},
			{EntityID: remainder.ID, Quantity: remainderQty},
		},
		CreatedBy: spec.actor,
		CreatedAt: o.Now(),
	}
	if err := s.Activities().Append(ctx, activity); err != nil {
		return nil, err
	}

	result := &SplitResult{
		Activity:  activity,
		Original:  e,
		Remainder: remainder,
	}

	if spec.postLedger {
		entries := []inventory.LedgerEntry{
			o.ledgerEntry(e, preQty.Neg(), inventory.EntryAdjustment, spec.doc, spec.shelf, spec.actor),
			o.ledgerEntry(e, spec.used, inventory.EntryAdjustment, spec.doc, spec.shelf, spec.actor),
			o.ledgerEntry(remainder, remainderQty, inventory.EntryAdjustment, spec.doc, spec.shelf, spec.actor),
		}
		ledger := inventory.NewLedger(s.Ledger())
		if err := ledger.AppendBatch(ctx, entries); err != nil {
			return nil, fmt.Errorf("split rebalance: %w", err)
		}
		result.LedgerEntries = entries
	}

	// Reflect the committed writes on the in-memory copy the caller holds.
	e.Quantity = spec.used
	merged, err := e.Attributes.Merge(pointer)
	if err != nil {
		return nil, err
	}
	e.Attributes = merged
	e.UpdatedAt = o.Now()

	return result, nil
}

// ledgerEntry builds one ledger row against a tracked entity.
func (o *Orchestrator) ledgerEntry(e *TrackedEntity, delta decimal.Decimal, entryType inventory.EntryType, doc inventory.DocumentRef, shelf inventory.ShelfID, actor string) inventory.LedgerEntry {
	if shelf == "" {
		shelf = e.ShelfID
	}
	return inventory.LedgerEntry{
		ID:              inventory.EntryID(o.NewID()),
		ItemID:          e.ItemID,
		LocationID:      e.LocationID,
		ShelfID:         shelf,
		Quantity:        delta,
		EntryType:       entryType,
		Document:        doc,
		TrackedEntityID: string(e.ID),
		CreatedBy:       actor,
		PostingDate:     o.Now(),
		CreatedAt:       o.Now(),
	}
}
