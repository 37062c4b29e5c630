package genealogy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
)

// =============================================================================
// SPLIT CONSERVATION TESTS
// =============================================================================

func TestSplit_ConservesQuantity(t *testing.T) {
	// GIVEN: A 20-unit batch
	// WHEN: 8 units are consumed (forcing a split)
	// THEN: Post-split quantities sum to 20 and the three rebalance rows
	//       sum to zero

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "8")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("8")}},
		Actor:          "casey",
	})
	require.NoError(t, err)

	original := getEntity(t, st, "child-1")
	remainder := getEntity(t, st, original.Attributes.SplitEntityID)
	assert.True(t, original.Quantity.Add(remainder.Quantity).Equal(dec("20")))

	// The adjustment rows from the split alone net to zero
	entries := allEntries(t, st)
	var rebalance []inventory.LedgerEntry
	for _, e := range entries {
		if e.EntryType == inventory.EntryAdjustment {
			rebalance = append(rebalance, e)
		}
	}
	require.Len(t, rebalance, 3)
	assert.True(t, inventory.SumEntries(rebalance).IsZero())
}

func TestSplit_RemainderDropsDocumentScope(t *testing.T) {
	// GIVEN: A batch carrying job lineage plus shipment tags
	// WHEN: It splits
	// THEN: Remainder keeps durable lineage, loses shipment scope, and
	//       carries no split pointer of its own

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "8")
	require.NoError(t, st.Entities().Create(ctx, &genealogy.TrackedEntity{
		ID:           "child-1",
		ItemID:       "STEEL",
		LocationID:   "plant-1",
		ShelfID:      "RAW",
		Quantity:     dec("20"),
		Status:       genealogy.StatusAvailable,
		TrackingType: genealogy.TrackingBatch,
		Attributes: genealogy.LineageAttributes{
			ParentJobID:        "job-1",
			ParentMakeMethodID: "mm-9",
			ShipmentID:         "ship-old",
			ShipmentLineID:     "line-old",
		},
	}))
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("8")}},
		Actor:          "casey",
	})
	require.NoError(t, err)

	original := getEntity(t, st, "child-1")
	remainder := getEntity(t, st, original.Attributes.SplitEntityID)

	assert.Equal(t, genealogy.JobID("job-1"), remainder.Attributes.ParentJobID)
	assert.Equal(t, "mm-9", remainder.Attributes.ParentMakeMethodID)
	assert.Empty(t, remainder.Attributes.ShipmentID)
	assert.Empty(t, remainder.Attributes.ShipmentLineID)
	assert.Empty(t, remainder.Attributes.SplitEntityID)
}

func TestSplit_RecordsActivityWithBothOutputs(t *testing.T) {
	// GIVEN: A 20-unit batch splitting 8/12
	// WHEN: The split activity is recorded
	// THEN: One input at 20, two outputs at 8 and 12

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "8")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	eff, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("8")}},
		Actor:          "casey",
	})
	require.NoError(t, err)

	var split *genealogy.TrackedActivity
	for _, a := range eff.Activities {
		if a.Type == genealogy.ActivitySplit {
			split = a
		}
	}
	require.NotNil(t, split)

	require.Len(t, split.Inputs, 1)
	assert.True(t, split.Inputs[0].Quantity.Equal(dec("20")))
	require.Len(t, split.Outputs, 2)
	assert.True(t, split.Outputs[0].Quantity.Equal(dec("8")))
	assert.True(t, split.Outputs[1].Quantity.Equal(dec("12")))
	assert.Equal(t, "20", split.Attributes["originalQuantity"])
	assert.Equal(t, "8", split.Attributes["usedQuantity"])
	assert.Equal(t, "12", split.Attributes["remainderQuantity"])
}

// =============================================================================
// SET-ONCE POINTER TESTS
// =============================================================================

func TestSplitPointer_SetOnce(t *testing.T) {
	// GIVEN: An entity whose split pointer is already set
	// WHEN: A merge tries to point it somewhere else
	// THEN: ErrSplitPointerSet; re-asserting the same value is fine

	_, st := newTestOrchestrator()
	ctx := context.Background()

	putBatch(t, st, "e-1", "STEEL", "10", genealogy.StatusAvailable)
	require.NoError(t, st.Entities().MergeAttributes(ctx, "e-1",
		genealogy.LineageAttributes{SplitEntityID: "e-2"}))

	err := st.Entities().MergeAttributes(ctx, "e-1",
		genealogy.LineageAttributes{SplitEntityID: "e-3"})
	assert.ErrorIs(t, err, genealogy.ErrSplitPointerSet)

	// Idempotent re-set of the same pointer is allowed
	err = st.Entities().MergeAttributes(ctx, "e-1",
		genealogy.LineageAttributes{SplitEntityID: "e-2"})
	assert.NoError(t, err)

	assert.Equal(t, genealogy.EntityID("e-2"), getEntity(t, st, "e-1").Attributes.SplitEntityID)
}
