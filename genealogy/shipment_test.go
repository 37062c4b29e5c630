package genealogy_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
	"github.com/forge/inventory-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func putPendingShipment(st *memory.Store, lines ...genealogy.ShipmentLine) {
	st.PutShipment(genealogy.Shipment{ID: "ship-1", Status: genealogy.ShipmentPending}, lines...)
}

// =============================================================================
// SHIPMENT POST TESTS
// =============================================================================

func TestShipmentPost_UntrackedLine_PostsPlainRow(t *testing.T) {
	// GIVEN: A pending shipment with one untracked line
	// WHEN: Posting
	// THEN: One negative shipment row with no entity reference, shipment
	//       Posted, no activity recorded

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPendingShipment(st, genealogy.ShipmentLine{
		ID:              "line-1",
		ShipmentID:      "ship-1",
		ItemID:          "BOLT",
		ShippedQuantity: dec("100"),
		LocationID:      "plant-1",
		ShelfID:         "FG",
	})

	eff, err := orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"})
	require.NoError(t, err)

	entries := allEntries(t, st)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Quantity.Equal(dec("-100")))
	assert.Equal(t, inventory.EntryShipment, entries[0].EntryType)
	assert.Empty(t, entries[0].TrackedEntityID)
	assert.Empty(t, eff.Activities)

	sh, err := st.Shipments().GetShipment(ctx, "ship-1")
	require.NoError(t, err)
	assert.Equal(t, genealogy.ShipmentPosted, sh.Status)
}

func TestShipmentPost_TrackedLine_FullQuantity(t *testing.T) {
	// GIVEN: A tracked line shipping a batch's full 40 units
	// WHEN: Posting
	// THEN: No split; entity Consumed with shipment tags; one -40 row

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putBatch(t, st, "te-1", "PUMP", "40", genealogy.StatusAvailable)
	putPendingShipment(st, genealogy.ShipmentLine{
		ID:                    "line-1",
		ShipmentID:            "ship-1",
		ItemID:                "PUMP",
		ShippedQuantity:       dec("40"),
		LocationID:            "plant-1",
		ShelfID:               "FG",
		RequiresBatchTracking: true,
		TrackedEntityID:       "te-1",
	})

	eff, err := orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"})
	require.NoError(t, err)
	assert.Empty(t, eff.CreatedEntities, "full-quantity shipment must not split")

	e := getEntity(t, st, "te-1")
	assert.Equal(t, genealogy.StatusConsumed, e.Status)
	assert.Equal(t, genealogy.ShipmentID("ship-1"), e.Attributes.ShipmentID)
	assert.Equal(t, genealogy.ShipmentLineID("line-1"), e.Attributes.ShipmentLineID)

	entries := allEntries(t, st)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Quantity.Equal(dec("-40")))

	require.Len(t, eff.Activities, 1)
	assert.Equal(t, genealogy.ActivityShipment, eff.Activities[0].Type)
}

func TestShipmentPost_TrackedLine_PartialQuantity_Splits(t *testing.T) {
	// GIVEN: A tracked line shipping 15 of a 40-unit batch
	// WHEN: Posting
	// THEN: Batch splits 15/25; shipped part Consumed with shipment tags;
	//       remainder Available without them; rows net to -15

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putBatch(t, st, "te-1", "PUMP", "40", genealogy.StatusAvailable)
	putPendingShipment(st, genealogy.ShipmentLine{
		ID:                    "line-1",
		ShipmentID:            "ship-1",
		ItemID:                "PUMP",
		ShippedQuantity:       dec("15"),
		LocationID:            "plant-1",
		ShelfID:               "FG",
		RequiresBatchTracking: true,
		TrackedEntityID:       "te-1",
	})

	eff, err := orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"})
	require.NoError(t, err)
	require.Len(t, eff.CreatedEntities, 1)

	shipped := getEntity(t, st, "te-1")
	assert.Equal(t, genealogy.StatusConsumed, shipped.Status)
	assert.True(t, shipped.Quantity.Equal(dec("15")))
	assert.Equal(t, genealogy.ShipmentID("ship-1"), shipped.Attributes.ShipmentID)

	remainder := getEntity(t, st, shipped.Attributes.SplitEntityID)
	assert.Equal(t, genealogy.StatusAvailable, remainder.Status)
	assert.True(t, remainder.Quantity.Equal(dec("25")))
	assert.Empty(t, remainder.Attributes.ShipmentID)

	// 3 split rebalance rows + 1 shipment row
	entries := allEntries(t, st)
	require.Len(t, entries, 4)
	assert.True(t, inventory.SumEntries(entries).Equal(dec("-15")))
}

func TestShipmentPost_AlreadyPosted_Rejected(t *testing.T) {
	// GIVEN: A shipment that already posted
	// WHEN: Posting again
	// THEN: ErrInvalidState, nothing double-posts

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPendingShipment(st, genealogy.ShipmentLine{
		ID:              "line-1",
		ShipmentID:      "ship-1",
		ItemID:          "BOLT",
		ShippedQuantity: dec("100"),
		LocationID:      "plant-1",
		ShelfID:         "FG",
	})

	cmd := genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"}
	_, err := orch.ShipmentPost(ctx, cmd)
	require.NoError(t, err)

	_, err = orch.ShipmentPost(ctx, cmd)
	assert.ErrorIs(t, err, genealogy.ErrInvalidState)
	assert.Len(t, allEntries(t, st), 1)
}

func TestShipmentPost_OrderLine_PartialThenShipped(t *testing.T) {
	// GIVEN: An order line for 30, a shipment covering 15
	// WHEN: Two shipments post 15 each
	// THEN: partially-shipped after the first, shipped after the second,
	//       accumulated (not re-derived) quantities

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	st.PutOrderLine(genealogy.SalesOrderLine{
		ID:              "sol-1",
		ItemID:          "BOLT",
		QuantityOrdered: dec("30"),
		QuantityShipped: decimal.Zero,
		Status:          genealogy.OrderLineOpen,
	})
	putPendingShipment(st, genealogy.ShipmentLine{
		ID:               "line-1",
		ShipmentID:       "ship-1",
		ItemID:           "BOLT",
		ShippedQuantity:  dec("15"),
		LocationID:       "plant-1",
		ShelfID:          "FG",
		SalesOrderLineID: "sol-1",
	})
	st.PutShipment(genealogy.Shipment{ID: "ship-2", Status: genealogy.ShipmentPending},
		genealogy.ShipmentLine{
			ID:               "line-2",
			ShipmentID:       "ship-2",
			ItemID:           "BOLT",
			ShippedQuantity:  dec("15"),
			LocationID:       "plant-1",
			ShelfID:          "FG",
			SalesOrderLineID: "sol-1",
		})

	_, err := orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"})
	require.NoError(t, err)

	ol, err := st.Shipments().GetOrderLine(ctx, "sol-1")
	require.NoError(t, err)
	assert.Equal(t, genealogy.OrderLinePartiallyShipped, ol.Status)
	assert.True(t, ol.QuantityShipped.Equal(dec("15")))

	_, err = orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-2", Actor: "casey"})
	require.NoError(t, err)

	ol, err = st.Shipments().GetOrderLine(ctx, "sol-1")
	require.NoError(t, err)
	assert.Equal(t, genealogy.OrderLineShipped, ol.Status)
	assert.True(t, ol.QuantityShipped.Equal(dec("30")))
}

func TestShipmentPost_JobCounters(t *testing.T) {
	// GIVEN: Two job-sourced lines, one tracked and one untracked
	// WHEN: Posting
	// THEN: Both add to quantity-shipped; only the untracked line also
	//       completes job quantity at posting time

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	st.PutJob(genealogy.Job{ID: "job-1", QuantityShipped: decimal.Zero, QuantityComplete: decimal.Zero})
	putBatch(t, st, "te-1", "PUMP", "10", genealogy.StatusAvailable)
	putPendingShipment(st,
		genealogy.ShipmentLine{
			ID:                    "line-1",
			ShipmentID:            "ship-1",
			ItemID:                "PUMP",
			ShippedQuantity:       dec("10"),
			LocationID:            "plant-1",
			ShelfID:               "FG",
			RequiresBatchTracking: true,
			TrackedEntityID:       "te-1",
			JobID:                 "job-1",
		},
		genealogy.ShipmentLine{
			ID:              "line-2",
			ShipmentID:      "ship-1",
			ItemID:          "BOLT",
			ShippedQuantity: dec("5"),
			LocationID:      "plant-1",
			ShelfID:         "FG",
			JobID:           "job-1",
		},
	)

	_, err := orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"})
	require.NoError(t, err)

	j, err := st.Materials().GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, j.QuantityShipped.Equal(dec("15")))
	assert.True(t, j.QuantityComplete.Equal(dec("5")))
}

func TestShipmentPost_MissingShelf_UsesPickMethod(t *testing.T) {
	// GIVEN: A line without a shelf and a pick method for the item
	// WHEN: Posting
	// THEN: The shipment row posts against the resolved default shelf

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	st.PutPickMethod("BOLT", "plant-1", "FG-DEFAULT")
	putPendingShipment(st, genealogy.ShipmentLine{
		ID:              "line-1",
		ShipmentID:      "ship-1",
		ItemID:          "BOLT",
		ShippedQuantity: dec("5"),
		LocationID:      "plant-1",
	})

	_, err := orch.ShipmentPost(ctx, genealogy.ShipmentPostCommand{ShipmentID: "ship-1", Actor: "casey"})
	require.NoError(t, err)

	entries := allEntries(t, st)
	require.Len(t, entries, 1)
	assert.Equal(t, inventory.ShelfID("FG-DEFAULT"), entries[0].ShelfID)
}
