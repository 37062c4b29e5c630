package genealogy_test

import (
	"context"
	"testing"
	"time"

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

func newTestOrchestrator() (*genealogy.Orchestrator, *memory.Store) {
	st := memory.New()
	orch := genealogy.NewOrchestrator(st)
	orch.Now = func() time.Time { return time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC) }
	return orch, st
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// putBatch creates a batch-tracked entity in the given status.
func putBatch(t *testing.T, st *memory.Store, id genealogy.EntityID, item inventory.ItemID, qty string, status genealogy.EntityStatus) {
	t.Helper()
	err := st.Entities().Create(context.Background(), &genealogy.TrackedEntity{
		ID:           id,
		ItemID:       item,
		LocationID:   "plant-1",
		ShelfID:      "RAW",
		Quantity:     dec(qty),
		Status:       status,
		TrackingType: genealogy.TrackingBatch,
		Source:       inventory.DocumentRef{Type: inventory.DocPurchaseOrder, ID: "po-100"},
		Attributes:   genealogy.LineageAttributes{ParentJobID: "job-1"},
	})
	require.NoError(t, err)
}

// putPickMaterial seeds a pick-method material line for job-1.
func putPickMaterial(st *memory.Store, id genealogy.MaterialID, item inventory.ItemID, toIssue string) {
	st.PutMaterial(genealogy.JobMaterial{
		ID:              id,
		ItemID:          item,
		JobID:           "job-1",
		MethodType:      genealogy.MethodPick,
		QuantityToIssue: dec(toIssue),
		QuantityIssued:  decimal.Zero,
		ShelfID:         "RAW",
	})
}

func allEntries(t *testing.T, st *memory.Store) []inventory.LedgerEntry {
	t.Helper()
	entries, err := st.Ledger().Entries(context.Background(), inventory.EntryFilter{})
	require.NoError(t, err)
	return entries
}

func getEntity(t *testing.T, st *memory.Store, id genealogy.EntityID) *genealogy.TrackedEntity {
	t.Helper()
	e, err := st.Entities().Get(context.Background(), id)
	require.NoError(t, err)
	return e
}

// =============================================================================
// CONSUME TESTS
// =============================================================================

func TestConsume_FullQuantity_MarksConsumedAndPostsLedger(t *testing.T) {
	// GIVEN: A 20-unit batch and a pick material line wanting 20
	// WHEN: The full batch is consumed
	// THEN: Batch is Consumed, one -20 consumption row posts, counter moves

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "20")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	eff, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("20")}},
		Actor:          "casey",
	})
	require.NoError(t, err)

	assert.Equal(t, genealogy.StatusConsumed, getEntity(t, st, "child-1").Status)

	entries := allEntries(t, st)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Quantity.Equal(dec("-20")))
	assert.Equal(t, inventory.EntryConsumption, entries[0].EntryType)
	assert.Equal(t, "child-1", entries[0].TrackedEntityID)
	assert.Equal(t, inventory.DocJob, entries[0].Document.Type)

	// One Consume activity: child in, parent out
	require.Len(t, eff.Activities, 1)
	activity := eff.Activities[0]
	assert.Equal(t, genealogy.ActivityConsume, activity.Type)
	require.Len(t, activity.Inputs, 1)
	assert.Equal(t, genealogy.EntityID("child-1"), activity.Inputs[0].EntityID)
	require.Len(t, activity.Outputs, 1)
	assert.Equal(t, genealogy.EntityID("parent-1"), activity.Outputs[0].EntityID)
	assert.True(t, activity.Outputs[0].Quantity.Equal(dec("20")))

	m, err := st.Materials().GetMaterial(ctx, "mat-1")
	require.NoError(t, err)
	assert.True(t, m.QuantityIssued.Equal(dec("20")))
}

func TestConsume_PartialQuantity_SplitsThenConsumes(t *testing.T) {
	// GIVEN: A 20-unit batch, material line consuming only 8
	// WHEN: Consuming 8
	// THEN: Batch splits 8/12, original Consumed, remainder Available,
	//       ledger nets to exactly -8

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
	require.Len(t, eff.CreatedEntities, 1)

	original := getEntity(t, st, "child-1")
	assert.Equal(t, genealogy.StatusConsumed, original.Status)
	assert.True(t, original.Quantity.Equal(dec("8")))
	require.NotEmpty(t, original.Attributes.SplitEntityID)

	remainder := getEntity(t, st, original.Attributes.SplitEntityID)
	assert.Equal(t, genealogy.StatusAvailable, remainder.Status)
	assert.True(t, remainder.Quantity.Equal(dec("12")))
	assert.Empty(t, remainder.Attributes.SplitEntityID)

	// Split rows (-20, +8, +12) plus the consumption row (-8)
	entries := allEntries(t, st)
	require.Len(t, entries, 4)
	assert.True(t, inventory.SumEntries(entries).Equal(dec("-8")))
}

func TestConsume_AlreadyConsumed_Rejected(t *testing.T) {
	// GIVEN: A batch already consumed by a first issue
	// WHEN: A second issue targets the same batch
	// THEN: InvalidStateError, and nothing new is written

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "20")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	cmd := genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("20")}},
		Actor:          "casey",
	}
	_, err := orch.Consume(ctx, cmd)
	require.NoError(t, err)
	before := len(allEntries(t, st))

	_, err = orch.Consume(ctx, cmd)
	require.Error(t, err)
	var stateErr *genealogy.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
	assert.ErrorIs(t, err, genealogy.ErrInvalidState)

	assert.Len(t, allEntries(t, st), before, "rejected operation must not post rows")
}

func TestConsume_InsufficientQuantity_Rejected(t *testing.T) {
	// GIVEN: A 20-unit batch
	// WHEN: 25 units are requested
	// THEN: QuantityMismatchError, batch untouched

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "25")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("25")}},
		Actor:          "casey",
	})

	var qtyErr *genealogy.QuantityMismatchError
	require.ErrorAs(t, err, &qtyErr)
	assert.True(t, qtyErr.Available.Equal(dec("20")))
	assert.True(t, qtyErr.Requested.Equal(dec("25")))

	assert.Equal(t, genealogy.StatusAvailable, getEntity(t, st, "child-1").Status)
	assert.Empty(t, allEntries(t, st))
}

func TestConsume_MakeMethodMaterial_NoLedgerRows(t *testing.T) {
	// GIVEN: A make-method material (inventory lives in the sub-job)
	// WHEN: Its tracked output is consumed
	// THEN: Status and counter move, but no ledger rows post

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	st.PutMaterial(genealogy.JobMaterial{
		ID:              "mat-sub",
		ItemID:          "GEAR",
		JobID:           "job-1",
		MethodType:      genealogy.MethodMake,
		QuantityToIssue: dec("5"),
		QuantityIssued:  decimal.Zero,
	})
	putBatch(t, st, "child-1", "GEAR", "5", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-sub",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("5")}},
		Actor:          "casey",
	})
	require.NoError(t, err)

	assert.Equal(t, genealogy.StatusConsumed, getEntity(t, st, "child-1").Status)
	assert.Empty(t, allEntries(t, st))

	m, err := st.Materials().GetMaterial(ctx, "mat-sub")
	require.NoError(t, err)
	assert.True(t, m.QuantityIssued.Equal(dec("5")))
}

func TestConsume_MidBatchFailure_RollsBackEverything(t *testing.T) {
	// GIVEN: Two children, the second of which does not exist
	// WHEN: Consuming both in one command
	// THEN: The whole operation rolls back - first child stays Available

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "30")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children: []genealogy.ChildQuantity{
			{EntityID: "child-1", Quantity: dec("20")},
			{EntityID: "ghost", Quantity: dec("10")},
		},
		Actor: "casey",
	})
	require.Error(t, err)
	assert.True(t, genealogy.IsNotFound(err))

	assert.Equal(t, genealogy.StatusAvailable, getEntity(t, st, "child-1").Status)
	assert.Empty(t, allEntries(t, st))

	m, merr := st.Materials().GetMaterial(ctx, "mat-1")
	require.NoError(t, merr)
	assert.True(t, m.QuantityIssued.IsZero())
}

func TestConsume_DefaultShelfMaterial_UsesPickMethod(t *testing.T) {
	// GIVEN: A material line flagged default-shelf, pick method RAW-2
	// WHEN: Consuming
	// THEN: The consumption row posts against the pick-method shelf

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	st.PutMaterial(genealogy.JobMaterial{
		ID:              "mat-1",
		ItemID:          "STEEL",
		JobID:           "job-1",
		MethodType:      genealogy.MethodPick,
		QuantityToIssue: dec("20"),
		QuantityIssued:  decimal.Zero,
		DefaultShelf:    true,
	})
	st.PutPickMethod("STEEL", "plant-1", "RAW-2")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("20")}},
		Actor:          "casey",
	})
	require.NoError(t, err)

	entries := allEntries(t, st)
	require.Len(t, entries, 1)
	assert.Equal(t, inventory.ShelfID("RAW-2"), entries[0].ShelfID)
}

// =============================================================================
// UNCONSUME TESTS
// =============================================================================

func TestUnconsume_RoundTrip_ExactNegation(t *testing.T) {
	// GIVEN: A fully consumed batch
	// WHEN: The issue is reversed
	// THEN: Batch is Available again, rows net to zero, counter back to zero

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "20")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	children := []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("20")}}
	_, err := orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID: "mat-1", ParentEntityID: "parent-1", Children: children, Actor: "casey",
	})
	require.NoError(t, err)

	_, err = orch.Unconsume(ctx, genealogy.UnconsumeCommand{
		MaterialID: "mat-1", ParentEntityID: "parent-1", Children: children, Actor: "casey",
	})
	require.NoError(t, err)

	assert.Equal(t, genealogy.StatusAvailable, getEntity(t, st, "child-1").Status)

	// -20 then +20 against the same item/location/shelf
	entries := allEntries(t, st)
	require.Len(t, entries, 2)
	assert.True(t, inventory.SumEntries(entries).IsZero())
	assert.Equal(t, entries[0].ItemID, entries[1].ItemID)
	assert.Equal(t, entries[0].ShelfID, entries[1].ShelfID)
	assert.True(t, entries[1].Quantity.Equal(entries[0].Quantity.Neg()))

	m, err := st.Materials().GetMaterial(ctx, "mat-1")
	require.NoError(t, err)
	assert.True(t, m.QuantityIssued.IsZero())

	onHand, err := st.Ledger().OnHand(ctx, "STEEL", "plant-1", "RAW")
	require.NoError(t, err)
	assert.True(t, onHand.IsZero())
}

func TestUnconsume_NotConsumed_Rejected(t *testing.T) {
	// GIVEN: A batch still Available
	// WHEN: Unconsume targets it
	// THEN: InvalidStateError

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	putPickMaterial(st, "mat-1", "STEEL", "20")
	putBatch(t, st, "child-1", "STEEL", "20", genealogy.StatusAvailable)
	putBatch(t, st, "parent-1", "PUMP", "1", genealogy.StatusAvailable)

	_, err := orch.Unconsume(ctx, genealogy.UnconsumeCommand{
		MaterialID:     "mat-1",
		ParentEntityID: "parent-1",
		Children:       []genealogy.ChildQuantity{{EntityID: "child-1", Quantity: dec("20")}},
		Actor:          "casey",
	})

	var stateErr *genealogy.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, genealogy.StatusConsumed, stateErr.Want)
	assert.Empty(t, allEntries(t, st))
}

// =============================================================================
// ADJUSTMENT TESTS
// =============================================================================

func TestPostAdjustment_AppendsSignedRow(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: A +12.5 cycle-count adjustment posts
	// THEN: One adjustment row exists and on-hand reflects it

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	eff, err := orch.Apply(ctx, genealogy.AdjustmentCommand{
		ItemID:     "STEEL",
		LocationID: "plant-1",
		ShelfID:    "RAW",
		Quantity:   dec("12.5"),
		Reason:     "cycle count",
		Actor:      "casey",
	})
	require.NoError(t, err)
	require.Len(t, eff.LedgerEntries, 1)
	assert.Equal(t, "cycle count", eff.LedgerEntries[0].Document.ReadableID)

	onHand, err := st.Ledger().OnHand(ctx, "STEEL", "plant-1", "RAW")
	require.NoError(t, err)
	assert.True(t, onHand.Equal(dec("12.5")))
}

func TestPostAdjustment_UnknownEntity_Rejected(t *testing.T) {
	// GIVEN: No entity "ghost"
	// WHEN: An adjustment references it
	// THEN: NotFoundError, no row posts

	orch, st := newTestOrchestrator()
	ctx := context.Background()

	_, err := orch.Apply(ctx, genealogy.AdjustmentCommand{
		ItemID:          "STEEL",
		LocationID:      "plant-1",
		Quantity:        dec("1"),
		TrackedEntityID: "ghost",
		Reason:          "fix",
		Actor:           "casey",
	})
	require.Error(t, err)
	assert.True(t, genealogy.IsNotFound(err))
	assert.Empty(t, allEntries(t, st))
}
