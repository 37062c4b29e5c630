/*
scheduler_test.go - Unit tests for the conservation auditor

Tests for:
- Clean audits after scenario loads and real operations
- Drift detection for rogue ledger rows and dangling entity references
*/
package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
)

func TestAudit_CleanAfterScenarioLoad(t *testing.T) {
	// GIVEN: Job issue scenario (entities with matching opening rows)
	// WHEN: Running the conservation audit
	// THEN: No drift

	handler := setupTestHandler(t)
	ctx := context.Background()

	if err := loadJobIssueScenario(ctx, handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	auditor := NewConservationAuditor(handler.Store)
	result, err := auditor.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	if result.DriftsFound != 0 {
		t.Errorf("Expected no drift, got %d: %+v", result.DriftsFound, result.Drifts)
	}
	if result.EntitiesChecked != 3 {
		t.Errorf("Expected 3 entities checked, got %d", result.EntitiesChecked)
	}
}

func TestAudit_CleanAfterConsumeAndSplit(t *testing.T) {
	// GIVEN: A partial issue (split rebalance + consumption rows)
	// WHEN: Auditing
	// THEN: Per-entity ledger slices still reconcile with entity state

	handler := setupTestHandler(t)
	ctx := context.Background()

	if err := loadJobIssueScenario(ctx, handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	_, err := handler.Orch.Consume(ctx, genealogy.ConsumeCommand{
		MaterialID:     "mat-steel",
		ParentEntityID: "te-pump-1",
		Children: []genealogy.ChildQuantity{
			{EntityID: "te-steel-a", Quantity: dec("20")},
			{EntityID: "te-steel-b", Quantity: dec("10")},
		},
		Actor: "test",
	})
	if err != nil {
		t.Fatalf("Failed to consume: %v", err)
	}

	auditor := NewConservationAuditor(handler.Store)
	result, err := auditor.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	if result.DriftsFound != 0 {
		t.Errorf("Expected no drift after issue, got %d: %+v", result.DriftsFound, result.Drifts)
	}
}

func TestAudit_DetectsRogueRow(t *testing.T) {
	// GIVEN: A clean scenario plus an unexplained row against a batch
	// WHEN: Auditing
	// THEN: The batch is reported with expected vs net quantities

	handler := setupTestHandler(t)
	ctx := context.Background()

	if err := loadJobIssueScenario(ctx, handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	rogue := inventory.LedgerEntry{
		ID:              inventory.EntryID(uuid.NewString()),
		ItemID:          "STEEL-4140",
		LocationID:      "plant-1",
		ShelfID:         "RAW",
		Quantity:        dec("5"),
		EntryType:       inventory.EntryAdjustment,
		Document:        inventory.DocumentRef{Type: inventory.DocAdjustment, ID: "rogue-1"},
		TrackedEntityID: "te-steel-a",
		CreatedBy:       "test",
		PostingDate:     time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := handler.Store.Ledger().Append(ctx, rogue); err != nil {
		t.Fatalf("Failed to append rogue row: %v", err)
	}

	auditor := NewConservationAuditor(handler.Store)
	result, err := auditor.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	if result.DriftsFound != 1 {
		t.Fatalf("Expected 1 drift, got %d", result.DriftsFound)
	}
	d := result.Drifts[0]
	if d.EntityID != "te-steel-a" {
		t.Errorf("Expected drift on te-steel-a, got %s", d.EntityID)
	}
	if !d.Expected.Equal(dec("20")) || !d.Net.Equal(dec("25")) {
		t.Errorf("Expected drift 20 vs 25, got %s vs %s", d.Expected, d.Net)
	}
}

func TestAudit_DetectsDanglingEntityReference(t *testing.T) {
	// GIVEN: A ledger row naming an entity that does not exist
	// WHEN: Auditing
	// THEN: Reported as drift with zero expected

	handler := setupTestHandler(t)
	ctx := context.Background()

	orphan := inventory.LedgerEntry{
		ID:              inventory.EntryID(uuid.NewString()),
		ItemID:          "STEEL-4140",
		LocationID:      "plant-1",
		ShelfID:         "RAW",
		Quantity:        dec("7"),
		EntryType:       inventory.EntryAdjustment,
		Document:        inventory.DocumentRef{Type: inventory.DocAdjustment, ID: "orphan-1"},
		TrackedEntityID: "te-missing",
		CreatedBy:       "test",
		PostingDate:     time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := handler.Store.Ledger().Append(ctx, orphan); err != nil {
		t.Fatalf("Failed to append orphan row: %v", err)
	}

	auditor := NewConservationAuditor(handler.Store)
	result, err := auditor.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}

	if result.DriftsFound != 1 {
		t.Fatalf("Expected 1 drift, got %d", result.DriftsFound)
	}
	if !result.Drifts[0].Expected.IsZero() {
		t.Errorf("Expected zero expected quantity for dangling reference, got %s", result.Drifts[0].Expected)
	}
}

func TestAuditor_StartStop(t *testing.T) {
	handler := setupTestHandler(t)

	auditor := NewConservationAuditor(handler.Store)
	auditor.CheckInterval = 50 * time.Millisecond
	auditor.Start()

	auditor.RunNow()
	time.Sleep(10 * time.Millisecond)

	if auditor.LastRun() == nil {
		t.Error("Expected a recorded run after RunNow")
	}
	auditor.Stop()
}
