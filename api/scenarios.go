/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates items, tracked
	entities, job documents, and opening ledger rows that demonstrate
	specific features.

AVAILABLE SCENARIOS:

	job-issue:         Job with a batch-tracked material ready to consume
	partial-shipment:  Shipment line that only partially covers a batch
	serial-production: Serial operation mid-run with a reserved unit

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed job/shipment documents and pick methods
 3. Create tracked entities in their starting status
 4. Post opening adjustments so the ledger agrees with the entities

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-shipment"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Operation handlers these scenarios feed
  - store/sqlite/sqlite.go: Save* seeding helpers
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "job-issue",
		Name:        "Job Material Issue",
		Description: "A job with a batch-tracked material and two available batches to consume",
	},
	{
		ID:          "partial-shipment",
		Name:        "Partial Shipment",
		Description: "A pending shipment whose tracked line covers only part of a batch (forces a split)",
	},
	{
		ID:          "serial-production",
		Name:        "Serial Production Run",
		Description: "A serial operation mid-run: one reserved unit waiting to be completed",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "job-issue":
		err = loadJobIssueScenario(ctx, h)
	case "partial-shipment":
		err = loadPartialShipmentScenario(ctx, h)
	case "serial-production":
		err = loadSerialProductionScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadJobIssueScenario: a job building PUMP-100 from batch-tracked steel.
// Two batches sit on the RAW shelf; the material line wants 30 units.
func loadJobIssueScenario(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveJob(ctx, genealogy.Job{
		ID:               "job-1000",
		QuantityShipped:  decimal.Zero,
		QuantityComplete: decimal.Zero,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveMaterial(ctx, genealogy.JobMaterial{
		ID:              "mat-steel",
		ItemID:          "STEEL-4140",
		JobID:           "job-1000",
		MethodType:      genealogy.MethodPick,
		QuantityToIssue: dec("30"),
		QuantityIssued:  decimal.Zero,
		ShelfID:         "RAW",
	}); err != nil {
		return err
	}
	if err := h.Store.SaveOperation(ctx, genealogy.JobOperation{
		ID:             "op-weld",
		JobID:          "job-1000",
		TargetQuantity: dec("10"),
	}); err != nil {
		return err
	}

	// The unit being built
	if err := seedEntity(ctx, h, "te-pump-1", "PUMP-100", "plant-1", "WIP",
		"10", genealogy.StatusAvailable, genealogy.TrackingBatch, "job-1000"); err != nil {
		return err
	}

	// Two batches of raw material
	if err := seedEntity(ctx, h, "te-steel-a", "STEEL-4140", "plant-1", "RAW",
		"20", genealogy.StatusAvailable, genealogy.TrackingBatch, "po-200"); err != nil {
		return err
	}
	return seedEntity(ctx, h, "te-steel-b", "STEEL-4140", "plant-1", "RAW",
		"25", genealogy.StatusAvailable, genealogy.TrackingBatch, "po-201")
}

// loadPartialShipmentScenario: a pending shipment wants 15 units out of a
// 40-unit batch. Posting it exercises the split path.
func loadPartialShipmentScenario(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveOrderLine(ctx, genealogy.SalesOrderLine{
		ID:              "sol-1",
		ItemID:          "PUMP-100",
		QuantityOrdered: dec("15"),
		QuantityShipped: decimal.Zero,
		Status:          genealogy.OrderLineOpen,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveJob(ctx, genealogy.Job{
		ID:               "job-1000",
		QuantityShipped:  decimal.Zero,
		QuantityComplete: decimal.Zero,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveShipment(ctx,
		genealogy.Shipment{ID: "ship-500", Status: genealogy.ShipmentPending},
		genealogy.ShipmentLine{
			ID:                    "shipline-1",
			ShipmentID:            "ship-500",
			ItemID:                "PUMP-100",
			ShippedQuantity:       dec("15"),
			LocationID:            "plant-1",
			RequiresBatchTracking: true,
			TrackedEntityID:       "te-pump-batch",
			SalesOrderLineID:      "sol-1",
			JobID:                 "job-1000",
		},
	); err != nil {
		return err
	}
	if err := h.Store.SavePickMethod(ctx, "PUMP-100", "plant-1", "FG"); err != nil {
		return err
	}

	return seedEntity(ctx, h, "te-pump-batch", "PUMP-100", "plant-1", "FG",
		"40", genealogy.StatusAvailable, genealogy.TrackingBatch, "job-1000")
}

// loadSerialProductionScenario: a serial run of 3 motors, second unit
// reserved and waiting at the test operation.
func loadSerialProductionScenario(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveJob(ctx, genealogy.Job{
		ID:               "job-2000",
		QuantityShipped:  decimal.Zero,
		QuantityComplete: decimal.Zero,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveOperation(ctx, genealogy.JobOperation{
		ID:             "op-test",
		JobID:          "job-2000",
		TargetQuantity: dec("3"),
	}); err != nil {
		return err
	}

	// First unit already completed
	first := &genealogy.TrackedEntity{
		ID:           "sn-motor-001",
		ItemID:       "MOTOR-7",
		LocationID:   "plant-1",
		ShelfID:      "WIP",
		Quantity:     dec("1"),
		Status:       genealogy.StatusAvailable,
		TrackingType: genealogy.TrackingSerial,
		Source:       inventory.DocumentRef{Type: inventory.DocJob, ID: "job-2000"},
		Attributes: genealogy.LineageAttributes{
			ParentJobID:        "job-2000",
			OperationSequences: map[genealogy.JobOperationID]int{"op-test": 1},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.Store.Entities().Create(ctx, first); err != nil {
		return err
	}
	if _, err := h.Store.Materials().RecordProduction(ctx, genealogy.ProductionRecord{
		JobOperationID: "op-test",
		EntityID:       "sn-motor-001",
		Quantity:       dec("1"),
		CreatedBy:      "scenario",
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return err
	}

	// Second unit reserved, ready to complete
	second := &genealogy.TrackedEntity{
		ID:           "sn-motor-002",
		ItemID:       "MOTOR-7",
		LocationID:   "plant-1",
		ShelfID:      "WIP",
		Quantity:     dec("1"),
		Status:       genealogy.StatusReserved,
		TrackingType: genealogy.TrackingSerial,
		Source:       inventory.DocumentRef{Type: inventory.DocJob, ID: "job-2000"},
		Attributes:   genealogy.LineageAttributes{ParentJobID: "job-2000"},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	return h.Store.Entities().Create(ctx, second)
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seedEntity creates an available entity and posts the matching opening
// adjustment so the ledger agrees with entity state from the start.
func seedEntity(ctx context.Context, h *Handler, id genealogy.EntityID,
	item inventory.ItemID, location inventory.LocationID, shelf inventory.ShelfID,
	qty string, status genealogy.EntityStatus, tracking genealogy.TrackingType,
	sourceID string) error {

	now := time.Now().UTC()
	e := &genealogy.TrackedEntity{
		ID:           id,
		ItemID:       item,
		LocationID:   location,
		ShelfID:      shelf,
		Quantity:     dec(qty),
		Status:       status,
		TrackingType: tracking,
		Source:       inventory.DocumentRef{Type: inventory.DocJob, ID: sourceID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Store.Entities().Create(ctx, e); err != nil {
		return err
	}

	return h.Store.Ledger().Append(ctx, inventory.LedgerEntry{
		ID:              inventory.EntryID(uuid.NewString()),
		ItemID:          item,
		LocationID:      location,
		ShelfID:         shelf,
		Quantity:        dec(qty),
		EntryType:       inventory.EntryAdjustment,
		Document:        inventory.DocumentRef{Type: inventory.DocAdjustment, ID: "seed-" + string(id)},
		TrackedEntityID: string(id),
		CreatedBy:       "scenario",
		PostingDate:     now,
		CreatedAt:       now,
	})
}

func dec(s string) decimal.Decimal {
	return inventory.MustParseQuantity(s)
}
