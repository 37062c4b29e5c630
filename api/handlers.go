/*
handlers.go - HTTP API handlers for the inventory genealogy engine

PURPOSE:
  Exposes the ledger and genealogy engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Inventory:
    GET    /api/inventory/onhand       On-hand for (item, location[, shelf])
    GET    /api/inventory/ledger       Ledger entries (filterable)
    POST   /api/inventory/adjustments  Manual ledger adjustment

  Entities:
    GET    /api/entities               Entities by parent make method
    GET    /api/entities/{id}          Get tracked entity
    GET    /api/entities/{id}/descendant  Follow split pointers to the tip
    GET    /api/entities/{id}/activities  Activities touching the entity

  Operations:
    POST   /api/materials/{id}/consume    Issue tracked material
    POST   /api/materials/{id}/unconsume  Reverse a prior issue
    POST   /api/shipments/{id}/post       Post a shipment
    POST   /api/operations/{id}/complete  Record production completion

  Documents:
    GET    /api/documents/{id}/activities Activity trail for a document

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (also the UnitOfWork)
  - Orch:  Command orchestrator

REQUEST FLOW:
  1. Parse HTTP request
  2. Build a domain command
  3. Apply it through the orchestrator (one transaction)
  4. Serialize the effects
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient quantity
  - 404: Resource not found
  - 409: Invalid state (double consume, already posted)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/forge/inventory-engine/genealogy"
	"github.com/forge/inventory-engine/inventory"
	"github.com/forge/inventory-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
	Orch  *genealogy.Orchestrator

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store: store,
		Orch:  genealogy.NewOrchestrator(store),
	}
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// GetOnHand returns the computed on-hand quantity for an item bucket.
// GET /api/inventory/onhand?item_id=...&location_id=...&shelf_id=...
func (h *Handler) GetOnHand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	item := inventory.ItemID(q.Get("item_id"))
	location := inventory.LocationID(q.Get("location_id"))
	shelf := inventory.ShelfID(q.Get("shelf_id"))

	if item == "" || location == "" {
		writeError(w, http.StatusBadRequest, "item_id and location_id are required", nil)
		return
	}

	onHand, err := h.Store.Ledger().OnHand(r.Context(), item, location, shelf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute on-hand", err)
		return
	}

	writeJSON(w, http.StatusOK, OnHandDTO{
		ItemID:     string(item),
		LocationID: string(location),
		ShelfID:    string(shelf),
		Quantity:   onHand.String(),
	})
}

// GetLedgerEntries returns ledger rows matching the query filter.
// GET /api/inventory/ledger?item_id=...&tracked_entity_id=...&document_id=...
func (h *Handler) GetLedgerEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.EntryFilter{
		ItemID:          inventory.ItemID(q.Get("item_id")),
		LocationID:      inventory.LocationID(q.Get("location_id")),
		ShelfID:         inventory.ShelfID(q.Get("shelf_id")),
		TrackedEntityID: q.Get("tracked_entity_id"),
		DocumentID:      q.Get("document_id"),
	}

	entries, err := h.Store.Ledger().Entries(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query ledger", err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment posts a manual ledger correction.
// POST /api/inventory/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity (use a decimal string)", err)
		return
	}

	effects, err := h.Orch.Apply(r.Context(), genealogy.AdjustmentCommand{
		ItemID:          inventory.ItemID(req.ItemID),
		LocationID:      inventory.LocationID(req.LocationID),
		ShelfID:         inventory.ShelfID(req.ShelfID),
		Quantity:        qty,
		TrackedEntityID: genealogy.EntityID(req.TrackedEntityID),
		Reason:          req.Reason,
		Actor:           req.Actor,
	})
	if err != nil {
		writeDomainError(w, "Failed to post adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEffectsDTO(effects))
}

// =============================================================================
// ENTITY HANDLERS
// =============================================================================

// ListEntities returns tracked entities filtered by parent make method.
// GET /api/entities?make_method_id=...
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	makeMethodID := r.URL.Query().Get("make_method_id")
	if makeMethodID == "" {
		writeError(w, http.StatusBadRequest, "make_method_id is required", nil)
		return
	}

	entities, err := h.Store.Entities().FindByParentMakeMethod(r.Context(), makeMethodID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entities", err)
		return
	}

	dtos := make([]EntityDTO, len(entities))
	for i, e := range entities {
		dtos[i] = toEntityDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEntity returns a single tracked entity.
// GET /api/entities/{id}
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := genealogy.EntityID(chi.URLParam(r, "id"))

	e, err := h.Store.Entities().Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get entity", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntityDTO(e))
}

// GetDescendant follows split pointers from an entity to the live tip.
// GET /api/entities/{id}/descendant
func (h *Handler) GetDescendant(w http.ResponseWriter, r *http.Request) {
	id := genealogy.EntityID(chi.URLParam(r, "id"))

	e, err := genealogy.Descendant(r.Context(), h.Store.Entities(), id)
	if err != nil {
		writeDomainError(w, "Failed to resolve descendant", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntityDTO(e))
}

// GetEntityActivities returns the activities an entity participates in.
// GET /api/entities/{id}/activities
func (h *Handler) GetEntityActivities(w http.ResponseWriter, r *http.Request) {
	id := genealogy.EntityID(chi.URLParam(r, "id"))

	activities, err := h.Store.Activities().ForEntity(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get activities", err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityDTOs(activities))
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// Consume issues tracked material against a job material line.
// POST /api/materials/{id}/consume
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	materialID := genealogy.MaterialID(chi.URLParam(r, "id"))

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	children, err := toChildQuantities(req.Children)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid child quantity", err)
		return
	}

	effects, err := h.Orch.Apply(r.Context(), genealogy.ConsumeCommand{
		MaterialID:     materialID,
		ParentEntityID: genealogy.EntityID(req.ParentEntityID),
		Children:       children,
		Actor:          req.Actor,
	})
	if err != nil {
		writeDomainError(w, "Failed to consume", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEffectsDTO(effects))
}

// Unconsume reverses a prior issue, returning children to circulation.
// POST /api/materials/{id}/unconsume
func (h *Handler) Unconsume(w http.ResponseWriter, r *http.Request) {
	materialID := genealogy.MaterialID(chi.URLParam(r, "id"))

	var req UnconsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	children, err := toChildQuantities(req.Children)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid child quantity", err)
		return
	}

	effects, err := h.Orch.Apply(r.Context(), genealogy.UnconsumeCommand{
		MaterialID:     materialID,
		ParentEntityID: genealogy.EntityID(req.ParentEntityID),
		Children:       children,
		Actor:          req.Actor,
	})
	if err != nil {
		writeDomainError(w, "Failed to unconsume", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEffectsDTO(effects))
}

// PostShipment finalizes a shipment: consumes tracked entities, posts
// ledger rows, updates order lines and job counters.
// POST /api/shipments/{id}/post
func (h *Handler) PostShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID := genealogy.ShipmentID(chi.URLParam(r, "id"))

	var req PostShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effects, err := h.Orch.Apply(r.Context(), genealogy.ShipmentPostCommand{
		ShipmentID: shipmentID,
		Actor:      req.Actor,
	})
	if err != nil {
		writeDomainError(w, "Failed to post shipment", err)
		return
	}

	writeJSON(w, http.StatusOK, toEffectsDTO(effects))
}

// Complete records a production completion at a job operation.
// POST /api/operations/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	operationID := genealogy.JobOperationID(chi.URLParam(r, "id"))

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity (use a decimal string)", err)
		return
	}

	effects, err := h.Orch.Apply(r.Context(), genealogy.BatchOrSerialCompleteCommand{
		TrackedEntityID: genealogy.EntityID(req.TrackedEntityID),
		JobOperationID:  operationID,
		Quantity:        qty,
		Actor:           req.Actor,
	})
	if err != nil {
		writeDomainError(w, "Failed to record completion", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEffectsDTO(effects))
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// GetDocumentActivities returns every activity a document triggered.
// GET /api/documents/{id}/activities
func (h *Handler) GetDocumentActivities(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")

	activities, err := genealogy.Trail(r.Context(), h.Store.Activities(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get activity trail", err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityDTOs(activities))
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toEntityDTO(e *genealogy.TrackedEntity) EntityDTO {
	opSeqs := make(map[string]int, len(e.Attributes.OperationSequences))
	for op, seq := range e.Attributes.OperationSequences {
		opSeqs[string(op)] = seq
	}
	if len(opSeqs) == 0 {
		opSeqs = nil
	}

	return EntityDTO{
		ID:           string(e.ID),
		ItemID:       string(e.ItemID),
		LocationID:   string(e.LocationID),
		ShelfID:      string(e.ShelfID),
		Quantity:     e.Quantity.String(),
		Status:       string(e.Status),
		TrackingType: string(e.TrackingType),
		SourceType:   string(e.Source.Type),
		SourceID:     e.Source.ID,
		Attributes: EntityAttrsDTO{
			ParentJobID:        string(e.Attributes.ParentJobID),
			ParentMakeMethodID: e.Attributes.ParentMakeMethodID,
			SplitEntityID:      string(e.Attributes.SplitEntityID),
			ShipmentID:         string(e.Attributes.ShipmentID),
			ShipmentLineID:     string(e.Attributes.ShipmentLineID),
			OperationSequences: opSeqs,
		},
		Extra:     e.Attributes.Extra,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

func toActivityDTOs(activities []*genealogy.TrackedActivity) []ActivityDTO {
	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = toActivityDTO(a)
	}
	return dtos
}

func toActivityDTO(a *genealogy.TrackedActivity) ActivityDTO {
	inputs := make([]ActivityEdgeDTO, len(a.Inputs))
	for i, in := range a.Inputs {
		inputs[i] = ActivityEdgeDTO{EntityID: string(in.EntityID), Quantity: in.Quantity.String()}
	}
	outputs := make([]ActivityEdgeDTO, len(a.Outputs))
	for i, out := range a.Outputs {
		outputs[i] = ActivityEdgeDTO{EntityID: string(out.EntityID), Quantity: out.Quantity.String()}
	}

	return ActivityDTO{
		ID:         string(a.ID),
		Type:       string(a.Type),
		SourceType: string(a.Source.Type),
		SourceID:   a.Source.ID,
		Attributes: a.Attributes,
		Inputs:     inputs,
		Outputs:    outputs,
		CreatedBy:  a.CreatedBy,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

func toLedgerEntryDTO(e inventory.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:              string(e.ID),
		ItemID:          string(e.ItemID),
		LocationID:      string(e.LocationID),
		ShelfID:         string(e.ShelfID),
		Quantity:        e.Quantity.String(),
		EntryType:       string(e.EntryType),
		DocumentType:    string(e.Document.Type),
		DocumentID:      e.Document.ID,
		TrackedEntityID: e.TrackedEntityID,
		CreatedBy:       e.CreatedBy,
		PostingDate:     e.PostingDate.Format(time.RFC3339),
	}
}

func toEffectsDTO(effects *genealogy.Effects) map[string]any {
	created := make([]string, len(effects.CreatedEntities))
	for i, id := range effects.CreatedEntities {
		created[i] = string(id)
	}
	updated := make([]string, len(effects.UpdatedEntities))
	for i, id := range effects.UpdatedEntities {
		updated[i] = string(id)
	}
	entries := make([]LedgerEntryDTO, len(effects.LedgerEntries))
	for i, e := range effects.LedgerEntries {
		entries[i] = toLedgerEntryDTO(e)
	}

	return map[string]any{
		"activities":       toActivityDTOs(effects.Activities),
		"created_entities": created,
		"updated_entities": updated,
		"ledger_entries":   entries,
	}
}

func toChildQuantities(dtos []ChildQuantityDTO) ([]genealogy.ChildQuantity, error) {
	children := make([]genealogy.ChildQuantity, len(dtos))
	for i, c := range dtos {
		qty, err := decimal.NewFromString(c.Quantity)
		if err != nil {
			return nil, err
		}
		children[i] = genealogy.ChildQuantity{
			EntityID: genealogy.EntityID(c.EntityID),
			Quantity: qty,
		}
	}
	return children, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case genealogy.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, genealogy.ErrInvalidState):
		writeError(w, http.StatusConflict, message, err)
	case genealogy.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
