/*
handlers_test.go - Unit tests for API handlers

Tests for:
- REST operation endpoints (consume, unconsume, shipment post, complete)
- Read endpoints (on-hand, ledger, entities, descendant)
- Domain error to HTTP status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forge/inventory-engine/genealogy"
)

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestConsumeEndpoint_Success(t *testing.T) {
	// GIVEN: Job issue scenario loaded
	// WHEN: POSTing a consume for both steel batches
	// THEN: 201 Created with effects, on-hand reflects the issue

	handler := setupTestHandler(t)
	router := NewRouter(handler)

	if err := loadJobIssueScenario(context.Background(), handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	rec := doRequest(t, router, "POST", "/api/materials/mat-steel/consume", ConsumeRequest{
		ParentEntityID: "te-pump-1",
		Children: []ChildQuantityDTO{
			{EntityID: "te-steel-a", Quantity: "20"},
			{EntityID: "te-steel-b", Quantity: "10"},
		},
		Actor: "test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var effects map[string]json.RawMessage
	decodeBody(t, rec, &effects)
	if _, ok := effects["activities"]; !ok {
		t.Error("Expected activities in effects response")
	}

	rec = doRequest(t, router, "GET", "/api/inventory/onhand?item_id=STEEL-4140&location_id=plant-1&shelf_id=RAW", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var onHand OnHandDTO
	decodeBody(t, rec, &onHand)
	if onHand.Quantity != "15" {
		t.Errorf("Expected on-hand 15, got %s", onHand.Quantity)
	}
}

func TestConsumeEndpoint_InsufficientQuantity(t *testing.T) {
	// GIVEN: Job issue scenario
	// WHEN: Requesting more than a batch holds
	// THEN: 400 with the standard error envelope

	handler := setupTestHandler(t)
	router := NewRouter(handler)

	if err := loadJobIssueScenario(context.Background(), handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	rec := doRequest(t, router, "POST", "/api/materials/mat-steel/consume", ConsumeRequest{
		ParentEntityID: "te-pump-1",
		Children:       []ChildQuantityDTO{{EntityID: "te-steel-a", Quantity: "999"}},
		Actor:          "test",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	if errResp.Error == "" {
		t.Error("Expected error message in response")
	}
}

func TestUnconsumeEndpoint_RestoresState(t *testing.T) {
	// GIVEN: A full issue of batch A
	// WHEN: Reversing it through the unconsume endpoint
	// THEN: The batch is available again and on-hand is back to opening

	handler := setupTestHandler(t)
	router := NewRouter(handler)
	ctx := context.Background()

	if err := loadJobIssueScenario(ctx, handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	children := []ChildQuantityDTO{{EntityID: "te-steel-a", Quantity: "20"}}
	rec := doRequest(t, router, "POST", "/api/materials/mat-steel/consume", ConsumeRequest{
		ParentEntityID: "te-pump-1",
		Children:       children,
		Actor:          "test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Consume failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, "POST", "/api/materials/mat-steel/unconsume", UnconsumeRequest{
		ParentEntityID: "te-pump-1",
		Children:       children,
		Actor:          "test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Unconsume failed: %d: %s", rec.Code, rec.Body.String())
	}

	e, err := handler.Store.Entities().Get(ctx, "te-steel-a")
	if err != nil {
		t.Fatalf("Failed to get entity: %v", err)
	}
	if e.Status != genealogy.StatusAvailable {
		t.Errorf("Expected available after reversal, got %s", e.Status)
	}

	onHand, err := handler.Store.Ledger().OnHand(ctx, "STEEL-4140", "plant-1", "RAW")
	if err != nil {
		t.Fatalf("Failed to read on-hand: %v", err)
	}
	if !onHand.Equal(dec("45")) {
		t.Errorf("Expected on-hand restored to 45, got %s", onHand)
	}
}

func TestPostShipmentEndpoint_SecondPostConflicts(t *testing.T) {
	// GIVEN: Partial shipment scenario
	// WHEN: Posting the shipment twice
	// THEN: First succeeds, second returns 409

	handler := setupTestHandler(t)
	router := NewRouter(handler)

	if err := loadPartialShipmentScenario(context.Background(), handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	rec := doRequest(t, router, "POST", "/api/shipments/ship-500/post", PostShipmentRequest{Actor: "test"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, "POST", "/api/shipments/ship-500/post", PostShipmentRequest{Actor: "test"})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 on second post, got %d", rec.Code)
	}
}

func TestCompleteEndpoint_Success(t *testing.T) {
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	if err := loadSerialProductionScenario(context.Background(), handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}

	rec := doRequest(t, router, "POST", "/api/operations/op-test/complete", CompleteRequest{
		TrackedEntityID: "sn-motor-002",
		Quantity:        "1",
		Actor:           "test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetEntityEndpoint_NotFound(t *testing.T) {
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	rec := doRequest(t, router, "GET", "/api/entities/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetDescendantEndpoint_FollowsSplitChain(t *testing.T) {
	// GIVEN: A partial issue that split te-steel-b
	// WHEN: Reading te-steel-b's descendant
	// THEN: The available remainder, not the consumed original

	handler := setupTestHandler(t)
	router := NewRouter(handler)

	if err := loadJobIssueScenario(context.Background(), handler); err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	rec := doRequest(t, router, "POST", "/api/materials/mat-steel/consume", ConsumeRequest{
		ParentEntityID: "te-pump-1",
		Children:       []ChildQuantityDTO{{EntityID: "te-steel-b", Quantity: "10"}},
		Actor:          "test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Consume failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, "GET", "/api/entities/te-steel-b/descendant", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var e EntityDTO
	decodeBody(t, rec, &e)
	if e.ID == "te-steel-b" {
		t.Error("Expected descendant to be the split remainder")
	}
	if e.Status != string(genealogy.StatusAvailable) {
		t.Errorf("Expected available descendant, got %s", e.Status)
	}
	if e.Quantity != "15" {
		t.Errorf("Expected remainder quantity 15, got %s", e.Quantity)
	}
}

func TestCreateAdjustmentEndpoint_Validation(t *testing.T) {
	handler := setupTestHandler(t)
	router := NewRouter(handler)

	// Zero quantity is rejected by command validation
	rec := doRequest(t, router, "POST", "/api/inventory/adjustments", AdjustmentRequest{
		ItemID:     "STEEL-4140",
		LocationID: "plant-1",
		Quantity:   "0",
		Reason:     "cycle count",
		Actor:      "test",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero adjustment, got %d", rec.Code)
	}
}

func TestScenarioEndpoints(t *testing.T) {
	// GIVEN: A fresh handler
	// WHEN: Listing, loading, and reading back scenarios over HTTP
	// THEN: Load resets and seeds, current reflects the loaded scenario

	handler := setupTestHandler(t)
	router := NewRouter(handler)

	rec := doRequest(t, router, "GET", "/api/scenarios/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var list []ScenarioDTO
	decodeBody(t, rec, &list)
	if len(list) != 3 {
		t.Errorf("Expected 3 scenarios, got %d", len(list))
	}

	rec = doRequest(t, router, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "job-issue"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, "GET", "/api/scenarios/current", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var current ScenarioDTO
	decodeBody(t, rec, &current)
	if current.ID != "job-issue" {
		t.Errorf("Expected current scenario job-issue, got %s", current.ID)
	}

	rec = doRequest(t, router, "POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown scenario, got %d", rec.Code)
	}
}
