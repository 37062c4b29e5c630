/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Entities:
    EntityDTO, EntityAttrsDTO, ActivityDTO, ActivityEdgeDTO

  Ledger:
    LedgerEntryDTO, OnHandDTO

  Operations:
    ConsumeRequest, UnconsumeRequest, ChildQuantityDTO,
    PostShipmentRequest, CompleteRequest, AdjustmentRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

QUANTITIES:
  All quantities cross the wire as decimal strings ("12.5"), never as
  floats, so clients round-trip exact values.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - genealogy/command.go: Domain command types these map onto
*/
package api

// =============================================================================
// ENTITY / GENEALOGY TYPES
// =============================================================================

// EntityDTO represents a tracked entity in API responses.
type EntityDTO struct {
	ID           string            `json:"id"`
	ItemID       string            `json:"item_id"`
	LocationID   string            `json:"location_id"`
	ShelfID      string            `json:"shelf_id,omitempty"`
	Quantity     string            `json:"quantity"`
	Status       string            `json:"status"`
	TrackingType string            `json:"tracking_type"`
	SourceType   string            `json:"source_type,omitempty"`
	SourceID     string            `json:"source_id,omitempty"`
	Attributes   EntityAttrsDTO    `json:"attributes"`
	Extra        map[string]string `json:"extra,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty"`
	UpdatedAt    string            `json:"updated_at,omitempty"`
}

// EntityAttrsDTO carries the typed lineage attributes.
type EntityAttrsDTO struct {
	ParentJobID        string         `json:"parent_job_id,omitempty"`
	ParentMakeMethodID string         `json:"parent_make_method_id,omitempty"`
	SplitEntityID      string         `json:"split_entity_id,omitempty"`
	ShipmentID         string         `json:"shipment_id,omitempty"`
	ShipmentLineID     string         `json:"shipment_line_id,omitempty"`
	OperationSequences map[string]int `json:"operation_sequences,omitempty"`
}

// ActivityDTO represents a genealogy activity with its edges.
type ActivityDTO struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	SourceType string            `json:"source_type,omitempty"`
	SourceID   string            `json:"source_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Inputs     []ActivityEdgeDTO `json:"inputs"`
	Outputs    []ActivityEdgeDTO `json:"outputs"`
	CreatedBy  string            `json:"created_by,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// ActivityEdgeDTO is one input or output edge of an activity.
type ActivityEdgeDTO struct {
	EntityID string `json:"entity_id"`
	Quantity string `json:"quantity"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// LedgerEntryDTO represents one item ledger row.
type LedgerEntryDTO struct {
	ID              string `json:"id"`
	ItemID          string `json:"item_id"`
	LocationID      string `json:"location_id"`
	ShelfID         string `json:"shelf_id,omitempty"`
	Quantity        string `json:"quantity"`
	EntryType       string `json:"entry_type"`
	DocumentType    string `json:"document_type"`
	DocumentID      string `json:"document_id"`
	TrackedEntityID string `json:"tracked_entity_id,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
	PostingDate     string `json:"posting_date"`
}

// OnHandDTO is the computed on-hand quantity for an item bucket.
type OnHandDTO struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	ShelfID    string `json:"shelf_id,omitempty"`
	Quantity   string `json:"quantity"`
}

// =============================================================================
// OPERATION REQUESTS
// =============================================================================

// ChildQuantityDTO selects a tracked entity and how much of it to use.
type ChildQuantityDTO struct {
	EntityID string `json:"entity_id"`
	Quantity string `json:"quantity"`
}

// ConsumeRequest issues tracked material to a job.
type ConsumeRequest struct {
	MaterialID     string             `json:"material_id"`
	ParentEntityID string             `json:"parent_entity_id"`
	Children       []ChildQuantityDTO `json:"children"`
	Actor          string             `json:"actor"`
}

// UnconsumeRequest reverses a prior issue.
type UnconsumeRequest struct {
	MaterialID     string             `json:"material_id"`
	ParentEntityID string             `json:"parent_entity_id"`
	Children       []ChildQuantityDTO `json:"children"`
	Actor          string             `json:"actor"`
}

// PostShipmentRequest finalizes a shipment.
type PostShipmentRequest struct {
	Actor string `json:"actor"`
}

// CompleteRequest records a production completion at an operation.
type CompleteRequest struct {
	TrackedEntityID string `json:"tracked_entity_id"`
	JobOperationID  string `json:"job_operation_id"`
	Quantity        string `json:"quantity"`
	Actor           string `json:"actor"`
}

// AdjustmentRequest posts a manual ledger correction.
type AdjustmentRequest struct {
	ItemID          string `json:"item_id"`
	LocationID      string `json:"location_id"`
	ShelfID         string `json:"shelf_id,omitempty"`
	Quantity        string `json:"quantity"`
	TrackedEntityID string `json:"tracked_entity_id,omitempty"`
	Reason          string `json:"reason"`
	Actor           string `json:"actor"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// COMMON TYPES
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
